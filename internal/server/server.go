package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jordancj7/folio/internal/config"
	"github.com/jordancj7/folio/internal/core/engine"
	apperrors "github.com/jordancj7/folio/internal/errors"
	"github.com/jordancj7/folio/internal/metrics"
	"github.com/jordancj7/folio/internal/observability"
	"github.com/jordancj7/folio/internal/server/handlers"
	servermw "github.com/jordancj7/folio/internal/server/middleware"
)

// Options wires the server to its collaborators.
type Options struct {
	Config config.ServerConfig

	// API serves /api routes. Nil leaves only health, version and metrics.
	API    *handlers.API
	Health *handlers.HealthManager

	AdminToken  string
	KeyStrategy engine.KeyStrategy
	// TrustedProxies may set the client address through forwarding headers.
	TrustedProxies *engine.TrustedProxies
	// MetricsPort is the exporter port used when the bound port is unknown.
	MetricsPort int
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	opts   Options

	activeConns atomic.Int64
}

// New creates a new HTTP server instance
func New(opts Options) *Server {
	if opts.KeyStrategy == "" {
		opts.KeyStrategy = engine.KeyStrategyGlobal
	}
	if opts.Health == nil {
		opts.Health = handlers.NewHealthManager(handlers.Build().Version)
	}
	if opts.API != nil && opts.API.MaxBodyBytes == 0 {
		opts.API.MaxBodyBytes = opts.Config.MaxBodyBytes
	}

	r := chi.NewRouter()

	// Order: RequestID, Metrics, Recovery, caller key.
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)
	r.Use(servermw.CallerKey(opts.KeyStrategy, opts.TrustedProxies))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	s := &Server{router: r, opts: opts}

	s.registerRoutes()

	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.opts.Config.Host, fmt.Sprint(s.opts.Config.Port))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	cfg := s.opts.Config
	s.server = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadTimeout:       durationOr(cfg.ReadTimeout, 30*time.Second),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      durationOr(cfg.WriteTimeout, 90*time.Second),
		IdleTimeout:       durationOr(cfg.IdleTimeout, 120*time.Second),
		ConnState:         s.trackConn,
	}

	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Starting HTTP server",
			zap.String("addr", s.server.Addr),
			zap.String("key_strategy", string(s.opts.KeyStrategy)),
			zap.Int("trusted_proxies", s.opts.TrustedProxies.Len()))
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Shutting down HTTP server")
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the server port for testing
func (s *Server) Port() int {
	return s.opts.Config.Port
}

func (s *Server) trackConn(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		metrics.SetActiveConnections(s.activeConns.Add(1))
	case http.StateHijacked, http.StateClosed:
		metrics.SetActiveConnections(s.activeConns.Add(-1))
	}
}

func durationOr(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}
