package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jordancj7/folio/internal/observability"
	"github.com/jordancj7/folio/internal/server/handlers"
	servermw "github.com/jordancj7/folio/internal/server/middleware"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	health := s.opts.Health
	s.router.Get("/health", health.HealthHandler)
	s.router.Get("/health/live", health.LivenessHandler)
	s.router.Get("/health/ready", health.ReadinessHandler)
	s.router.Get("/health/startup", health.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)

	s.router.Get("/metrics", newMetricsProxy(s.opts.MetricsPort).ServeHTTP)

	if s.opts.API != nil {
		s.registerAPI(s.opts.API)
	}

	s.registerSignalEndpoint()
}

func (s *Server) registerAPI(api *handlers.API) {
	s.router.Route("/api", func(r chi.Router) {
		if api.Chat != nil {
			r.Post("/chat", api.ChatHandler)
		}
		if api.Refine != nil {
			r.Post("/refine", api.RefineHandler)
		}
		r.Get("/flows", api.FlowsHandler)
		if api.Quota != nil {
			r.Get("/quota", api.QuotaHandler)
		}
		if api.Messages != nil {
			r.Post("/contact", api.ContactHandler)
		}

		r.Route("/admin", func(r chi.Router) {
			r.Use(servermw.AdminAuth(s.opts.AdminToken))
			if api.Messages != nil {
				r.Get("/messages", api.ListMessagesHandler)
				r.Patch("/messages/{id}", api.UpdateMessageHandler)
				r.Delete("/messages/{id}", api.DeleteMessageHandler)
			}
			if api.Quota != nil {
				r.Delete("/quota", api.ResetQuotaHandler)
			}
		})
	})
}

// registerSignalEndpoint exposes gofulmen's signal handler (reload, shutdown)
// behind the admin token. Without a token it stays unregistered.
func (s *Server) registerSignalEndpoint() {
	logger := observability.ServerLogger
	if s.opts.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no admin token set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.opts.AdminToken,
		RateLimit: 10,
		RateBurst: 5,
		Manager:   nil,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("rate_limit", "10/min, burst 5"))
	}
}
