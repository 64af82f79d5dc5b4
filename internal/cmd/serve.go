package cmd

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jordancj7/folio/internal/ailink"
	"github.com/jordancj7/folio/internal/core/engine"
	"github.com/jordancj7/folio/internal/core/store"
	errwrap "github.com/jordancj7/folio/internal/errors"
	"github.com/jordancj7/folio/internal/metrics"
	"github.com/jordancj7/folio/internal/observability"
	"github.com/jordancj7/folio/internal/server"
	"github.com/jordancj7/folio/internal/server/handlers"
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if !observability.MetricsEnabled() {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// identityHealthChecker validates app identity metadata
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (i identityHealthChecker) CheckHealth(ctx context.Context) error {
	switch {
	case i.binaryName == "":
		return errwrap.NewInternalError("app identity missing binary name")
	case i.envPrefix == "":
		return errwrap.NewInternalError("app identity missing env prefix")
	case i.configName == "":
		return errwrap.NewInternalError("app identity missing config name")
	}
	return nil
}

// modelHealthChecker fails when no enabled provider has an API key, since
// every chat and refine request would then fail.
type modelHealthChecker struct {
	cfg ailink.Config
}

func (m modelHealthChecker) CheckHealth(ctx context.Context) error {
	if len(usableProviders(m.cfg)) == 0 {
		return errwrap.NewServiceUnavailableError("no model provider has credentials")
	}
	return nil
}

// usableProviders lists enabled provider ids that carry at least one API key.
func usableProviders(cfg ailink.Config) []string {
	var ids []string
	for id, provider := range cfg.Providers {
		if !provider.Enabled {
			continue
		}
		for _, cred := range provider.Credentials {
			if strings.TrimSpace(cred.APIKey) != "" {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP server with graceful shutdown support.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Reload the config file and apply the new log level

The server will cleanly shut down the HTTP server, close the stores and flush
logs on shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		identity := GetAppIdentity()
		namespace := identity.TelemetryNamespace()

		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			return err
		}

		observability.InitServerLogger(identity.BinaryName, cfg.Logging.Level, cfg.Logging.Profile, namespace)
		logger := observability.ServerLogger

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(identity.BinaryName, cfg.Metrics.Port, namespace); err != nil {
				logger.Error("Failed to initialize metrics", zap.Error(err))
				return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
			}
		}

		strategy, err := engine.ParseKeyStrategy(cfg.RateLimit.KeyStrategy)
		if err != nil {
			return errwrap.WrapInvalidInput(cmd.Context(), err, "invalid rate limit key strategy")
		}
		proxies, err := engine.ParseTrustedProxies(cfg.Server.TrustedProxies)
		if err != nil {
			return errwrap.WrapInvalidInput(cmd.Context(), err, "invalid server.trusted_proxies")
		}

		deps, err := buildStack(cmd.Context(), cfg, logger)
		if err != nil {
			return errwrap.WrapDatabaseError(cmd.Context(), err, "store initialization failed")
		}

		flows, err := buildFlows(cfg, deps.limiter, logger)
		if err != nil {
			_ = deps.Close()
			return errwrap.WrapInternal(cmd.Context(), err, "flow initialization failed")
		}

		logger.Info("Initializing server",
			zap.String("service", identity.BinaryName),
			zap.String("namespace", namespace),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Int("metrics_port", observability.GetMetricsPort()),
			zap.String("ratelimit_backend", backendName(cfg.RateLimit.Backend)),
			zap.String("key_strategy", string(strategy)),
			zap.Bool("admin_enabled", cfg.Admin.Token != ""))

		hm := handlers.NewHealthManager(versionInfo.Version)
		hm.RegisterChecker("store", handlers.CheckFunc(deps.db.Ping))
		if redisStore, ok := deps.windows.(*store.RedisWindowStore); ok {
			hm.RegisterChecker("rate_windows", handlers.CheckFunc(redisStore.Ping))
		}
		if cfg.Metrics.Enabled {
			hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		}
		hm.RegisterChecker("model_provider", modelHealthChecker{cfg: cfg.AILink})
		hm.RegisterChecker("app_identity", identityHealthChecker{
			binaryName: identity.BinaryName,
			envPrefix:  identity.EnvPrefix,
			configName: identity.ConfigName,
		})

		handlers.SetAppIdentity(identity)

		srv := server.New(server.Options{
			Config: cfg.Server,
			API: &handlers.API{
				Chat:         flows.chat,
				Refine:       flows.refine,
				Prompts:      flows.prompts,
				Quota:        deps.limiter,
				Messages:     deps.db,
				MaxBodyBytes: cfg.Server.MaxBodyBytes,
			},
			Health:         hm,
			AdminToken:     cfg.Admin.Token,
			KeyStrategy:    strategy,
			TrustedProxies: proxies,
			MetricsPort:    cfg.Metrics.Port,
		})

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Shutdown handlers run LIFO: HTTP server, then stores, then the logger.
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Flushing logger...")
			if err := logger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			if err := deps.Close(); err != nil {
				return errwrap.WrapDatabaseError(ctx, err, "store close failed")
			}
			logger.Info("Stores closed")
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			logger.Info("Received SIGHUP: attempting config reload")

			if err := viper.ReadInConfig(); err != nil {
				var notFound viper.ConfigFileNotFoundError
				if errors.As(err, &notFound) {
					logger.Info("No config file found - using defaults and environment variables")
					return nil
				}
				logger.Error("Failed to reload config file",
					zap.String("file", viper.ConfigFileUsed()),
					zap.Error(err))
				return errwrap.WrapInvalidInput(ctx, err, "config reload failed")
			}

			reloaded, err := loadConfig(ctx)
			if err != nil {
				return errwrap.WrapInvalidInput(ctx, err, "config reload failed")
			}
			observability.InitServerLogger(identity.BinaryName, reloaded.Logging.Level, reloaded.Logging.Profile, namespace)
			logger = observability.ServerLogger

			// Listener, store and quota settings are fixed for the process.
			logger.Info("Configuration reloaded",
				zap.String("file", viper.ConfigFileUsed()),
				zap.String("log_level", reloaded.Logging.Level))
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		g, gctx := errgroup.WithContext(ctx)

		metrics.SetServerStartTime(time.Now().Unix())

		g.Go(func() error {
			defer cancel()
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})

		g.Go(func() error {
			if err := signals.Listen(gctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Signal handler error", zap.Error(err))
				return err
			}
			return nil
		})

		if err := g.Wait(); err != nil {
			_ = deps.Close()
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("ratelimit-backend", "", "rate window backend: memory, libsql or redis")
	serveCmd.Flags().String("key-strategy", "", "caller key strategy: global or ip")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("ratelimit.backend", serveCmd.Flags().Lookup("ratelimit-backend"))
	_ = viper.BindPFlag("ratelimit.key_strategy", serveCmd.Flags().Lookup("key-strategy"))
}
