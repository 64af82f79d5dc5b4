package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/jordancj7/folio/internal/ailink"
	"github.com/jordancj7/folio/internal/ailink/prompt"
	"github.com/jordancj7/folio/internal/config"
	"github.com/jordancj7/folio/internal/core/engine"
	"github.com/jordancj7/folio/internal/core/store"
	"github.com/jordancj7/folio/internal/flow"
)

// stack holds the collaborators shared by serve and the one-shot commands.
type stack struct {
	cfg     *config.Config
	db      *store.Store
	windows engine.RateWindowStore
	limiter *engine.RateLimiter
	closers []func() error
}

// Close releases the window store and database, newest first.
func (s *stack) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func openStore(ctx context.Context, cfg config.StoreConfig) (*store.Store, error) {
	db, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// buildStack opens the message store and the configured rate window backend.
func buildStack(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*stack, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	db, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	s := &stack{cfg: cfg, db: db, closers: []func() error{db.Close}}

	backend := strings.ToLower(strings.TrimSpace(cfg.RateLimit.Backend))
	switch backend {
	case "", config.BackendMemory:
		s.windows = engine.NewMemoryWindowStore()
	case config.BackendLibsql:
		s.windows = db
	case config.BackendRedis:
		redisStore := store.NewRedisWindowStore(store.NewRedisClient(cfg.Redis), cfg.Redis.KeyPrefix)
		s.closers = append(s.closers, redisStore.Close)
		if err := redisStore.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("connect redis rate window store: %w", err)
		}
		s.windows = redisStore
	default:
		_ = s.Close()
		return nil, fmt.Errorf("unknown ratelimit.backend %q", cfg.RateLimit.Backend)
	}

	limits := engine.RateLimits{RequestsPerMinute: cfg.RateLimit.RPM, RequestsPerDay: cfg.RateLimit.RPD}
	if err := limits.Validate(); err != nil {
		_ = s.Close()
		return nil, err
	}
	s.limiter = engine.NewRateLimiter(s.windows, limits)
	s.limiter.Logger = logger

	if logger != nil {
		logger.Debug("Rate limiter ready",
			zap.String("backend", backendName(backend)),
			zap.Int("rpm", limits.RequestsPerMinute),
			zap.Int("rpd", limits.RequestsPerDay))
	}
	return s, nil
}

// persistentWindows reports whether rate windows outlive the process.
func (s *stack) persistentWindows() bool {
	_, inMemory := s.windows.(*engine.MemoryWindowStore)
	return !inMemory
}

// flowSet is the model-backed half of the runtime.
type flowSet struct {
	chat    *flow.ChatFlow
	refine  *flow.RefineFlow
	prompts []prompt.Summary
}

// buildFlows wires the chat and refine flows to the model service and limiter.
// A prompts directory that drops a slug the flows render fails here rather
// than on the first request.
func buildFlows(cfg *config.Config, limiter flow.Limiter, logger *logging.Logger) (*flowSet, error) {
	service, err := ailink.NewService(cfg.AILink)
	if err != nil {
		return nil, fmt.Errorf("initialize model service: %w", err)
	}
	if err := prompt.Require(service.Registry, flow.ChatPromptSlug, flow.RefinePromptSlug); err != nil {
		return nil, err
	}
	summaries := prompt.Summarize(service.Registry)
	if logger != nil {
		for _, p := range summaries {
			logger.Debug("Prompt loaded",
				zap.String("slug", p.Slug),
				zap.String("version", p.Version),
				zap.String("origin", p.Origin))
		}
	}

	knowledge, err := flow.LoadKnowledge(cfg.Flows.KnowledgeFile)
	if err != nil {
		return nil, err
	}

	deps := flow.Deps{
		Model:   service,
		Limiter: limiter,
		Logger:  logger,
		Timeout: cfg.Flows.Timeout,
	}
	if cfg.Debug.Enabled && logger != nil {
		deps.Observer = func(t flow.Transition) {
			logger.Debug("Flow transition",
				zap.String("flow", t.Flow),
				zap.String("from", t.From.String()),
				zap.String("to", t.To.String()))
		}
	}

	chat, err := flow.NewChatFlow(deps, flow.ChatOptions{
		Owner:      cfg.Flows.Owner,
		Knowledge:  knowledge,
		MaxHistory: cfg.Flows.MaxHistory,
	})
	if err != nil {
		return nil, err
	}
	refine, err := flow.NewRefineFlow(deps)
	if err != nil {
		return nil, err
	}
	return &flowSet{chat: chat, refine: refine, prompts: summaries}, nil
}

func backendName(backend string) string {
	if backend == "" {
		return config.BackendMemory
	}
	return backend
}
