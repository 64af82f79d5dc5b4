package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/jordancj7/folio/internal/ailink"
)

// Config represents the complete application configuration.
//
// Values are layered by viper: built-in defaults, then the config file, then
// FOLIO_* environment variables (plus the legacy unprefixed names bound in
// bindLegacyEnv), then command-line flags.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Redis     RedisConfig     `mapstructure:"redis"`
	AILink    ailink.Config   `mapstructure:"ailink"`
	Flows     FlowsConfig     `mapstructure:"flows"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Health    HealthConfig    `mapstructure:"health"`
	Debug     DebugConfig     `mapstructure:"debug"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// MaxBodyBytes caps request bodies on the API routes.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
	// TrustedProxies lists proxy addresses or CIDRs whose X-Forwarded-For
	// and X-Real-IP headers are believed. Empty keys callers by TCP peer.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// Rate window backends.
const (
	BackendMemory = "memory"
	BackendLibsql = "libsql"
	BackendRedis  = "redis"
)

// RateLimitConfig controls the per-caller quotas guarding the AI flows.
type RateLimitConfig struct {
	RPM int `mapstructure:"rpm"`
	RPD int `mapstructure:"rpd"`

	// Backend selects where rate windows live: memory, libsql, or redis.
	Backend string `mapstructure:"backend"`

	// KeyStrategy selects how callers are told apart: global or ip.
	KeyStrategy string `mapstructure:"key_strategy"`
}

// RedisConfig is used when ratelimit.backend is redis.
// DefaultRedisKeyPrefix namespaces rate windows when redis.key_prefix is unset.
const DefaultRedisKeyPrefix = "folio:ratelimit:"

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// FlowsConfig configures the chat and refine flows.
type FlowsConfig struct {
	// Owner is the portfolio owner the chat flow answers about.
	Owner string `mapstructure:"owner"`
	// KnowledgeFile replaces the embedded knowledge base when set.
	KnowledgeFile string `mapstructure:"knowledge_file"`
	// Timeout bounds a single model call. Zero uses ailink.default_timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxHistory caps the conversation turns forwarded to the model.
	MaxHistory int `mapstructure:"max_history"`
}

// AdminConfig guards the inbox management endpoints.
type AdminConfig struct {
	Token string `mapstructure:"token"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug configuration
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Validate checks cross-field constraints that defaults cannot guarantee.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if c.RateLimit.RPM <= 0 {
		return fmt.Errorf("ratelimit.rpm must be positive, got %d", c.RateLimit.RPM)
	}
	if c.RateLimit.RPD <= 0 {
		return fmt.Errorf("ratelimit.rpd must be positive, got %d", c.RateLimit.RPD)
	}

	switch strings.ToLower(strings.TrimSpace(c.RateLimit.Backend)) {
	case "", BackendMemory, BackendLibsql:
	case BackendRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return fmt.Errorf("redis.addr is required when ratelimit.backend is redis")
		}
	default:
		return fmt.Errorf("unknown ratelimit.backend %q", c.RateLimit.Backend)
	}

	switch strings.ToLower(strings.TrimSpace(c.RateLimit.KeyStrategy)) {
	case "", "global", "ip":
	default:
		return fmt.Errorf("unknown ratelimit.key_strategy %q", c.RateLimit.KeyStrategy)
	}

	if c.Flows.MaxHistory < 0 {
		return fmt.Errorf("flows.max_history must not be negative")
	}
	return nil
}
