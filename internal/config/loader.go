// Package config provides centralized configuration management for folio.
//
// Layering is handled by viper: SetDefaults registers built-in values, the
// command layer reads an optional YAML file, and BindEnv wires FOLIO_* variables
// plus the unprefixed names older deployments already export (RPM_LIMIT,
// ADMIN_SECRET, GOOGLE_GENAI_API_KEY, ...). An optional .env file is loaded
// first with godotenv so local development needs no shell exports.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/appidentity"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jordancj7/folio/internal/ailink"
	"github.com/jordancj7/folio/internal/appid"
)

const (
	defaultEnvPrefix = appid.DefaultEnvPrefix
	defaultAppName   = appid.DefaultBinaryName
)

var (
	appConfig   *Config
	configMu    sync.RWMutex
	appIdentity *appidentity.Identity
)

// credentialEnv lists well-known provider key variables, in lookup order.
var credentialEnv = map[string][]string{
	"gemini": {"GOOGLE_GENAI_API_KEY", "GOOGLE_API_KEY", "GEMINI_API_KEY"},
	"openai": {"OPENAI_API_KEY"},
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Variables that are already set win. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", path, err)
		}
	}
	return nil
}

// SetDefaults registers built-in values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_body_bytes", 64*1024)
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	v.SetDefault("ratelimit.rpm", 5)
	v.SetDefault("ratelimit.rpd", 20)
	v.SetDefault("ratelimit.backend", BackendMemory)
	v.SetDefault("ratelimit.key_strategy", "global")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", DefaultRedisKeyPrefix)
	v.SetDefault("redis.dial_timeout", "5s")

	v.SetDefault("ailink.default_provider", "gemini")
	v.SetDefault("ailink.default_timeout", "60s")
	v.SetDefault("ailink.prompts_dir", "")
	v.SetDefault("ailink.debug.capture_raw_enabled", false)
	v.SetDefault("ailink.debug.capture_raw_max_bytes", 8192)
	v.SetDefault("ailink.providers", map[string]any{
		"gemini": map[string]any{
			"enabled":     true,
			"ai_provider": "gemini",
			"models":      map[string]any{"default": "gemini-2.0-flash"},
		},
	})
	v.SetDefault("ailink.routing", map[string]any{})

	v.SetDefault("flows.owner", "")
	v.SetDefault("flows.knowledge_file", "")
	v.SetDefault("flows.timeout", "0s")
	v.SetDefault("flows.max_history", 20)

	v.SetDefault("admin.token", "")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("health.enabled", true)

	v.SetDefault("debug.enabled", false)
}

// BindEnv wires environment variables onto v. Every defaulted key is reachable
// as PREFIX_SECTION_KEY; a few keys also accept unprefixed legacy names.
func BindEnv(v *viper.Viper, prefix string) {
	prefix = normalizePrefix(prefix)
	v.SetEnvPrefix(strings.TrimSuffix(prefix, "_"))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v, prefix)
}

func bindLegacyEnv(v *viper.Viper, prefix string) {
	_ = v.BindEnv("ratelimit.rpm", prefix+"RATELIMIT_RPM", prefix+"RPM_LIMIT", "RPM_LIMIT", "GEMINI_RPM_LIMIT")
	_ = v.BindEnv("ratelimit.rpd", prefix+"RATELIMIT_RPD", prefix+"RPD_LIMIT", "RPD_LIMIT", "GEMINI_RPD_LIMIT")
	_ = v.BindEnv("admin.token", prefix+"ADMIN_TOKEN", "ADMIN_SECRET")
	_ = v.BindEnv("store.url", prefix+"STORE_URL", prefix+"DB_URL")
	_ = v.BindEnv("store.auth_token", prefix+"STORE_AUTH_TOKEN", prefix+"DB_AUTH_TOKEN")
	_ = v.BindEnv("redis.addr", prefix+"REDIS_ADDR", "REDIS_ADDR")
}

// Load decodes the process-wide viper instance into a Config.
//
// This function is safe to call multiple times (e.g., for config reload).
func Load(ctx context.Context) (*Config, error) {
	if appIdentity == nil {
		identity, err := appid.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load app identity: %w", err)
		}
		appIdentity = identity
	}

	cfg, err := LoadFrom(viper.GetViper(), envPrefix())
	if err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

// LoadFrom decodes v into a Config, applying dynamic provider overrides from the
// environment and validating the result.
func LoadFrom(v *viper.Viper, prefix string) (*Config, error) {
	if v == nil {
		return nil, errors.New("viper instance is required")
	}

	settings := v.AllSettings()
	applyAILinkDynamicEnvOverrides(normalizePrefix(prefix), settings)

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}
	if cfg.AILink.DefaultTimeout <= 0 {
		cfg.AILink.DefaultTimeout = 60 * time.Second
	}
	applyCredentialEnv(&cfg.AILink)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// applyCredentialEnv gives enabled providers without a usable key the first
// matching well-known API key variable.
func applyCredentialEnv(cfg *ailink.Config) {
	for id, provider := range cfg.Providers {
		if hasUsableCredential(provider) {
			continue
		}
		for _, name := range credentialEnv[strings.ToLower(strings.TrimSpace(provider.AIProvider))] {
			if key := strings.TrimSpace(os.Getenv(name)); key != "" {
				provider.Credentials = append(provider.Credentials, ailink.CredentialConfig{
					Enabled: true,
					Label:   strings.ToLower(name),
					APIKey:  key,
				})
				cfg.Providers[id] = provider
				break
			}
		}
	}
}

func hasUsableCredential(provider ailink.ProviderInstanceConfig) bool {
	for _, cred := range provider.Credentials {
		if strings.TrimSpace(cred.APIKey) != "" {
			return true
		}
	}
	return false
}

func envPrefix() string {
	if appIdentity != nil && strings.TrimSpace(appIdentity.EnvPrefix) != "" {
		return normalizePrefix(appIdentity.EnvPrefix)
	}
	return defaultEnvPrefix
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return defaultEnvPrefix
	}
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	return prefix
}

// appNamesForPaths returns the config name and binary name from app identity,
// falling back to "folio" if not set.
func appNamesForPaths() (configName string, binaryName string) {
	configName = defaultAppName
	binaryName = defaultAppName
	if appIdentity == nil {
		return configName, binaryName
	}

	if strings.TrimSpace(appIdentity.ConfigName) != "" {
		configName = appIdentity.ConfigName
	}
	if strings.TrimSpace(appIdentity.BinaryName) != "" {
		binaryName = appIdentity.BinaryName
	}
	return configName, binaryName
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configName, _ := appNamesForPaths()
	configDir := gfconfig.GetAppConfigDir(configName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	configName, binaryName := appNamesForPaths()
	dataDir := gfconfig.GetAppDataDir(configName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + binaryName + ".db"
	}
	return filepath.Join(dataDir, binaryName+".db")
}

// applyAILinkDynamicEnvOverrides maps PREFIX_AILINK_PROVIDERS_<ID>_<FIELD> and
// PREFIX_AILINK_ROUTING_<ROLE> variables onto the settings tree. Provider ids and
// roles are lowercased with underscores turned into dashes.
func applyAILinkDynamicEnvOverrides(prefix string, settings map[string]any) {
	providerPrefix := prefix + "AILINK_PROVIDERS_"
	routingPrefix := prefix + "AILINK_ROUTING_"

	for _, item := range os.Environ() {
		key, value, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		if strings.TrimSpace(value) == "" {
			continue
		}

		switch {
		case strings.HasPrefix(key, providerPrefix):
			applyAILinkProviderOverride(settings, key[len(providerPrefix):], value)
		case strings.HasPrefix(key, routingPrefix):
			applyAILinkRoutingOverride(settings, key[len(routingPrefix):], value)
		}
	}
}

func applyAILinkRoutingOverride(settings map[string]any, rawRole string, providerID string) {
	role := toSlug(rawRole)
	providerID = strings.TrimSpace(providerID)
	if role == "" || providerID == "" {
		return
	}

	ailinkSection := ensureMap(settings, "ailink")
	routing := ensureMap(ailinkSection, "routing")
	routing[role] = providerID
}

func applyAILinkProviderOverride(settings map[string]any, raw string, value string) {
	parts := strings.Split(strings.TrimSpace(raw), "_")
	if len(parts) < 2 {
		return
	}

	section := -1
	for i, part := range parts {
		switch part {
		case "ENABLED", "AI", "BASE", "MODELS", "CREDENTIALS", "DEFAULT", "SELECTION":
			section = i
		}
		if section != -1 {
			break
		}
	}
	if section <= 0 {
		return
	}

	providerID := strings.ToLower(strings.Join(parts[:section], "-"))
	if providerID == "" {
		return
	}

	ailinkSection := ensureMap(settings, "ailink")
	providers := ensureMap(ailinkSection, "providers")
	provider := ensureMap(providers, providerID)

	rest := parts[section:]
	switch {
	case len(rest) == 1 && rest[0] == "ENABLED":
		provider["enabled"] = strings.EqualFold(strings.TrimSpace(value), "true")
	case len(rest) == 2 && rest[0] == "AI" && rest[1] == "PROVIDER":
		provider["ai_provider"] = strings.ToLower(strings.TrimSpace(value))
	case len(rest) == 2 && rest[0] == "DEFAULT" && rest[1] == "CREDENTIAL":
		provider["default_credential"] = strings.TrimSpace(value)
	case len(rest) == 2 && rest[0] == "SELECTION" && rest[1] == "POLICY":
		provider["selection_policy"] = strings.ToLower(strings.TrimSpace(value))
	case len(rest) == 2 && rest[0] == "BASE" && rest[1] == "URL":
		provider["base_url"] = strings.TrimSpace(value)
	case len(rest) >= 2 && rest[0] == "MODELS":
		modelKey := strings.ToLower(strings.Join(rest[1:], "_"))
		models := ensureMap(provider, "models")
		models[modelKey] = strings.TrimSpace(value)
	case len(rest) >= 3 && rest[0] == "CREDENTIALS":
		idx, err := strconv.Atoi(rest[1])
		if err != nil || idx < 0 {
			return
		}
		field := strings.ToLower(strings.Join(rest[2:], "_"))
		if field == "" {
			return
		}

		creds := ensureSlice(provider, "credentials", idx+1)
		cred := ensureSliceMap(creds, idx)
		switch field {
		case "priority":
			if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				cred[field] = parsed
				return
			}
			cred[field] = strings.TrimSpace(value)
		case "enabled":
			cred[field] = strings.EqualFold(strings.TrimSpace(value), "true")
		default:
			cred[field] = strings.TrimSpace(value)
		}
	}
}

func ensureMap(parent map[string]any, key string) map[string]any {
	if parent == nil {
		return map[string]any{}
	}
	if existing, ok := parent[key]; ok {
		if typed, ok := existing.(map[string]any); ok {
			return typed
		}
	}
	next := map[string]any{}
	parent[key] = next
	return next
}

func ensureSlice(parent map[string]any, key string, length int) []any {
	var existing []any
	if raw, ok := parent[key]; ok {
		existing, _ = raw.([]any)
	}
	for len(existing) < length {
		existing = append(existing, map[string]any{})
	}
	parent[key] = existing
	return existing
}

func ensureSliceMap(slice []any, idx int) map[string]any {
	if idx < 0 || idx >= len(slice) {
		return map[string]any{}
	}
	if typed, ok := slice[idx].(map[string]any); ok {
		return typed
	}
	m := map[string]any{}
	slice[idx] = m
	return m
}

func toSlug(raw string) string {
	parts := strings.Split(strings.TrimSpace(raw), "_")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		p := strings.ToLower(strings.TrimSpace(part))
		if p == "" {
			continue
		}
		clean = append(clean, p)
	}
	return strings.Join(clean, "-")
}
