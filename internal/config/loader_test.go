package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	BindEnv(v, "FOLIO_")
	return v
}

func clearLegacyEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"RPM_LIMIT", "RPD_LIMIT", "GEMINI_RPM_LIMIT", "GEMINI_RPD_LIMIT",
		"FOLIO_RATELIMIT_RPM", "FOLIO_RATELIMIT_RPD", "FOLIO_RPM_LIMIT", "FOLIO_RPD_LIMIT",
		"ADMIN_SECRET", "FOLIO_ADMIN_TOKEN",
		"GOOGLE_GENAI_API_KEY", "GOOGLE_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadFromDefaults(t *testing.T) {
	clearLegacyEnv(t)

	cfg, err := LoadFrom(newTestViper(t), "FOLIO_")
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.RateLimit.RPM)
	assert.Equal(t, 20, cfg.RateLimit.RPD)
	assert.Equal(t, BackendMemory, cfg.RateLimit.Backend)
	assert.Equal(t, "global", cfg.RateLimit.KeyStrategy)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 60*time.Second, cfg.AILink.DefaultTimeout)
	assert.Equal(t, "gemini", cfg.AILink.DefaultProvider)
	require.Contains(t, cfg.AILink.Providers, "gemini")
	assert.Equal(t, "gemini-2.0-flash", cfg.AILink.Providers["gemini"].Models["default"])
	assert.NotEmpty(t, cfg.Store.Path)
}

func TestLoadFromLegacyRateEnv(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("RPM_LIMIT", "2")
	t.Setenv("GEMINI_RPD_LIMIT", "7")

	cfg, err := LoadFrom(newTestViper(t), "FOLIO_")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.RateLimit.RPM)
	assert.Equal(t, 7, cfg.RateLimit.RPD)
}

func TestLoadFromPrefixedEnvWins(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("RPM_LIMIT", "2")
	t.Setenv("FOLIO_RATELIMIT_RPM", "9")

	cfg, err := LoadFrom(newTestViper(t), "FOLIO_")
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.RateLimit.RPM)
}

func TestLoadFromAdminSecret(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("ADMIN_SECRET", "s3cret")

	cfg, err := LoadFrom(newTestViper(t), "FOLIO_")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Admin.Token)
}

func TestLoadFromGeminiKeyEnv(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("GOOGLE_API_KEY", "from-google")

	cfg, err := LoadFrom(newTestViper(t), "FOLIO_")
	require.NoError(t, err)

	creds := cfg.AILink.Providers["gemini"].Credentials
	require.Len(t, creds, 1)
	assert.Equal(t, "from-google", creds[0].APIKey)
	assert.True(t, creds[0].Enabled)
}

func TestLoadFromDynamicProviderEnv(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("FOLIO_AILINK_PROVIDERS_BACKUP_AI_PROVIDER", "openai")
	t.Setenv("FOLIO_AILINK_PROVIDERS_BACKUP_ENABLED", "true")
	t.Setenv("FOLIO_AILINK_PROVIDERS_BACKUP_MODELS_DEFAULT", "gpt-4o-mini")
	t.Setenv("FOLIO_AILINK_PROVIDERS_BACKUP_CREDENTIALS_0_API_KEY", "sk-test")
	t.Setenv("FOLIO_AILINK_ROUTING_REFINE_DESCRIPTION", "backup")

	cfg, err := LoadFrom(newTestViper(t), "FOLIO_")
	require.NoError(t, err)

	backup, ok := cfg.AILink.Providers["backup"]
	require.True(t, ok)
	assert.True(t, backup.Enabled)
	assert.Equal(t, "openai", backup.AIProvider)
	assert.Equal(t, "gpt-4o-mini", backup.Models["default"])
	require.Len(t, backup.Credentials, 1)
	assert.Equal(t, "sk-test", backup.Credentials[0].APIKey)
	assert.Equal(t, "backup", cfg.AILink.Routing["refine-description"])
}

func TestLoadFromConfigFile(t *testing.T) {
	clearLegacyEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ratelimit:
  rpm: 3
  backend: libsql
  key_strategy: ip
flows:
  max_history: 4
`), 0o600))

	v := newTestViper(t)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := LoadFrom(v, "FOLIO_")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.RateLimit.RPM)
	assert.Equal(t, 20, cfg.RateLimit.RPD)
	assert.Equal(t, BackendLibsql, cfg.RateLimit.Backend)
	assert.Equal(t, "ip", cfg.RateLimit.KeyStrategy)
	assert.Equal(t, 4, cfg.Flows.MaxHistory)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		return &Config{RateLimit: RateLimitConfig{RPM: 5, RPD: 20, Backend: BackendMemory, KeyStrategy: "global"}}
	}
	require.NoError(t, base().Validate())

	cfg := base()
	cfg.RateLimit.RPM = 0
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.RateLimit.Backend = "etcd"
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.RateLimit.Backend = BackendRedis
	require.Error(t, cfg.Validate())
	cfg.Redis.Addr = "localhost:6379"
	require.NoError(t, cfg.Validate())

	cfg = base()
	cfg.RateLimit.KeyStrategy = "cookie"
	require.Error(t, cfg.Validate())
}

func TestLoadDotEnvSkipsMissingAndKeepsExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("FOLIO_TEST_DOTENV_A=from-file\nFOLIO_TEST_DOTENV_B=from-file\n"), 0o600))

	t.Setenv("FOLIO_TEST_DOTENV_A", "from-shell")
	require.NoError(t, os.Unsetenv("FOLIO_TEST_DOTENV_B"))
	t.Cleanup(func() { _ = os.Unsetenv("FOLIO_TEST_DOTENV_B") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "from-shell", os.Getenv("FOLIO_TEST_DOTENV_A"))
	assert.Equal(t, "from-file", os.Getenv("FOLIO_TEST_DOTENV_B"))
}

func TestLoadFromTrustedProxiesEnv(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("FOLIO_SERVER_TRUSTED_PROXIES", "10.0.0.0/8,192.0.2.1")

	cfg, err := LoadFrom(newTestViper(t), "FOLIO_")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.1"}, cfg.Server.TrustedProxies)
}
