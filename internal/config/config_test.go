package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var configEnv = []string{
	"METRICS_LISTEN_ADDR", "LOG_LEVEL", "LISTEN_ADDR", "DATABASE_PATH", "ALIASD_ACCESS_TOKEN",
	"ALIASD_ENCRYPTION_KEY", "ADDY_API_URL", "SIMPLELOGIN_API_URL",
	"LICENSE_API_URL", "LICENSE_ORGANIZATION_ID", "ACTIVE_PROVIDER",
	"PROVIDER_TIMEOUT", "CACHE_TTL", "PROVIDER_RATE_LIMIT", "ALIASD_CONFIG",
}

// clearEnv unsets every config variable for the duration of the test.
// Unset and empty differ for METRICS_LISTEN_ADDR and for godotenv, which
// never overrides a variable that exists.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range configEnv {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
	t.Setenv("ALIASD_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	require.Equal(t, DefaultMetricsListenAddr, cfg.MetricsListenAddr)
	require.Equal(t, DefaultDatabasePath, cfg.DatabasePath)
	require.Equal(t, DefaultProviderTimeout, cfg.ProviderTimeout)
	require.Equal(t, DefaultProviderRateLimit, cfg.ProviderRateLimit)
	require.Equal(t, DefaultCacheTTL, cfg.CacheTTL)
	require.Empty(t, cfg.AddyBaseURL)
	require.Empty(t, cfg.Providers)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LISTEN_ADDR", "127.0.0.1:9000")
	t.Setenv("METRICS_LISTEN_ADDR", "")
	t.Setenv("DATABASE_PATH", "/tmp/aliasd.db")
	t.Setenv("ADDY_API_URL", "http://mockaddy:8081")
	t.Setenv("PROVIDER_TIMEOUT", "5s")
	t.Setenv("PROVIDER_RATE_LIMIT", "0")
	t.Setenv("CACHE_TTL", "10m")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	require.Empty(t, cfg.MetricsListenAddr, "an explicit empty value disables metrics")
	require.Equal(t, "/tmp/aliasd.db", cfg.DatabasePath)
	require.Equal(t, "http://mockaddy:8081", cfg.AddyBaseURL)
	require.Equal(t, 5*time.Second, cfg.ProviderTimeout)
	require.Equal(t, 0, cfg.ProviderRateLimit)
	require.Equal(t, 10*time.Minute, cfg.CacheTTL)
}

func TestLoad_InvalidNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROVIDER_TIMEOUT", "soon")
	_, err := Load()
	require.ErrorContains(t, err, "PROVIDER_TIMEOUT")

	clearEnv(t)
	t.Setenv("PROVIDER_RATE_LIMIT", "many")
	_, err = Load()
	require.ErrorContains(t, err, "PROVIDER_RATE_LIMIT")
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("DATABASE_PATH=/from/envfile.db\nLOG_LEVEL=warn\n"), 0o600))
	t.Setenv("ALIASD_ENV_FILE", path)
	t.Setenv("LOG_LEVEL", "error")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "/from/envfile.db", cfg.DatabasePath)
	require.Equal(t, "error", cfg.LogLevel, "existing environment wins over .env")
}

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "aliasd.yaml")
	doc := `
log_level: warn
listen_addr: 127.0.0.1:8000
metrics_listen_addr: ""
database_path: /var/lib/aliasd.db
cache_ttl: 30m
providers:
  addy_base_url: https://addy.example.com
  timeout: 12s
  rate_limit: 2
  active: addy
  seed:
    - id: addy
      token: addy-token
      default_domain: anonaddy.me
    - id: simplelogin
      token: sl-key
      base_url: https://sl.example.com/api
license:
  organization_id: org-9
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	t.Setenv("ALIASD_CONFIG", path)
	t.Setenv("LISTEN_ADDR", "127.0.0.1:8001")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "warn", cfg.LogLevel)
	require.Equal(t, "127.0.0.1:8001", cfg.ListenAddr, "environment overrides the file")
	require.Empty(t, cfg.MetricsListenAddr)
	require.Equal(t, "/var/lib/aliasd.db", cfg.DatabasePath)
	require.Equal(t, 30*time.Minute, cfg.CacheTTL)
	require.Equal(t, "https://addy.example.com", cfg.AddyBaseURL)
	require.Equal(t, 12*time.Second, cfg.ProviderTimeout)
	require.Equal(t, 2, cfg.ProviderRateLimit)
	require.Equal(t, "addy", cfg.ActiveProvider)
	require.Equal(t, "org-9", cfg.LicenseOrganizationID)
	require.Equal(t, []ProviderSeed{
		{ID: "addy", Token: "addy-token", DefaultDomain: "anonaddy.me"},
		{ID: "simplelogin", Token: "sl-key", BaseURL: "https://sl.example.com/api"},
	}, cfg.Providers)
}

func TestLoad_YAMLErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("ALIASD_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := Load()
	require.ErrorContains(t, err, "read config file")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("providers: [unterminated"), 0o600))
	t.Setenv("ALIASD_CONFIG", path)
	_, err = Load()
	require.ErrorContains(t, err, "parse config file")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			LogLevel:          "info",
			ListenAddr:        DefaultListenAddr,
			AccessToken:       "0123456789abcdef",
			ProviderTimeout:   time.Second,
			ProviderRateLimit: 1,
			CacheTTL:          time.Hour,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing token", mutate: func(c *Config) { c.AccessToken = "" }, wantErr: "ALIASD_ACCESS_TOKEN environment variable is required"},
		{name: "short token", mutate: func(c *Config) { c.AccessToken = "short" }, wantErr: "at least 16"},
		{name: "bad level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "invalid log level"},
		{name: "empty listen", mutate: func(c *Config) { c.ListenAddr = "" }, wantErr: "LISTEN_ADDR"},
		{name: "zero timeout", mutate: func(c *Config) { c.ProviderTimeout = 0 }, wantErr: "PROVIDER_TIMEOUT"},
		{name: "negative rate", mutate: func(c *Config) { c.ProviderRateLimit = -1 }, wantErr: "PROVIDER_RATE_LIMIT"},
		{name: "zero ttl", mutate: func(c *Config) { c.CacheTTL = 0 }, wantErr: "CACHE_TTL"},
		{name: "unknown seed", mutate: func(c *Config) { c.Providers = []ProviderSeed{{ID: "duck"}} }, wantErr: `unknown provider "duck"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLogLevel(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseLogLevel("verbose")
	require.Error(t, err)
}
