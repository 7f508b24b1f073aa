// Package config provides configuration loading and validation from
// environment variables, an optional .env file and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the daemon configuration.
type Config struct {
	LogLevel          string // debug, info, warn, error
	ListenAddr        string // API listener, loopback by default
	MetricsListenAddr string // Prometheus listener, "" disables it
	DatabasePath      string // SQLite database path

	// AccessToken is the bearer token the extension presents. It is hashed
	// with bcrypt at startup and never stored.
	AccessToken string
	// EncryptionKey is a passphrase for provider tokens and the license key
	// at rest. Empty stores them in plain text.
	EncryptionKey string

	AddyBaseURL        string
	SimpleLoginBaseURL string
	ProviderTimeout    time.Duration
	ProviderRateLimit  int // requests per second per provider client, 0 disables
	CacheTTL           time.Duration

	LicenseAPIURL         string
	LicenseOrganizationID string

	// Providers are applied once at startup to providers that have no token.
	Providers      []ProviderSeed
	ActiveProvider string
}

// ProviderSeed preconfigures one provider from the config file.
type ProviderSeed struct {
	ID            string `yaml:"id"`
	Token         string `yaml:"token"`
	BaseURL       string `yaml:"base_url"`
	DefaultDomain string `yaml:"default_domain"`
	ActiveFormat  string `yaml:"active_format"`
}

// file mirrors the YAML schema read from ALIASD_CONFIG.
type file struct {
	LogLevel          string  `yaml:"log_level"`
	ListenAddr        string  `yaml:"listen_addr"`
	MetricsListenAddr *string `yaml:"metrics_listen_addr"`
	DatabasePath      string  `yaml:"database_path"`
	Providers         struct {
		AddyBaseURL        string         `yaml:"addy_base_url"`
		SimpleLoginBaseURL string         `yaml:"simplelogin_base_url"`
		Timeout            string         `yaml:"timeout"`
		RateLimit          *int           `yaml:"rate_limit"`
		Active             string         `yaml:"active"`
		Seed               []ProviderSeed `yaml:"seed"`
	} `yaml:"providers"`
	License struct {
		APIURL         string `yaml:"api_url"`
		OrganizationID string `yaml:"organization_id"`
	} `yaml:"license"`
	CacheTTL string `yaml:"cache_ttl"`
}

// Defaults.
const (
	DefaultListenAddr        = "127.0.0.1:7431"
	DefaultMetricsListenAddr = "127.0.0.1:9431"
	DefaultDatabasePath      = "aliasd.db"
	DefaultProviderTimeout   = 30 * time.Second
	DefaultProviderRateLimit = 5
	DefaultCacheTTL          = time.Hour
)

// Load reads .env (when present, without overriding the environment), then
// the YAML file named by ALIASD_CONFIG, then environment overrides.
func Load() (*Config, error) {
	loadEnvFile(os.Getenv("ALIASD_ENV_FILE"))

	cfg := &Config{
		LogLevel:          "info",
		ListenAddr:        DefaultListenAddr,
		MetricsListenAddr: DefaultMetricsListenAddr,
		DatabasePath:      DefaultDatabasePath,
		ProviderTimeout:   DefaultProviderTimeout,
		ProviderRateLimit: DefaultProviderRateLimit,
		CacheTTL:          DefaultCacheTTL,
	}

	if path := os.Getenv("ALIASD_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	cfg.LogLevel = envOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.ListenAddr = envOrDefault("LISTEN_ADDR", cfg.ListenAddr)
	if v, ok := os.LookupEnv("METRICS_LISTEN_ADDR"); ok {
		cfg.MetricsListenAddr = v
	}
	cfg.DatabasePath = envOrDefault("DATABASE_PATH", cfg.DatabasePath)
	cfg.AccessToken = envOrDefault("ALIASD_ACCESS_TOKEN", cfg.AccessToken)
	cfg.EncryptionKey = envOrDefault("ALIASD_ENCRYPTION_KEY", cfg.EncryptionKey)
	cfg.AddyBaseURL = envOrDefault("ADDY_API_URL", cfg.AddyBaseURL)
	cfg.SimpleLoginBaseURL = envOrDefault("SIMPLELOGIN_API_URL", cfg.SimpleLoginBaseURL)
	cfg.LicenseAPIURL = envOrDefault("LICENSE_API_URL", cfg.LicenseAPIURL)
	cfg.LicenseOrganizationID = envOrDefault("LICENSE_ORGANIZATION_ID", cfg.LicenseOrganizationID)
	cfg.ActiveProvider = envOrDefault("ACTIVE_PROVIDER", cfg.ActiveProvider)

	var err error
	if cfg.ProviderTimeout, err = envDuration("PROVIDER_TIMEOUT", cfg.ProviderTimeout); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = envDuration("CACHE_TTL", cfg.CacheTTL); err != nil {
		return nil, err
	}
	if raw := os.Getenv("PROVIDER_RATE_LIMIT"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("PROVIDER_RATE_LIMIT: %w", err)
		}
		cfg.ProviderRateLimit = n
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if f.LogLevel != "" {
		c.LogLevel = f.LogLevel
	}
	if f.ListenAddr != "" {
		c.ListenAddr = f.ListenAddr
	}
	if f.MetricsListenAddr != nil {
		c.MetricsListenAddr = *f.MetricsListenAddr
	}
	if f.DatabasePath != "" {
		c.DatabasePath = f.DatabasePath
	}
	if f.Providers.AddyBaseURL != "" {
		c.AddyBaseURL = f.Providers.AddyBaseURL
	}
	if f.Providers.SimpleLoginBaseURL != "" {
		c.SimpleLoginBaseURL = f.Providers.SimpleLoginBaseURL
	}
	if f.Providers.Timeout != "" {
		d, err := time.ParseDuration(f.Providers.Timeout)
		if err != nil {
			return fmt.Errorf("providers.timeout: %w", err)
		}
		c.ProviderTimeout = d
	}
	if f.Providers.RateLimit != nil {
		c.ProviderRateLimit = *f.Providers.RateLimit
	}
	if f.CacheTTL != "" {
		d, err := time.ParseDuration(f.CacheTTL)
		if err != nil {
			return fmt.Errorf("cache_ttl: %w", err)
		}
		c.CacheTTL = d
	}
	c.ActiveProvider = f.Providers.Active
	c.Providers = f.Providers.Seed
	c.LicenseAPIURL = f.License.APIURL
	c.LicenseOrganizationID = f.License.OrganizationID
	return nil
}

// Validate checks all configuration constraints.
func (c *Config) Validate() error {
	var errs []error
	if c.AccessToken == "" {
		errs = append(errs, errors.New("ALIASD_ACCESS_TOKEN environment variable is required"))
	} else if len(c.AccessToken) < 16 {
		errs = append(errs, errors.New("ALIASD_ACCESS_TOKEN must be at least 16 characters"))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("LISTEN_ADDR must not be empty"))
	}
	if c.ProviderTimeout <= 0 {
		errs = append(errs, errors.New("PROVIDER_TIMEOUT must be positive"))
	}
	if c.ProviderRateLimit < 0 {
		errs = append(errs, errors.New("PROVIDER_RATE_LIMIT must not be negative"))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, errors.New("CACHE_TTL must be positive"))
	}
	for i, p := range c.Providers {
		if p.ID != "addy" && p.ID != "simplelogin" {
			errs = append(errs, fmt.Errorf("providers.seed[%d]: unknown provider %q", i, p.ID))
		}
	}
	return errors.Join(errs...)
}

// ParseLogLevel maps a level name to slog.Level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
}

// loadEnvFile loads path, or .env when path is empty. A missing file is
// ignored and variables already in the environment win.
func loadEnvFile(path string) {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}

func envOrDefault(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return d, nil
}
