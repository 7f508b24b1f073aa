// Package main provides the entry point for the alias daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/sipico/alias-relay/internal/addy"
	"github.com/sipico/alias-relay/internal/api"
	"github.com/sipico/alias-relay/internal/cache"
	"github.com/sipico/alias-relay/internal/config"
	"github.com/sipico/alias-relay/internal/license"
	"github.com/sipico/alias-relay/internal/localpart"
	"github.com/sipico/alias-relay/internal/metrics"
	"github.com/sipico/alias-relay/internal/orchestrator"
	"github.com/sipico/alias-relay/internal/provider"
	"github.com/sipico/alias-relay/internal/settings"
	"github.com/sipico/alias-relay/internal/simplelogin"
	"github.com/sipico/alias-relay/internal/storage"
)

const version = "2026.10.1"

const serverShutdownTimeout = 30 * time.Second

// serverComponents holds everything run needs to serve.
type serverComponents struct {
	logger       *slog.Logger
	logLevel     *slog.LevelVar
	store        *storage.SQLiteStorage
	registry     *provider.Registry
	settings     *settings.Store
	orchestrator *orchestrator.Orchestrator
	license      *license.Validator
	registerer   *prometheus.Registry
	mainRouter   http.Handler
}

func main() {
	if err := run(); err != nil {
		slog.Error("aliasd failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	components, err := initializeComponents(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := components.store.Close(); err != nil {
			components.logger.Error("failed to close storage", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := seedProviders(ctx, components.settings, cfg.Providers, cfg.ActiveProvider, components.logger); err != nil {
		return err
	}

	servers := []*http.Server{createServer(cfg.ListenAddr, components.mainRouter)}
	if cfg.MetricsListenAddr != "" {
		servers = append(servers, createServer(cfg.MetricsListenAddr, metrics.HandlerFor(components.registerer)))
	}
	return serve(ctx, components.logger, servers...)
}

// initializeComponents builds the object graph from cfg.
func initializeComponents(cfg *config.Config) (*serverComponents, error) {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logLevel := new(slog.LevelVar)
	logLevel.Set(level)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	if err := metrics.Init(reg, version); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	var encKey []byte
	if cfg.EncryptionKey != "" {
		encKey = storage.DeriveKey(cfg.EncryptionKey)
	}

	tokenHash, err := storage.HashKey(cfg.AccessToken)
	if err != nil {
		_ = store.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to hash access token: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.ProviderTimeout}
	registry := provider.NewRegistry(
		addy.NewAdapter(
			addy.WithAdapterHTTPClient(httpClient),
			addy.WithAdapterBaseURL(cfg.AddyBaseURL),
			addy.WithAdapterLogger(logger),
			addy.WithAdapterRateLimit(cfg.ProviderRateLimit),
		),
		simplelogin.NewAdapter(
			simplelogin.WithAdapterHTTPClient(httpClient),
			simplelogin.WithAdapterBaseURL(cfg.SimpleLoginBaseURL),
			simplelogin.WithAdapterLogger(logger),
			simplelogin.WithAdapterRateLimit(cfg.ProviderRateLimit),
		),
	)

	settingsStore := settings.New(store, settings.WithEncryptionKey(encKey), settings.WithLogger(logger))
	domainCache := cache.New(store, cache.WithTTL(cfg.CacheTTL), cache.WithLogger(logger))
	orch := orchestrator.New(registry, settingsStore, domainCache, orchestrator.WithLogger(logger))

	opts := []api.Option{
		api.WithLogger(logger),
		api.WithLogLevel(logLevel),
		api.WithPinger(store),
	}
	var validator *license.Validator
	if cfg.LicenseOrganizationID != "" {
		licenseOpts := []license.Option{
			license.WithStore(store, encKey),
			license.WithLogger(logger),
		}
		if cfg.LicenseAPIURL != "" {
			licenseOpts = append(licenseOpts, license.WithBaseURL(cfg.LicenseAPIURL))
		}
		validator = license.NewValidator(cfg.LicenseOrganizationID, licenseOpts...)
		opts = append(opts, api.WithLicense(validator))
	}

	handler := api.NewHandler(registry, settingsStore, orch, tokenHash, opts...)

	logger.Info("aliasd initialized",
		"version", version,
		"database", cfg.DatabasePath,
		"providers", len(registry.List()),
		"encryption", encKey != nil,
		"license", validator != nil,
	)

	return &serverComponents{
		logger:       logger,
		logLevel:     logLevel,
		store:        store,
		registry:     registry,
		settings:     settingsStore,
		orchestrator: orch,
		license:      validator,
		registerer:   reg,
		mainRouter:   handler.NewRouter(),
	}, nil
}

// seedProviders applies the config file's provider seeds to providers that
// have no token yet, then selects active when nothing is selected.
func seedProviders(ctx context.Context, store *settings.Store, seeds []config.ProviderSeed, active string, logger *slog.Logger) error {
	for _, seed := range seeds {
		id := provider.ID(seed.ID)
		cfg, err := store.Get(ctx, id)
		if err == nil && cfg.Token != "" {
			continue
		}
		if err != nil && !errors.Is(err, settings.ErrNotConfigured) {
			return err
		}
		_, err = store.Update(ctx, id, func(c *settings.ProviderConfig) error {
			c.Token = seed.Token
			c.BaseURL = seed.BaseURL
			if seed.DefaultDomain != "" {
				c.DefaultDomain = seed.DefaultDomain
			}
			if seed.ActiveFormat != "" {
				c.ActiveFormat = localpart.Strategy(seed.ActiveFormat)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("seed provider %s: %w", id, err)
		}
		logger.Info("seeded provider from config", "provider", id)
	}

	if active == "" {
		return nil
	}
	if _, err := store.Active(ctx); err == nil {
		return nil
	}
	if err := store.SetActive(ctx, provider.ID(active)); err != nil {
		return fmt.Errorf("select active provider: %w", err)
	}
	return nil
}

// createServer applies the listener timeouts.
func createServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// serve runs every server until ctx is done or one of them fails, then
// shuts all of them down.
func serve(ctx context.Context, logger *slog.Logger, servers ...*http.Server) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			logger.Info("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}
