// Package orchestrator decides how an alias is produced for the active
// provider and carries out the creation, combining the provider registry,
// the settings store, the domain cache and the local part generator.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/sipico/alias-relay/internal/cache"
	"github.com/sipico/alias-relay/internal/localpart"
	"github.com/sipico/alias-relay/internal/provider"
	"github.com/sipico/alias-relay/internal/settings"
)

var (
	// ErrNoToken is returned when the provider has no API token configured.
	ErrNoToken = errors.New("orchestrator: provider has no API token")

	// ErrNoDomain is returned when no domain is configured or available.
	ErrNoDomain = errors.New("orchestrator: no domain available")
)

// Orchestrator composes the alias generation flow.
type Orchestrator struct {
	registry  *provider.Registry
	settings  *settings.Store
	cache     *cache.Cache
	generator *localpart.Generator
	logger    *slog.Logger

	domainFetches singleflight.Group
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithGenerator sets the local part generator.
func WithGenerator(g *localpart.Generator) Option {
	return func(o *Orchestrator) {
		o.generator = g
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// New creates an Orchestrator.
func New(registry *provider.Registry, store *settings.Store, c *cache.Cache, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:  registry,
		settings:  store,
		cache:     c,
		generator: localpart.New(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// resolve loads the configuration and adapter of id, or of the active
// provider when id is empty.
func (o *Orchestrator) resolve(ctx context.Context, id provider.ID) (*settings.ProviderConfig, provider.Provider, error) {
	var (
		cfg *settings.ProviderConfig
		err error
	)
	if id == "" {
		cfg, err = o.settings.Active(ctx)
	} else {
		cfg, err = o.settings.Get(ctx, id)
	}
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Enabled {
		return nil, nil, fmt.Errorf("%w: %s", settings.ErrProviderDisabled, cfg.ID)
	}
	if cfg.Token == "" {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoToken, cfg.ID)
	}
	p, err := o.registry.Get(cfg.ID)
	if err != nil {
		return nil, nil, err
	}
	return cfg, p, nil
}

// Verify checks a token against the provider. An empty token verifies the
// stored one.
func (o *Orchestrator) Verify(ctx context.Context, id provider.ID, token, baseURL string) (bool, error) {
	p, err := o.registry.Get(id)
	if err != nil {
		return false, err
	}
	if token == "" {
		cfg, err := o.settings.Get(ctx, id)
		if err != nil {
			return false, err
		}
		if cfg.Token == "" {
			return false, fmt.Errorf("%w: %s", ErrNoToken, id)
		}
		token, baseURL = cfg.Token, cfg.BaseURL
	}
	return p.VerifyToken(ctx, token, baseURL), nil
}

// Domains returns the sendable domains of a provider. Cached lists are used
// unless refresh is set. Concurrent fetches for the same account share one
// upstream round trip. Incomplete lists are returned but never cached.
func (o *Orchestrator) Domains(ctx context.Context, id provider.ID, refresh bool) ([]string, error) {
	cfg, p, err := o.resolve(ctx, id)
	if err != nil {
		return nil, err
	}

	if !refresh {
		if domains, ok := o.cache.GetDomains(ctx, cfg.ID, cfg.Token); ok {
			return domains, nil
		}
	}

	v, err, _ := o.domainFetches.Do(cache.Key(cfg.ID, cfg.Token), func() (any, error) {
		domains, complete := p.Domains(ctx, cfg.Token, cfg.BaseURL)
		if !complete {
			o.logger.Warn("domain lookup incomplete, not caching", "provider", cfg.ID, "domains", len(domains))
			return domains, nil
		}
		if err := o.cache.SetDomains(ctx, cfg.ID, cfg.Token, domains); err != nil {
			o.logger.Warn("failed to cache domains", "provider", cfg.ID, "error", err)
		}
		if err := o.settings.SetCachedDomains(ctx, cfg.ID, domains); err != nil {
			o.logger.Warn("failed to mirror domains into settings", "provider", cfg.ID, "error", err)
		}
		return domains, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]string(nil), v.([]string)...), nil
}

// CatchAll returns the catch-all state of domain, from the cache or by
// resolving it. Known answers are written to the cache and mirrored into the
// provider settings. Providers without catch-all semantics yield Unknown.
func (o *Orchestrator) CatchAll(ctx context.Context, id provider.ID, domain string) (provider.CatchAll, error) {
	cfg, p, err := o.resolve(ctx, id)
	if err != nil {
		return provider.CatchAllUnknown, err
	}
	return o.catchAll(ctx, cfg, p, domain), nil
}

func (o *Orchestrator) catchAll(ctx context.Context, cfg *settings.ProviderConfig, p provider.Provider, domain string) provider.CatchAll {
	domain = normalizeDomain(domain)
	if !p.Capabilities().CatchAll || domain == "" {
		return provider.CatchAllUnknown
	}

	if status := o.cache.GetCatchAll(ctx, cfg.ID, cfg.Token, domain); status.Known() {
		return status
	}

	details := p.ResolveDomain(ctx, cfg.Token, cfg.BaseURL, domain)
	if details == nil {
		o.logger.Debug("domain not recognised", "provider", cfg.ID, "domain", domain)
		return provider.CatchAllUnknown
	}
	if details.CatchAll.Known() {
		o.remember(ctx, cfg, domain, details.CatchAll)
	}
	return details.CatchAll
}

func (o *Orchestrator) remember(ctx context.Context, cfg *settings.ProviderConfig, domain string, status provider.CatchAll) {
	if err := o.cache.SetCatchAll(ctx, cfg.ID, cfg.Token, domain, status); err != nil {
		o.logger.Warn("failed to cache catch-all state", "provider", cfg.ID, "domain", domain, "error", err)
	}
	if err := o.settings.SetCatchAll(ctx, cfg.ID, domain, status); err != nil {
		o.logger.Warn("failed to mirror catch-all state", "provider", cfg.ID, "domain", domain, "error", err)
	}
}

// InvalidateCache drops the cached domains and catch-all states of id.
func (o *Orchestrator) InvalidateCache(ctx context.Context, id provider.ID) error {
	cfg, err := o.settings.Get(ctx, id)
	if err != nil {
		return err
	}
	if cfg.Token == "" {
		return nil
	}
	return o.cache.Invalidate(ctx, cfg.ID, cfg.Token)
}

// domainFor returns the configured default domain, or the first available
// one.
func (o *Orchestrator) domainFor(ctx context.Context, cfg *settings.ProviderConfig) (string, error) {
	if cfg.DefaultDomain != "" {
		return cfg.DefaultDomain, nil
	}
	domains, err := o.Domains(ctx, cfg.ID, false)
	if err != nil {
		return "", err
	}
	if len(domains) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoDomain, cfg.ID)
	}
	return domains[0], nil
}

// normalizeDomain drops surrounding space and a leading "@" and lower-cases
// the rest, matching the keys settings uses.
func normalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(domain), "@"))
}
