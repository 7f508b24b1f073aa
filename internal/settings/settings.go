// Package settings persists per-provider configuration and the active
// provider in the multiProviderSettings blob.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/sipico/alias-relay/internal/localpart"
	"github.com/sipico/alias-relay/internal/provider"
	"github.com/sipico/alias-relay/internal/storage"
)

var (
	// ErrNotConfigured is returned when a provider has no stored config.
	ErrNotConfigured = errors.New("settings: provider not configured")

	// ErrNoActiveProvider is returned when no provider is selected.
	ErrNoActiveProvider = errors.New("settings: no active provider")

	// ErrProviderDisabled is returned when selecting a disabled provider.
	ErrProviderDisabled = errors.New("settings: provider is disabled")
)

// ProviderConfig is the stored configuration of one provider.
type ProviderConfig struct {
	ID                     provider.ID        `json:"id"`
	Enabled                bool               `json:"enabled"`
	Token                  string             `json:"token,omitempty"`
	BaseURL                string             `json:"baseUrl,omitempty"`
	DefaultDomain          string             `json:"defaultDomain,omitempty"`
	ActiveFormat           localpart.Strategy `json:"activeFormat"`
	CustomRule             *localpart.Rule    `json:"customRule,omitempty"`
	WaitServerConfirmation bool               `json:"waitServerConfirmation,omitempty"`
	DomainCatchAllStatus   map[string]bool    `json:"domainCatchAllStatus"`
	CachedDomains          []string           `json:"cachedDomains,omitempty"`
	FavoriteDomains        []string           `json:"favoriteDomains,omitempty"`
}

// Clone returns a deep copy of c.
func (c *ProviderConfig) Clone() *ProviderConfig {
	out := *c
	if c.CustomRule != nil {
		rule := *c.CustomRule
		out.CustomRule = &rule
	}
	out.DomainCatchAllStatus = make(map[string]bool, len(c.DomainCatchAllStatus))
	for k, v := range c.DomainCatchAllStatus {
		out.DomainCatchAllStatus[k] = v
	}
	out.CachedDomains = append([]string(nil), c.CachedDomains...)
	out.FavoriteDomains = append([]string(nil), c.FavoriteDomains...)
	return &out
}

// CatchAll returns the mirrored catch-all state of domain.
func (c *ProviderConfig) CatchAll(domain string) provider.CatchAll {
	v, ok := c.DomainCatchAllStatus[normalizeDomain(domain)]
	if !ok {
		return provider.CatchAllUnknown
	}
	return provider.CatchAllFromBool(v)
}

func defaultConfig(id provider.ID) *ProviderConfig {
	return &ProviderConfig{
		ID:                   id,
		Enabled:              true,
		ActiveFormat:         localpart.StrategyRandom,
		DomainCatchAllStatus: map[string]bool{},
	}
}

// document is the persisted blob.
type document struct {
	ActiveProvider provider.ID                     `json:"activeProvider,omitempty"`
	Providers      map[provider.ID]*ProviderConfig `json:"providers"`
}

// Store reads and writes provider settings.
type Store struct {
	store  storage.Store
	key    []byte
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithEncryptionKey encrypts tokens at rest with AES-256-GCM.
func WithEncryptionKey(key []byte) Option {
	return func(s *Store) {
		s.key = key
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a settings Store on top of a blob store.
func New(store storage.Store, opts ...Option) *Store {
	s := &Store{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the configuration of id.
func (s *Store) Get(ctx context.Context, id provider.ID) (*ProviderConfig, error) {
	doc, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	cfg, ok := doc.Providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, id)
	}
	return cfg, nil
}

// List returns every configured provider ordered by ID.
func (s *Store) List(ctx context.Context) ([]*ProviderConfig, error) {
	doc, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*ProviderConfig, 0, len(doc.Providers))
	for _, cfg := range doc.Providers {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Update applies fn to the configuration of id, creating a default one when
// absent, validates the result and writes the whole blob back atomically.
// Changes to other providers made concurrently are preserved.
func (s *Store) Update(ctx context.Context, id provider.ID, fn func(*ProviderConfig) error) (*ProviderConfig, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("%w: %s", provider.ErrUnknownProvider, id)
	}

	var updated *ProviderConfig
	err := s.mutate(ctx, func(doc *document) error {
		cfg, ok := doc.Providers[id]
		if !ok {
			cfg = defaultConfig(id)
		}
		next := cfg.Clone()
		if err := fn(next); err != nil {
			return err
		}
		next.ID = id
		if err := Normalize(next); err != nil {
			return err
		}
		doc.Providers[id] = next
		if doc.ActiveProvider == id && !next.Enabled {
			doc.ActiveProvider = ""
		}
		updated = next.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Remove deletes the configuration of id. Removing the active provider
// clears the selection.
func (s *Store) Remove(ctx context.Context, id provider.ID) error {
	return s.mutate(ctx, func(doc *document) error {
		if _, ok := doc.Providers[id]; !ok {
			return fmt.Errorf("%w: %s", ErrNotConfigured, id)
		}
		delete(doc.Providers, id)
		if doc.ActiveProvider == id {
			doc.ActiveProvider = ""
		}
		return nil
	})
}

// Active returns the configuration of the selected provider.
func (s *Store) Active(ctx context.Context) (*ProviderConfig, error) {
	doc, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if doc.ActiveProvider == "" {
		return nil, ErrNoActiveProvider
	}
	cfg, ok := doc.Providers[doc.ActiveProvider]
	if !ok {
		return nil, ErrNoActiveProvider
	}
	return cfg, nil
}

// SetActive selects id. It must be configured and enabled.
func (s *Store) SetActive(ctx context.Context, id provider.ID) error {
	return s.mutate(ctx, func(doc *document) error {
		cfg, ok := doc.Providers[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotConfigured, id)
		}
		if !cfg.Enabled {
			return fmt.Errorf("%w: %s", ErrProviderDisabled, id)
		}
		doc.ActiveProvider = id
		return nil
	})
}

// SetCatchAll mirrors a resolved catch-all state into the provider config so
// every surface shows the same answer. Unknown removes the domain.
func (s *Store) SetCatchAll(ctx context.Context, id provider.ID, domain string, status provider.CatchAll) error {
	domain = normalizeDomain(domain)
	if domain == "" {
		return nil
	}
	return s.mutate(ctx, func(doc *document) error {
		cfg, ok := doc.Providers[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotConfigured, id)
		}
		if cfg.DomainCatchAllStatus == nil {
			cfg.DomainCatchAllStatus = map[string]bool{}
		}
		if v, known := status.Bool(); known {
			cfg.DomainCatchAllStatus[domain] = v
		} else {
			delete(cfg.DomainCatchAllStatus, domain)
		}
		return nil
	})
}

// SetCachedDomains mirrors the last fetched domain list.
func (s *Store) SetCachedDomains(ctx context.Context, id provider.ID, domains []string) error {
	return s.mutate(ctx, func(doc *document) error {
		cfg, ok := doc.Providers[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotConfigured, id)
		}
		cfg.CachedDomains = append([]string(nil), domains...)
		return nil
	})
}

func (s *Store) load(ctx context.Context) (*document, error) {
	raw, err := s.store.Get(ctx, storage.KeySettings)
	if errors.Is(err, storage.ErrNotFound) {
		return emptyDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("settings: load: %w", err)
	}
	return s.decode(raw)
}

func (s *Store) mutate(ctx context.Context, fn func(doc *document) error) error {
	return s.store.Update(ctx, storage.KeySettings, func(current []byte) ([]byte, error) {
		doc := emptyDocument()
		if current != nil {
			var err error
			if doc, err = s.decode(current); err != nil {
				return nil, err
			}
		}
		if err := fn(doc); err != nil {
			return nil, err
		}
		return s.encode(doc)
	})
}

func emptyDocument() *document {
	return &document{Providers: map[provider.ID]*ProviderConfig{}}
}

func (s *Store) decode(raw []byte) (*document, error) {
	doc := emptyDocument()
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("settings: corrupt blob: %w", err)
	}
	if doc.Providers == nil {
		doc.Providers = map[provider.ID]*ProviderConfig{}
	}
	for id, cfg := range doc.Providers {
		if cfg == nil {
			delete(doc.Providers, id)
			continue
		}
		cfg.ID = id
		if cfg.DomainCatchAllStatus == nil {
			cfg.DomainCatchAllStatus = map[string]bool{}
		}
		token, err := storage.DecryptSecret(cfg.Token, s.key)
		if err != nil {
			return nil, fmt.Errorf("settings: token of %s: %w", id, err)
		}
		cfg.Token = token
	}
	return doc, nil
}

func (s *Store) encode(doc *document) ([]byte, error) {
	out := &document{
		ActiveProvider: doc.ActiveProvider,
		Providers:      make(map[provider.ID]*ProviderConfig, len(doc.Providers)),
	}
	for id, cfg := range doc.Providers {
		stored := cfg.Clone()
		if s.key != nil && stored.Token != "" {
			enc, err := storage.EncryptSecret(stored.Token, s.key)
			if err != nil {
				return nil, fmt.Errorf("settings: encrypt token of %s: %w", id, err)
			}
			stored.Token = enc
		}
		out.Providers[id] = stored
	}
	return json.Marshal(out)
}
