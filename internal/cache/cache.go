// Package cache keeps resolved domain lists and per-domain catch-all flags
// for each provider account, with a fixed time to live.
//
// The whole cache is one JSON blob in the key/value store. Every mutation
// is a read-merge-write of that blob, so concurrent writers (popup and
// settings page) never drop each other's unrelated keys.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sipico/alias-relay/internal/metrics"
	"github.com/sipico/alias-relay/internal/provider"
	"github.com/sipico/alias-relay/internal/storage"
)

// DefaultTTL is how long an entry stays valid after it was written.
const DefaultTTL = time.Hour

// tokenPrefixLen is how much of the credential is kept in a cache key.
const tokenPrefixLen = 8

// Entry is the cached state of one provider account.
type Entry struct {
	Domains        []string        `json:"domains"`
	CatchAllStatus map[string]bool `json:"catchAllStatus,omitempty"`
	// Timestamp is the write time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// Cache is the domain / catch-all cache.
type Cache struct {
	store  storage.Store
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	// mu serialises in-process mutations; Store.Update covers the rest.
	mu sync.Mutex
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithLogger sets the logger used for storage failures.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// New creates a Cache persisted in store.
func New(store storage.Store, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key binds a provider to the first 8 characters of its token. The full
// token never appears in the cache index.
func Key(p provider.ID, token string) string {
	prefix := token
	if len(prefix) > tokenPrefixLen {
		prefix = prefix[:tokenPrefixLen]
	}
	return string(p) + ":" + prefix
}

// GetDomains returns the cached domain list. ok is false on a miss or when
// the entry expired; expired entries are deleted before returning.
func (c *Cache) GetDomains(ctx context.Context, p provider.ID, token string) (domains []string, ok bool) {
	entry, found := c.lookup(ctx, Key(p, token))
	if !found || entry.Domains == nil {
		metrics.RecordCacheLookup("domains", "miss")
		return nil, false
	}
	metrics.RecordCacheLookup("domains", "hit")
	return append([]string(nil), entry.Domains...), true
}

// SetDomains stores the domain list and refreshes the entry timestamp.
// A still valid catch-all map for the same key is preserved.
func (c *Cache) SetDomains(ctx context.Context, p provider.ID, token string, domains []string) error {
	key := Key(p, token)
	return c.mutate(ctx, func(entries map[string]Entry, now time.Time) {
		next := Entry{
			Domains:   append([]string{}, domains...),
			Timestamp: now.UnixMilli(),
		}
		if old, ok := entries[key]; ok && !c.expired(old, now) {
			next.CatchAllStatus = old.CatchAllStatus
		}
		entries[key] = next
	})
}

// GetCatchAll returns the cached flag for domain, or CatchAllUnknown on a
// miss. A stored false is returned as CatchAllDisabled.
func (c *Cache) GetCatchAll(ctx context.Context, p provider.ID, token, domain string) provider.CatchAll {
	entry, found := c.lookup(ctx, Key(p, token))
	if !found {
		metrics.RecordCacheLookup("catch_all", "miss")
		return provider.CatchAllUnknown
	}
	v, ok := entry.CatchAllStatus[domain]
	if !ok {
		metrics.RecordCacheLookup("catch_all", "miss")
		return provider.CatchAllUnknown
	}
	metrics.RecordCacheLookup("catch_all", "hit")
	return provider.CatchAllFromBool(v)
}

// SetCatchAll records the flag for domain. Setting CatchAllUnknown removes
// the domain's flag. An existing valid entry keeps its timestamp so that
// the domain list does not outlive its TTL.
func (c *Cache) SetCatchAll(ctx context.Context, p provider.ID, token, domain string, status provider.CatchAll) error {
	key := Key(p, token)
	return c.mutate(ctx, func(entries map[string]Entry, now time.Time) {
		entry, ok := entries[key]
		if !ok || c.expired(entry, now) {
			entry = Entry{Timestamp: now.UnixMilli()}
		}

		flags := make(map[string]bool, len(entry.CatchAllStatus)+1)
		for d, v := range entry.CatchAllStatus {
			flags[d] = v
		}
		if v, known := status.Bool(); known {
			flags[domain] = v
		} else {
			delete(flags, domain)
		}
		entry.CatchAllStatus = flags
		entries[key] = entry
	})
}

// Invalidate drops everything cached for the provider account.
func (c *Cache) Invalidate(ctx context.Context, p provider.ID, token string) error {
	key := Key(p, token)
	return c.mutate(ctx, func(entries map[string]Entry, _ time.Time) {
		delete(entries, key)
	})
}

// lookup reads one entry and purges it when it has expired.
func (c *Cache) lookup(ctx context.Context, key string) (Entry, bool) {
	entries, err := c.load(ctx)
	if err != nil {
		c.logger.Warn("domain cache read failed", "key", key, "error", err)
		return Entry{}, false
	}

	entry, ok := entries[key]
	if !ok {
		return Entry{}, false
	}

	now := c.now()
	if c.expired(entry, now) {
		err := c.mutate(ctx, func(entries map[string]Entry, now time.Time) {
			// Another writer may have refreshed it meanwhile.
			if e, ok := entries[key]; ok && c.expired(e, now) {
				delete(entries, key)
			}
		})
		if err != nil {
			c.logger.Warn("domain cache purge failed", "key", key, "error", err)
		}
		return Entry{}, false
	}
	return entry, true
}

func (c *Cache) expired(e Entry, now time.Time) bool {
	return now.Sub(time.UnixMilli(e.Timestamp)) > c.ttl
}

func (c *Cache) load(ctx context.Context) (map[string]Entry, error) {
	raw, err := c.store.Get(ctx, storage.KeyDomainCache)
	if errors.Is(err, storage.ErrNotFound) {
		return map[string]Entry{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

func (c *Cache) mutate(ctx context.Context, fn func(entries map[string]Entry, now time.Time)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.store.Update(ctx, storage.KeyDomainCache, func(current []byte) ([]byte, error) {
		entries, err := decode(current)
		if err != nil {
			// A corrupt blob is rebuilt rather than blocking every write.
			c.logger.Warn("discarding unreadable domain cache", "error", err)
			entries = map[string]Entry{}
		}
		fn(entries, c.now())
		if len(entries) == 0 {
			return nil, nil
		}
		return json.Marshal(entries)
	})
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return nil
}

func decode(raw []byte) (map[string]Entry, error) {
	entries := map[string]Entry{}
	if len(raw) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode domain cache: %w", err)
	}
	return entries, nil
}
