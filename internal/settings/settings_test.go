package settings

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipico/alias-relay/internal/localpart"
	"github.com/sipico/alias-relay/internal/provider"
	"github.com/sipico/alias-relay/internal/storage"
	"github.com/sipico/alias-relay/internal/testutil/mockstore"
)

func TestGetUnconfigured(t *testing.T) {
	t.Parallel()
	s := New(mockstore.New())

	_, err := s.Get(context.Background(), provider.Addy)
	require.ErrorIs(t, err, ErrNotConfigured)

	list, err := s.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestUpdateCreatesDefaults(t *testing.T) {
	t.Parallel()
	s := New(mockstore.New())
	ctx := context.Background()

	cfg, err := s.Update(ctx, provider.Addy, func(c *ProviderConfig) error {
		c.Token = "  tok-123456789  "
		c.DefaultDomain = "@Example.COM"
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, provider.Addy, cfg.ID)
	require.True(t, cfg.Enabled)
	require.Equal(t, localpart.StrategyRandom, cfg.ActiveFormat)
	require.Equal(t, "tok-123456789", cfg.Token)
	require.Equal(t, "example.com", cfg.DefaultDomain)

	got, err := s.Get(ctx, provider.Addy)
	require.NoError(t, err)
	require.Equal(t, cfg, got)
}

func TestUpdateRejectsUnknownProvider(t *testing.T) {
	t.Parallel()
	s := New(mockstore.New())

	_, err := s.Update(context.Background(), provider.ID("fastmail"), func(*ProviderConfig) error { return nil })
	require.ErrorIs(t, err, provider.ErrUnknownProvider)
}

func TestUpdateCallbackErrorLeavesStoreUntouched(t *testing.T) {
	t.Parallel()
	store := mockstore.New()
	s := New(store)
	ctx := context.Background()

	boom := errors.New("boom")
	_, err := s.Update(ctx, provider.Addy, func(*ProviderConfig) error { return boom })
	require.ErrorIs(t, err, boom)
	require.Empty(t, store.Keys())
}

func TestCustomRuleValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		rule    localpart.Rule
		want    localpart.Rule
		wantErr bool
	}{
		{
			name: "text sanitised",
			rule: localpart.Rule{PrefixType: localpart.PartText, PrefixText: "shop-2024!", SuffixType: localpart.PartText, SuffixText: "ä x@y", Separator: "."},
			want: localpart.Rule{PrefixType: localpart.PartText, PrefixText: "shop2024", SuffixType: localpart.PartText, SuffixText: "xy", Separator: "."},
		},
		{
			name: "empty types become none",
			rule: localpart.Rule{Separator: "_"},
			want: localpart.Rule{PrefixType: localpart.PartNone, SuffixType: localpart.PartNone, Separator: "_"},
		},
		{
			name:    "bad separator",
			rule:    localpart.Rule{Separator: "+"},
			wantErr: true,
		},
		{
			name:    "bad part type",
			rule:    localpart.Rule{PrefixType: "hour"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := New(mockstore.New())
			cfg, err := s.Update(context.Background(), provider.Addy, func(c *ProviderConfig) error {
				rule := tt.rule
				c.ActiveFormat = localpart.StrategyCustom
				c.CustomRule = &rule
				return nil
			})
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, *cfg.CustomRule)
		})
	}
}

func TestNormalizeRejectsBadValues(t *testing.T) {
	t.Parallel()

	for _, cfg := range []*ProviderConfig{
		{ActiveFormat: "words"},
		{BaseURL: "ftp://example.com"},
		{BaseURL: "not a url"},
	} {
		require.ErrorIs(t, Normalize(cfg), ErrInvalidConfig)
	}

	cfg := &ProviderConfig{
		BaseURL:         " https://addy.example.org/ ",
		FavoriteDomains: []string{"A.org", "a.org", "", "b.org"},
	}
	require.NoError(t, Normalize(cfg))
	require.Equal(t, "https://addy.example.org/", cfg.BaseURL)
	require.Equal(t, []string{"a.org", "b.org"}, cfg.FavoriteDomains)
	require.NotNil(t, cfg.DomainCatchAllStatus)
}

func TestActiveProvider(t *testing.T) {
	t.Parallel()
	s := New(mockstore.New())
	ctx := context.Background()

	_, err := s.Active(ctx)
	require.ErrorIs(t, err, ErrNoActiveProvider)

	require.ErrorIs(t, s.SetActive(ctx, provider.Addy), ErrNotConfigured)

	_, err = s.Update(ctx, provider.Addy, func(c *ProviderConfig) error { c.Enabled = false; return nil })
	require.NoError(t, err)
	require.ErrorIs(t, s.SetActive(ctx, provider.Addy), ErrProviderDisabled)

	_, err = s.Update(ctx, provider.Addy, func(c *ProviderConfig) error { c.Enabled = true; return nil })
	require.NoError(t, err)
	require.NoError(t, s.SetActive(ctx, provider.Addy))

	active, err := s.Active(ctx)
	require.NoError(t, err)
	require.Equal(t, provider.Addy, active.ID)

	// Disabling the active provider clears the selection.
	_, err = s.Update(ctx, provider.Addy, func(c *ProviderConfig) error { c.Enabled = false; return nil })
	require.NoError(t, err)
	_, err = s.Active(ctx)
	require.ErrorIs(t, err, ErrNoActiveProvider)
}

func TestRemove(t *testing.T) {
	t.Parallel()
	s := New(mockstore.New())
	ctx := context.Background()

	_, err := s.Update(ctx, provider.SimpleLogin, func(*ProviderConfig) error { return nil })
	require.NoError(t, err)
	require.NoError(t, s.SetActive(ctx, provider.SimpleLogin))

	require.NoError(t, s.Remove(ctx, provider.SimpleLogin))
	_, err = s.Get(ctx, provider.SimpleLogin)
	require.ErrorIs(t, err, ErrNotConfigured)
	_, err = s.Active(ctx)
	require.ErrorIs(t, err, ErrNoActiveProvider)

	require.ErrorIs(t, s.Remove(ctx, provider.SimpleLogin), ErrNotConfigured)
}

func TestSetCatchAllMirror(t *testing.T) {
	t.Parallel()
	s := New(mockstore.New())
	ctx := context.Background()

	require.ErrorIs(t, s.SetCatchAll(ctx, provider.Addy, "x.org", provider.CatchAllEnabled), ErrNotConfigured)

	_, err := s.Update(ctx, provider.Addy, func(*ProviderConfig) error { return nil })
	require.NoError(t, err)

	require.NoError(t, s.SetCatchAll(ctx, provider.Addy, "X.org", provider.CatchAllDisabled))
	cfg, err := s.Get(ctx, provider.Addy)
	require.NoError(t, err)
	require.Equal(t, provider.CatchAllDisabled, cfg.CatchAll("x.org"))

	require.NoError(t, s.SetCatchAll(ctx, provider.Addy, "x.org", provider.CatchAllUnknown))
	cfg, err = s.Get(ctx, provider.Addy)
	require.NoError(t, err)
	require.Equal(t, provider.CatchAllUnknown, cfg.CatchAll("x.org"))
	require.NotContains(t, cfg.DomainCatchAllStatus, "x.org")
}

func TestSetCachedDomains(t *testing.T) {
	t.Parallel()
	s := New(mockstore.New())
	ctx := context.Background()

	_, err := s.Update(ctx, provider.Addy, func(*ProviderConfig) error { return nil })
	require.NoError(t, err)
	require.NoError(t, s.SetCachedDomains(ctx, provider.Addy, []string{"a.org", "b.org"}))

	cfg, err := s.Get(ctx, provider.Addy)
	require.NoError(t, err)
	require.Equal(t, []string{"a.org", "b.org"}, cfg.CachedDomains)
}

func TestTokensEncryptedAtRest(t *testing.T) {
	t.Parallel()
	store := mockstore.New()
	key := storage.DeriveKey("passphrase")
	s := New(store, WithEncryptionKey(key))
	ctx := context.Background()

	_, err := s.Update(ctx, provider.Addy, func(c *ProviderConfig) error { c.Token = "secret-token-value"; return nil })
	require.NoError(t, err)

	raw, err := store.Get(ctx, storage.KeySettings)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "secret-token-value")
	require.Contains(t, string(raw), `"token":"enc:`)

	cfg, err := s.Get(ctx, provider.Addy)
	require.NoError(t, err)
	require.Equal(t, "secret-token-value", cfg.Token)

	// A store opened with another key cannot read the token.
	_, err = New(store, WithEncryptionKey(storage.DeriveKey("other"))).Get(ctx, provider.Addy)
	require.ErrorIs(t, err, storage.ErrDecryption)
}

func TestPlaintextBlobStillLoads(t *testing.T) {
	t.Parallel()
	store := mockstore.New()
	ctx := context.Background()

	doc := map[string]any{
		"activeProvider": "addy",
		"providers": map[string]any{
			"addy": map[string]any{"enabled": true, "token": "legacy", "activeFormat": "uuid"},
		},
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, storage.KeySettings, raw))

	s := New(store, WithEncryptionKey(storage.DeriveKey("k")))
	cfg, err := s.Active(ctx)
	require.NoError(t, err)
	require.Equal(t, "legacy", cfg.Token)
	require.Equal(t, provider.Addy, cfg.ID)
	require.NotNil(t, cfg.DomainCatchAllStatus)
}

func TestCorruptBlob(t *testing.T) {
	t.Parallel()
	store := mockstore.New()
	require.NoError(t, store.Set(context.Background(), storage.KeySettings, []byte("{nope")))

	_, err := New(store).List(context.Background())
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "corrupt"))
}

func TestConcurrentUpdatesKeepOtherProviders(t *testing.T) {
	t.Parallel()
	s := New(mockstore.New())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, provider.Addy, func(c *ProviderConfig) error {
				c.FavoriteDomains = append(c.FavoriteDomains, "a.org")
				return nil
			})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, provider.SimpleLogin, func(c *ProviderConfig) error {
				c.WaitServerConfirmation = true
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, provider.Addy, list[0].ID)
	require.Equal(t, provider.SimpleLogin, list[1].ID)
}
