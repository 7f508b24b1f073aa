package addy

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/sipico/alias-relay/internal/provider"
)

// BuiltinSharedDomains are the shared roots of the hosted service. Every
// account can send from them and from username subdomains beneath them.
var BuiltinSharedDomains = []string{"anonaddy.me", "anonaddy.com"}

// Session resolves domains for one token and base URL. Account details are
// fetched at most once per session; custom domains and usernames are fetched
// on every call.
type Session struct {
	client *Client
	logger *slog.Logger

	once    sync.Once
	account *AccountDetails
	accErr  error
}

// NewSession starts a resolution session on client.
func NewSession(client *Client, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{client: client, logger: logger}
}

// Account returns the cached account details, fetching them on first use.
func (s *Session) Account(ctx context.Context) (*AccountDetails, error) {
	s.once.Do(func() {
		s.account, s.accErr = s.client.AccountDetails(ctx)
		if s.accErr != nil {
			s.logger.Warn("addy account details unavailable", "error", s.accErr)
		}
	})
	return s.account, s.accErr
}

// SharedDomains returns the effective shared-domain set: the builtin roots,
// the account's active shared domains and, when that list is empty, the
// account's default alias domain (self-hosted instances often report no
// shared domains but configure one default).
func (s *Session) SharedDomains(ctx context.Context) []string {
	shared := newOrderedSet()
	shared.add(BuiltinSharedDomains...)

	account, err := s.Account(ctx)
	if err != nil || account == nil {
		return shared.list()
	}
	shared.add(account.ActiveSharedDomains...)
	if len(account.ActiveSharedDomains) == 0 && account.DefaultAliasDomain != "" {
		shared.add(account.DefaultAliasDomain)
	}
	return shared.list()
}

// Resolve classifies domain. The first matching rule wins:
//
//  1. custom domain of the account: its catch_all flag, true when absent
//  2. username subdomain of a shared domain: the username's catch_all flag,
//     Unknown when the usernames lookup fails, Enabled when the username is
//     not listed
//  3. a shared root itself: Disabled
//
// Anything else yields nil.
func (s *Session) Resolve(ctx context.Context, domain string) *provider.DomainDetails {
	candidate := normalizeDomain(domain)
	if candidate == "" {
		return nil
	}

	// The custom-domain check completes before the subdomain branch runs.
	customs, err := s.client.Domains(ctx)
	if err != nil {
		s.logger.Warn("addy custom domains unavailable", "error", err)
	}
	for _, d := range customs {
		if normalizeDomain(d.Domain) == candidate {
			return &provider.DomainDetails{
				Domain:   candidate,
				CatchAll: provider.CatchAllFromBool(d.CatchAll.Or(true)),
				Shared:   false,
				Kind:     provider.KindCustom,
			}
		}
	}

	shared := s.SharedDomains(ctx)

	if potentialUsername, potentialShared, ok := strings.Cut(candidate, "."); ok && potentialUsername != "" && contains(shared, potentialShared) {
		details := &provider.DomainDetails{
			Domain:   candidate,
			Shared:   true,
			Kind:     provider.KindUserSubdomain,
			Username: potentialUsername,
		}

		usernames, err := s.client.Usernames(ctx)
		if err != nil {
			s.logger.Warn("addy usernames unavailable, catch-all unknown", "domain", candidate, "error", err)
			details.CatchAll = provider.CatchAllUnknown
			return details
		}
		for _, u := range usernames {
			if u.Username == potentialUsername {
				details.CatchAll = provider.CatchAllFromBool(u.CatchAll.Or(true))
				return details
			}
		}
		// Not listed: assumed enabled. Existing configurations rely on this
		// even though the domain may not support catch-all.
		details.CatchAll = provider.CatchAllEnabled
		return details
	}

	if contains(shared, candidate) {
		return &provider.DomainDetails{
			Domain:   candidate,
			CatchAll: provider.CatchAllDisabled,
			Shared:   true,
			Kind:     provider.KindSharedRoot,
		}
	}

	return nil
}

func normalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(domain), "@"))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// orderedSet deduplicates while keeping first-seen order.
type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (s *orderedSet) add(values ...string) {
	for _, v := range values {
		v = normalizeDomain(v)
		if v == "" {
			continue
		}
		if _, ok := s.seen[v]; ok {
			continue
		}
		s.seen[v] = struct{}{}
		s.items = append(s.items, v)
	}
}

func (s *orderedSet) list() []string {
	return append([]string(nil), s.items...)
}
