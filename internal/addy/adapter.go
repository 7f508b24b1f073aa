package addy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/sipico/alias-relay/internal/logging"
	"github.com/sipico/alias-relay/internal/provider"
)

// FallbackDomains is returned by Domains when every lookup failed.
var FallbackDomains = []string{"anonaddy.me", "anonaddy.com"}

// DefaultFormat is the alias format used when none is configured.
const DefaultFormat = "random_characters"

// Adapter implements provider.Provider for Addy.io.
type Adapter struct {
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter
	baseURL    string
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithAdapterHTTPClient sets the HTTP client used for every request. Its
// transport is wrapped with the masking debug logger.
func WithAdapterHTTPClient(client *http.Client) AdapterOption {
	return func(a *Adapter) {
		a.httpClient = client
	}
}

// WithAdapterBaseURL sets the API base URL used for accounts that store
// none. Empty keeps the hosted Addy API.
func WithAdapterBaseURL(baseURL string) AdapterOption {
	return func(a *Adapter) {
		a.baseURL = baseURL
	}
}

// WithAdapterLogger sets the logger.
func WithAdapterLogger(logger *slog.Logger) AdapterOption {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// WithAdapterRateLimit sets a request budget per second shared by every
// token. Zero disables limiting.
func WithAdapterRateLimit(requestsPerSecond int) AdapterOption {
	return func(a *Adapter) {
		if requestsPerSecond <= 0 {
			a.limiter = nil
			return
		}
		a.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewAdapter creates the Addy provider adapter.
func NewAdapter(opts ...AdapterOption) *Adapter {
	a := &Adapter{
		httpClient: &http.Client{},
		logger:     slog.Default(),
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}
	for _, opt := range opts {
		opt(a)
	}

	wrapped := *a.httpClient
	wrapped.Transport = logging.NewTransport(a.httpClient.Transport, a.logger, string(provider.Addy))
	a.httpClient = &wrapped
	return a
}

// ID implements provider.Provider.
func (a *Adapter) ID() provider.ID { return provider.Addy }

// DisplayName implements provider.Provider.
func (a *Adapter) DisplayName() string { return "Addy.io" }

// Capabilities implements provider.Provider.
func (a *Adapter) Capabilities() provider.Capabilities {
	return provider.Capabilities{ServerCreation: true, CatchAll: true}
}

func (a *Adapter) client(token, baseURL string) *Client {
	if baseURL == "" {
		baseURL = a.baseURL
	}
	return NewClient(token,
		WithBaseURL(baseURL),
		WithHTTPClient(a.httpClient),
		withLimiter(a.limiter),
	)
}

// VerifyToken implements provider.Provider.
func (a *Adapter) VerifyToken(ctx context.Context, token, baseURL string) bool {
	if token == "" {
		return false
	}
	if _, err := a.client(token, baseURL).AccountDetails(ctx); err != nil {
		a.logger.Info("addy token verification failed", "error", err)
		return false
	}
	return true
}

// Domains implements provider.Provider. Custom domains come first, then the
// shared roots, then username subdomains of every shared root. The list is
// incomplete when any of the three lookups failed.
func (a *Adapter) Domains(ctx context.Context, token, baseURL string) ([]string, bool) {
	client := a.client(token, baseURL)
	session := NewSession(client, a.logger)
	failures := 0

	domains := newOrderedSet()

	customs, err := client.Domains(ctx)
	if err != nil {
		failures++
		a.logger.Warn("addy custom domains unavailable", "error", err)
	}
	for _, d := range customs {
		if d.Active.Or(true) {
			domains.add(d.Domain)
		}
	}

	account, err := session.Account(ctx)
	if err != nil {
		failures++
	}
	shared := session.SharedDomains(ctx)
	domains.add(shared...)

	var names []string
	if account != nil && account.Username != "" {
		names = append(names, account.Username)
	}
	usernames, err := client.Usernames(ctx)
	if err != nil {
		failures++
		a.logger.Warn("addy usernames unavailable", "error", err)
	}
	for _, u := range usernames {
		if u.Active.Or(true) {
			names = append(names, u.Username)
		}
	}
	for _, name := range names {
		for _, root := range shared {
			domains.add(strings.ToLower(name) + "." + root)
		}
	}

	if failures == 3 {
		a.logger.Warn("addy domain lookup failed, using fallback list")
		return append([]string(nil), FallbackDomains...), false
	}
	return domains.list(), failures == 0
}

// GenerateAddress implements provider.Provider.
func (a *Adapter) GenerateAddress(localPart, domain string) string {
	return localPart + "@" + strings.TrimPrefix(domain, "@")
}

// CreateAlias implements provider.Provider. An empty Alias lets the server
// choose the local part in the requested format.
func (a *Adapter) CreateAlias(ctx context.Context, token string, opts provider.CreateOptions) *provider.AliasCreationResult {
	domain := normalizeDomain(opts.Domain)
	if domain == "" {
		return provider.Failed("no domain selected")
	}

	req := &CreateAliasRequest{
		Domain:      domain,
		Description: description(opts.SourceHostname),
		Format:      opts.Format,
	}
	if opts.Alias != "" {
		req.Format = "custom"
		req.LocalPart = opts.Alias
	} else if req.Format == "" || req.Format == "custom" {
		req.Format = DefaultFormat
	}

	alias, err := a.client(token, opts.BaseURL).CreateAlias(ctx, req)
	if err == nil {
		created := alias.Email
		if created == "" && opts.Alias != "" {
			created = a.GenerateAddress(opts.Alias, domain)
		}
		if created == "" {
			return provider.Failed("server did not return an address")
		}
		return &provider.AliasCreationResult{Success: true, CreatedAlias: created}
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity {
		detail := apiErr.Detail()
		switch {
		case strings.Contains(detail, "already exists"), strings.Contains(detail, "has already been taken"):
			if opts.Alias == "" {
				return provider.Failed(apiErr.Message)
			}
			return &provider.AliasCreationResult{
				Success:      true,
				CreatedAlias: a.GenerateAddress(opts.Alias, domain),
			}
		case strings.Contains(detail, "catch-all"), strings.Contains(detail, "catch all"):
			return &provider.AliasCreationResult{
				Success:          false,
				Error:            "domain accepts any local part, no creation needed",
				IsCatchAllDomain: true,
			}
		default:
			return provider.Failed(fmt.Sprintf("Addy rejected the alias: %s", strings.TrimSpace(detail)))
		}
	}

	a.logger.Warn("addy alias creation failed", "domain", domain, "error", err)
	switch {
	case errors.Is(err, ErrUnauthorized):
		return provider.Failed("Addy API token was rejected")
	case errors.As(err, &apiErr):
		return provider.Failed(apiErr.Error())
	default:
		return provider.Failed(fmt.Sprintf("could not reach Addy: %v", err))
	}
}

// ResolveDomain implements provider.Provider.
func (a *Adapter) ResolveDomain(ctx context.Context, token, baseURL, domain string) *provider.DomainDetails {
	return NewSession(a.client(token, baseURL), a.logger).Resolve(ctx, domain)
}

func description(hostname string) string {
	if hostname == "" {
		return ""
	}
	return "Created for " + hostname
}
