package simplelogin

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

// Adapter implements provider.Provider for SimpleLogin.
type Adapter struct {
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter
	baseURL    string
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithAdapterHTTPClient sets the HTTP client used for every request.
func WithAdapterHTTPClient(client *http.Client) AdapterOption {
	return func(a *Adapter) {
		a.httpClient = client
	}
}

// WithAdapterBaseURL sets the API base URL used for accounts that store
// none. Empty keeps the hosted SimpleLogin API.
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

// NewAdapter creates the SimpleLogin provider adapter.
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
	wrapped.Transport = logging.NewTransport(a.httpClient.Transport, a.logger, string(provider.SimpleLogin))
	a.httpClient = &wrapped
	return a
}

// ID implements provider.Provider.
func (a *Adapter) ID() provider.ID { return provider.SimpleLogin }

// DisplayName implements provider.Provider.
func (a *Adapter) DisplayName() string { return "SimpleLogin" }

// Capabilities implements provider.Provider. SimpleLogin aliases always
// exist server side before they receive mail.
func (a *Adapter) Capabilities() provider.Capabilities {
	return provider.Capabilities{ServerCreation: true, CatchAll: false}
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
	if _, err := a.client(token, baseURL).UserInfo(ctx); err != nil {
		a.logger.Info("simplelogin token verification failed", "error", err)
		return false
	}
	return true
}

// Domains implements provider.Provider: verified custom domains followed by
// the domains of the selectable suffixes. The list is incomplete when either
// lookup failed.
func (a *Adapter) Domains(ctx context.Context, token, baseURL string) ([]string, bool) {
	client := a.client(token, baseURL)
	complete := true
	seen := make(map[string]struct{})
	var domains []string
	add := func(d string) {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			return
		}
		if _, ok := seen[d]; ok {
			return
		}
		seen[d] = struct{}{}
		domains = append(domains, d)
	}

	customs, err := client.CustomDomains(ctx)
	if err != nil {
		complete = false
		a.logger.Warn("simplelogin custom domains unavailable", "error", err)
	}
	for _, d := range customs {
		if d.IsVerified {
			add(d.DomainName)
		}
	}

	opts, err := client.AliasOptions(ctx, "")
	if err != nil {
		complete = false
		a.logger.Warn("simplelogin alias options unavailable", "error", err)
	} else {
		for _, s := range opts.Suffixes {
			add(suffixDomain(s.Suffix))
		}
	}

	if domains == nil {
		return []string{}, complete
	}
	return domains, complete
}

// GenerateAddress implements provider.Provider. The local part is sanitised
// exactly as it will be sent to the creation endpoint.
func (a *Adapter) GenerateAddress(localPart, domain string) string {
	prefix := SanitizeLocalPart(localPart)
	if strings.HasPrefix(domain, "@") || strings.HasPrefix(domain, ".") {
		return prefix + domain
	}
	return prefix + "@" + domain
}

// CreateAlias implements provider.Provider.
func (a *Adapter) CreateAlias(ctx context.Context, token string, opts provider.CreateOptions) *provider.AliasCreationResult {
	client := a.client(token, opts.BaseURL)
	prefix := SanitizeLocalPart(opts.Alias)

	aliasOpts, err := client.AliasOptions(ctx, opts.SourceHostname)
	if err != nil {
		return a.failed("load alias options", err)
	}
	if !aliasOpts.CanCreate {
		return provider.Failed("SimpleLogin alias quota reached")
	}
	suffix, err := pickSuffix(aliasOpts.Suffixes, opts.Domain)
	if err != nil {
		return provider.Failed(fmt.Sprintf("no SimpleLogin suffix available for %s", opts.Domain))
	}

	mailboxes, err := client.Mailboxes(ctx)
	if err != nil {
		return a.failed("load mailboxes", err)
	}
	mailbox, err := defaultMailbox(mailboxes)
	if err != nil {
		return provider.Failed("no SimpleLogin mailbox available")
	}

	note := ""
	if opts.SourceHostname != "" {
		note = "Created for " + opts.SourceHostname
	}

	alias, err := client.CreateCustomAlias(ctx, prefix, suffix.SignedSuffix, []int64{mailbox.ID}, note, opts.SourceHostname)
	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusNotFound || apiErr.StatusCode == http.StatusMethodNotAllowed) {
		a.logger.Debug("simplelogin v3 alias endpoint unavailable, using v2")
		alias, err = client.CreateCustomAliasV2(ctx, prefix, suffix.SignedSuffix, mailbox.ID, note, opts.SourceHostname)
	}

	if err == nil {
		created := alias.Email
		if created == "" {
			created = prefix + suffix.Suffix
		}
		return &provider.AliasCreationResult{Success: true, CreatedAlias: created}
	}

	if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusConflict || strings.Contains(strings.ToLower(apiErr.Message), "already")) {
		return &provider.AliasCreationResult{Success: true, CreatedAlias: prefix + suffix.Suffix}
	}
	return a.failed("create alias", err)
}

// ResolveDomain implements provider.Provider. SimpleLogin domains carry no
// catch-all semantics.
func (a *Adapter) ResolveDomain(context.Context, string, string, string) *provider.DomainDetails {
	return nil
}

func (a *Adapter) failed(step string, err error) *provider.AliasCreationResult {
	a.logger.Warn("simplelogin alias creation failed", "step", step, "error", err)
	var apiErr *APIError
	switch {
	case errors.Is(err, ErrUnauthorized):
		return provider.Failed("SimpleLogin API key was rejected")
	case errors.As(err, &apiErr):
		return provider.Failed(fmt.Sprintf("SimpleLogin could not %s: %s", step, apiErr.Message))
	default:
		return provider.Failed(fmt.Sprintf("could not reach SimpleLogin: %v", err))
	}
}

// suffixDomain returns the domain of a suffix such as ".xyz@simplelogin.co"
// or "@example.com".
func suffixDomain(suffix string) string {
	if i := strings.LastIndex(suffix, "@"); i >= 0 {
		return suffix[i+1:]
	}
	return strings.TrimPrefix(suffix, ".")
}

// pickSuffix prefers a suffix that is exactly "@domain", then any suffix on
// domain. An empty domain takes the first suffix.
func pickSuffix(suffixes []Suffix, domain string) (Suffix, error) {
	if len(suffixes) == 0 {
		return Suffix{}, ErrNoSuffix
	}
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return suffixes[0], nil
	}
	if strings.HasPrefix(domain, "@") || strings.HasPrefix(domain, ".") {
		for _, s := range suffixes {
			if strings.EqualFold(s.Suffix, domain) {
				return s, nil
			}
		}
		domain = suffixDomain(domain)
	}
	for _, s := range suffixes {
		if strings.EqualFold(s.Suffix, "@"+domain) {
			return s, nil
		}
	}
	for _, s := range suffixes {
		if strings.EqualFold(suffixDomain(s.Suffix), domain) {
			return s, nil
		}
	}
	return Suffix{}, ErrNoSuffix
}

func defaultMailbox(mailboxes []Mailbox) (Mailbox, error) {
	for _, m := range mailboxes {
		if m.Default {
			return m, nil
		}
	}
	if len(mailboxes) > 0 {
		return mailboxes[0], nil
	}
	return Mailbox{}, ErrNoMailbox
}
