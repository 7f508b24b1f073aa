// Package addy implements the Addy.io (formerly AnonAddy) API client, the
// shared-domain resolution heuristic and the provider adapter.
package addy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/sipico/alias-relay/internal/metrics"
)

const (
	// DefaultBaseURL is the hosted Addy API.
	DefaultBaseURL = "https://app.addy.io/api/v1"

	// DefaultRateLimit is the default request budget per second.
	DefaultRateLimit = 5
)

// Client is an HTTP client for the Addy REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets the API location. The value is normalised with
// NormalizeBaseURL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = NormalizeBaseURL(baseURL)
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithRateLimit sets the request budget per second. Zero disables limiting.
func WithRateLimit(requestsPerSecond int) Option {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// withLimiter shares one limiter between the per-token clients of an adapter.
func withLimiter(limiter *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = limiter
	}
}

// NewClient creates a new Addy API client.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		token:      token,
		httpClient: http.DefaultClient,
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the normalised API location.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// NormalizeBaseURL turns any of "https://host", "https://host/",
// "https://host/api" or "https://host/api/v1" into "https://host/api/v1".
// An empty value yields DefaultBaseURL.
func NormalizeBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return DefaultBaseURL
	}
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasSuffix(base, "/api/v1"):
		return base
	case strings.HasSuffix(base, "/api"):
		return base + "/v1"
	default:
		return base + "/api/v1"
	}
}

// AccountDetails fetches GET /account-details.
func (c *Client) AccountDetails(ctx context.Context) (*AccountDetails, error) {
	var details AccountDetails
	if err := c.do(ctx, "account_details", http.MethodGet, "/account-details", nil, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// Domains fetches the account's custom domains (GET /domains).
func (c *Client) Domains(ctx context.Context) ([]Domain, error) {
	var domains []Domain
	if err := c.do(ctx, "domains", http.MethodGet, "/domains", nil, &domains); err != nil {
		return nil, err
	}
	return domains, nil
}

// Usernames fetches the account's additional usernames (GET /usernames).
func (c *Client) Usernames(ctx context.Context) ([]Username, error) {
	var usernames []Username
	if err := c.do(ctx, "usernames", http.MethodGet, "/usernames", nil, &usernames); err != nil {
		return nil, err
	}
	return usernames, nil
}

// CreateAlias creates an alias (POST /aliases).
func (c *Client) CreateAlias(ctx context.Context, req *CreateAliasRequest) (*Alias, error) {
	if req == nil || req.Domain == "" {
		return nil, fmt.Errorf("addy: domain is required")
	}
	var alias Alias
	if err := c.do(ctx, "create_alias", http.MethodPost, "/aliases", req, &alias); err != nil {
		return nil, err
	}
	return &alias, nil
}

// do runs one authenticated request and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, operation, method, path string, in, out any) (err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.RecordProviderRequest("addy", operation, result)
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("addy: rate limiter: %w", err)
		}
	}

	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return fmt.Errorf("addy: invalid base URL %q: %w", c.baseURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		//nolint:errcheck
		resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseError(resp.StatusCode, body)
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return decodeData(body, out)
}
