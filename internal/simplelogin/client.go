// Package simplelogin implements the SimpleLogin API client and provider
// adapter.
package simplelogin

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
	// DefaultBaseURL is the hosted SimpleLogin API.
	DefaultBaseURL = "https://app.simplelogin.io/api"

	// DefaultRateLimit is the default request budget per second.
	DefaultRateLimit = 5
)

// Client is an HTTP client for the SimpleLogin API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets a custom base URL. Empty keeps the default.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL != "" {
			c.baseURL = baseURL
		}
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

func withLimiter(limiter *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = limiter
	}
}

// NewClient creates a new SimpleLogin API client.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// UserInfo fetches GET /user_info.
func (c *Client) UserInfo(ctx context.Context) (*UserInfo, error) {
	body, err := c.do(ctx, "user_info", http.MethodGet, "/user_info", nil, nil)
	if err != nil {
		return nil, err
	}
	var info UserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &info, nil
}

// CustomDomains fetches GET /custom_domains.
func (c *Client) CustomDomains(ctx context.Context) ([]CustomDomain, error) {
	body, err := c.do(ctx, "custom_domains", http.MethodGet, "/custom_domains", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[CustomDomain](body, "custom_domains")
}

// AliasOptions fetches GET /v5/alias/options, optionally scoped to the
// website the alias is for.
func (c *Client) AliasOptions(ctx context.Context, hostname string) (*AliasOptions, error) {
	var query url.Values
	if hostname != "" {
		query = url.Values{"hostname": {hostname}}
	}
	body, err := c.do(ctx, "alias_options", http.MethodGet, "/v5/alias/options", query, nil)
	if err != nil {
		return nil, err
	}
	var opts AliasOptions
	if err := json.Unmarshal(body, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &opts, nil
}

// Mailboxes fetches GET /v2/mailboxes.
func (c *Client) Mailboxes(ctx context.Context) ([]Mailbox, error) {
	body, err := c.do(ctx, "mailboxes", http.MethodGet, "/v2/mailboxes", nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeList[Mailbox](body, "mailboxes")
}

// CreateCustomAlias creates an alias through POST /v3/alias/custom/new.
func (c *Client) CreateCustomAlias(ctx context.Context, prefix, signedSuffix string, mailboxIDs []int64, note, hostname string) (*Alias, error) {
	return c.createAlias(ctx, "/v3/alias/custom/new", hostname, &createAliasV3{
		AliasPrefix:  prefix,
		SignedSuffix: signedSuffix,
		MailboxIDs:   mailboxIDs,
		Note:         note,
	})
}

// CreateCustomAliasV2 creates an alias through the older
// POST /v2/alias/custom/new, which takes a single mailbox.
func (c *Client) CreateCustomAliasV2(ctx context.Context, prefix, signedSuffix string, mailboxID int64, note, hostname string) (*Alias, error) {
	return c.createAlias(ctx, "/v2/alias/custom/new", hostname, &createAliasV2{
		AliasPrefix:  prefix,
		SignedSuffix: signedSuffix,
		MailboxID:    mailboxID,
		Note:         note,
	})
}

func (c *Client) createAlias(ctx context.Context, path, hostname string, in any) (*Alias, error) {
	var query url.Values
	if hostname != "" {
		query = url.Values{"hostname": {hostname}}
	}
	body, err := c.do(ctx, "create_alias", http.MethodPost, path, query, in)
	if err != nil {
		return nil, err
	}
	var alias Alias
	if err := json.Unmarshal(body, &alias); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &alias, nil
}

// do runs one authenticated request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, operation, method, path string, query url.Values, in any) (body []byte, err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.RecordProviderRequest("simplelogin", operation, result)
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("simplelogin: rate limiter: %w", err)
		}
	}

	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authentication", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		//nolint:errcheck
		resp.Body.Close()
	}()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseError(resp.StatusCode, body)
	}
	return body, nil
}
