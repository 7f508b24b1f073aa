// Package bridge is the client side of the daemon's alias API, used by
// browser-facing helpers and the aliasctl command. Alias requests are retried
// a bounded number of times when the failure looks transient.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/sipico/alias-relay/internal/orchestrator"
	"github.com/sipico/alias-relay/internal/provider"
)

const (
	// DefaultAttempts is the total number of tries for one alias request.
	DefaultAttempts = 3

	// DefaultRetryDelay is the fixed pause between tries.
	DefaultRetryDelay = 200 * time.Millisecond

	// CodeContextInvalidated is the error code the daemon uses when the
	// request context went away underneath it, e.g. during a restart.
	CodeContextInvalidated = "context_invalidated"
)

// APIError is an error response from the daemon.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Hint       string
}

// Error implements the error interface for APIError.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("bridge: %s (HTTP %d)", e.Code, e.StatusCode)
	}
	return fmt.Sprintf("bridge: %s: %s", e.Code, e.Message)
}

// Client talks to the daemon's /v1 API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	attempts   int
	delay      time.Duration
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithRetry sets the total attempts and the fixed delay between them.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		if attempts < 1 {
			attempts = 1
		}
		c.attempts = attempts
		c.delay = delay
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a daemon client. token is the API access token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: http.DefaultClient,
		attempts:   DefaultAttempts,
		delay:      DefaultRetryDelay,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestAlias asks the daemon for a final alias address.
func (c *Client) RequestAlias(ctx context.Context, req orchestrator.SubmitRequest) (*orchestrator.SubmitResult, error) {
	var result orchestrator.SubmitResult
	err := c.retry(ctx, func() error {
		return c.do(ctx, http.MethodPost, "/v1/alias", req, &result)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// PreviewAlias asks the daemon for a preview. Previews are not retried.
func (c *Client) PreviewAlias(ctx context.Context, id provider.ID, currentURL string) (*orchestrator.Preview, error) {
	body := struct {
		Provider   provider.ID `json:"provider,omitempty"`
		CurrentURL string      `json:"currentUrl,omitempty"`
	}{id, currentURL}

	var preview orchestrator.Preview
	if err := c.do(ctx, http.MethodPost, "/v1/alias/preview", body, &preview); err != nil {
		return nil, err
	}
	return &preview, nil
}

// retry runs fn up to c.attempts times while it fails transiently.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !IsTransient(err) || attempt == c.attempts {
			return err
		}
		c.logger.Debug("transient bridge error, retrying", "attempt", attempt, "error", err)

		timer := time.NewTimer(c.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
	return err
}

// IsTransient reports whether err is worth retrying: refused or reset
// connections, truncated responses, gateway errors and context
// invalidation reported by the daemon.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == CodeContextInvalidated {
			return true
		}
		switch apiErr.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

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
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
			Hint    string `json:"hint"`
		}
		if json.Unmarshal(body, &payload) == nil {
			apiErr.Code, apiErr.Message, apiErr.Hint = payload.Error, payload.Message, payload.Hint
		} else {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
