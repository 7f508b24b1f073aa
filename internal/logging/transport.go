package logging

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"
)

// Transport wraps an http.RoundTripper and logs provider traffic at debug
// level. Credential headers and non-allowlisted body fields are masked.
type Transport struct {
	Transport http.RoundTripper
	Logger    *slog.Logger
	// Provider labels every log line, e.g. "addy".
	Provider string
	// Allowlist overrides DefaultBodyAllowlist.
	Allowlist []string
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, logger *slog.Logger, provider string) *Transport {
	return &Transport{Transport: base, Logger: logger, Provider: provider}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if !logger.Enabled(req.Context(), slog.LevelDebug) {
		return t.transport().RoundTrip(req)
	}

	start := time.Now()

	var reqBody []byte
	if req.Body != nil {
		var err error
		reqBody, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body = io.NopCloser(bytes.NewReader(reqBody))
	}

	logger.Debug("provider request",
		"provider", t.Provider,
		"method", req.Method,
		"url", req.URL.String(),
		"headers", maskHeaders(req.Header),
		"body", t.maskBody(reqBody),
	)

	resp, err := t.transport().RoundTrip(req)
	duration := time.Since(start)
	if err != nil {
		logger.Debug("provider request failed",
			"provider", t.Provider,
			"method", req.Method,
			"url", req.URL.String(),
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		return nil, err
	}

	respBody, err := io.ReadAll(resp.Body)
	//nolint:errcheck
	resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(respBody))

	logger.Debug("provider response",
		"provider", t.Provider,
		"method", req.Method,
		"url", req.URL.String(),
		"status_code", resp.StatusCode,
		"duration_ms", duration.Milliseconds(),
		"body", t.maskBody(respBody),
	)

	return resp, nil
}

func (t *Transport) transport() http.RoundTripper {
	if t.Transport != nil {
		return t.Transport
	}
	return http.DefaultTransport
}

func (t *Transport) maskBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if !utf8.Valid(body) {
		return FormatBinaryData(body)
	}
	allowlist := t.Allowlist
	if allowlist == nil {
		allowlist = DefaultBodyAllowlist
	}
	return string(MaskJSONBody(body, allowlist))
}

func maskHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if len(v) > 0 {
			out[k] = MaskHeader(k, v[0])
		}
	}
	return out
}
