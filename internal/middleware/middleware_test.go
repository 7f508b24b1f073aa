package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "missing", incoming: "", keep: false},
		{name: "valid custom", incoming: "req_42.retry-1", keep: true},
		{name: "oversized", incoming: strings.Repeat("a", 129), keep: false},
		{name: "newline", incoming: "abc\ndef", keep: false},
		{name: "space", incoming: "abc def", keep: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var seen string
			h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, seen, rec.Header().Get(RequestIDHeader))
			if tt.keep {
				require.Equal(t, tt.incoming, seen)
			} else {
				_, err := uuid.Parse(seen)
				require.NoError(t, err)
			}
		})
	}
}

func TestGetRequestIDEmpty(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, GetRequestID(req.Context()))
}

func TestMaxBodySize(t *testing.T) {
	t.Parallel()

	for _, size := range []int{0, 512, 1024, 2048} {
		var readErr error
		h := MaxBodySize(1024)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, readErr = io.ReadAll(r.Body)
		}))
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(make([]byte, size)))
		h.ServeHTTP(httptest.NewRecorder(), req)
		if size > 1024 {
			assert.Error(t, readErr, "size %d", size)
		} else {
			assert.NoError(t, readErr, "size %d", size)
		}
	}
}

func TestLoopbackOnly(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := LoopbackOnly(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := map[string]int{
		"127.0.0.1:5555":   http.StatusNoContent,
		"[::1]:5555":       http.StatusNoContent,
		"10.0.0.7:5555":    http.StatusForbidden,
		"192.168.1.2:5555": http.StatusForbidden,
		"garbage":          http.StatusForbidden,
	}
	for addr, want := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, addr)
	}
}

func TestHTTPLoggingDebug(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var gotBody []byte
	h := RequestID(HTTPLogging(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		//nolint:errcheck
		w.Write([]byte(`{"address":"abc@example.com","token":"secret-token"}`))
	})))

	body := `{"provider":"addy","token":"secret-token"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/alias", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer access-token-abcd")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, body, string(gotBody), "handler must still see the body")

	out := buf.String()
	assert.Contains(t, out, "api request")
	assert.Contains(t, out, "api response")
	assert.Contains(t, out, `"status_code":201`)
	assert.Contains(t, out, "abc@example.com")
	assert.Contains(t, out, "****abcd")
	assert.NotContains(t, out, "secret-token")
	assert.NotContains(t, out, "access-token-abcd")
	assert.Contains(t, out, "request_id")
}

func TestHTTPLoggingSilentAboveDebug(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	h := HTTPLogging(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Empty(t, buf.String())
}

func TestMaskBodyBinary(t *testing.T) {
	t.Parallel()
	assert.Empty(t, maskBody(nil, nil))
	assert.NotEmpty(t, maskBody([]byte{0xff, 0xfe, 0x00}, nil))
}
