package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/sipico/alias-relay/internal/logging"
)

// HTTPLogging logs API requests and responses at debug level. Headers are
// masked with logging.MaskHeader and JSON bodies are reduced to allowlist
// (nil uses logging.DefaultBodyAllowlist plus the API's own fields).
func HTTPLogging(logger *slog.Logger, allowlist []string) func(http.Handler) http.Handler {
	if allowlist == nil {
		allowlist = append([]string{
			"provider", "mode", "caution", "catchAll", "address", "created",
			"localPart", "currentUrl", "enabled", "valid", "plan", "hint",
			"defaultDomain", "activeFormat", "customRule",
		}, logging.DefaultBodyAllowlist...)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !logger.Enabled(r.Context(), slog.LevelDebug) {
				next.ServeHTTP(w, r)
				return
			}

			var reqBody []byte
			if r.Body != nil {
				var err error
				reqBody, err = io.ReadAll(r.Body)
				if err != nil {
					logger.Error("failed to read request body", "error", err)
					http.Error(w, "unreadable body", http.StatusBadRequest)
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(reqBody))
			}

			id := GetRequestID(r.Context())
			logger.Debug("api request",
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"query", r.URL.RawQuery,
				"headers", maskHeaders(r.Header),
				"body", maskBody(reqBody, allowlist),
			)

			rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)

			logger.Debug("api response",
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"status_code", rec.statusCode,
				"body", maskBody(rec.body.Bytes(), allowlist),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

func maskHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if len(v) > 0 {
			out[k] = logging.MaskHeader(k, v[0])
		}
	}
	return out
}

func maskBody(body []byte, allowlist []string) string {
	if len(body) == 0 {
		return ""
	}
	if !utf8.Valid(body) {
		return logging.FormatBinaryData(body)
	}
	return string(logging.MaskJSONBody(body, allowlist))
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
