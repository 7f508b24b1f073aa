package api

import (
	"net/http"
	"strings"

	"github.com/sipico/alias-relay/internal/metrics"
	"github.com/sipico/alias-relay/internal/storage"
)

// TokenAuthMiddleware requires "Authorization: Bearer <token>" matching the
// configured bcrypt hash.
func (h *Handler) TokenAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		token = strings.TrimSpace(token)
		if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
			metrics.RecordAuthFailure("missing_token")
			WriteError(w, http.StatusUnauthorized, ErrCodeInvalidCredentials, "missing bearer token")
			return
		}

		if err := storage.VerifyKey(token, h.tokenHash); err != nil {
			metrics.RecordAuthFailure("invalid_token")
			h.logger.Warn("invalid access token attempt", "remote_addr", r.RemoteAddr)
			WriteError(w, http.StatusUnauthorized, ErrCodeInvalidCredentials, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}
