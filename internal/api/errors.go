package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sipico/alias-relay/internal/license"
	"github.com/sipico/alias-relay/internal/orchestrator"
	"github.com/sipico/alias-relay/internal/provider"
	"github.com/sipico/alias-relay/internal/settings"
)

// Error codes returned in the "error" field.
const (
	ErrCodeInvalidRequest      = "invalid_request"
	ErrCodeInvalidCredentials  = "invalid_credentials"
	ErrCodeUnknownProvider     = "unknown_provider"
	ErrCodeNotConfigured       = "not_configured"
	ErrCodeNoActiveProvider    = "no_active_provider"
	ErrCodeProviderDisabled    = "provider_disabled"
	ErrCodeNoToken             = "no_token"
	ErrCodeNoDomain            = "no_domain"
	ErrCodeAliasCreationFailed = "alias_creation_failed"
	ErrCodeContextInvalidated  = "context_invalidated"
	ErrCodeInternalError       = "internal_error"
)

// APIError is the JSON error body.
type APIError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteErrorWithHint(w, status, code, message, "")
}

// WriteErrorWithHint writes a JSON error response with a hint for resolving
// the error.
func WriteErrorWithHint(w http.ResponseWriter, status int, code, message, hint string) {
	writeJSON(w, status, APIError{Error: code, Message: message, Hint: hint})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // Response write errors are unrecoverable
	json.NewEncoder(w).Encode(v)
}

// writeDomainError maps errors from the core packages onto HTTP responses.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var submitErr *orchestrator.SubmitError
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		WriteErrorWithHint(w, http.StatusServiceUnavailable, ErrCodeContextInvalidated,
			"request context ended before completion", "retry the request")
	case errors.As(err, &submitErr):
		WriteError(w, http.StatusUnprocessableEntity, ErrCodeAliasCreationFailed, submitErr.Reason)
	case errors.Is(err, provider.ErrUnknownProvider):
		WriteError(w, http.StatusNotFound, ErrCodeUnknownProvider, err.Error())
	case errors.Is(err, settings.ErrNotConfigured):
		WriteErrorWithHint(w, http.StatusNotFound, ErrCodeNotConfigured, err.Error(),
			"configure it with PUT /v1/providers/{id}")
	case errors.Is(err, settings.ErrNoActiveProvider):
		WriteErrorWithHint(w, http.StatusConflict, ErrCodeNoActiveProvider, err.Error(),
			"select one with PUT /v1/active-provider")
	case errors.Is(err, settings.ErrProviderDisabled):
		WriteError(w, http.StatusConflict, ErrCodeProviderDisabled, err.Error())
	case errors.Is(err, orchestrator.ErrNoToken):
		WriteErrorWithHint(w, http.StatusConflict, ErrCodeNoToken, err.Error(),
			"set the provider API token")
	case errors.Is(err, orchestrator.ErrNoDomain):
		WriteErrorWithHint(w, http.StatusConflict, ErrCodeNoDomain, err.Error(),
			"set a default domain or refresh the domain list")
	case errors.Is(err, settings.ErrInvalidConfig), errors.Is(err, license.ErrNoKey):
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal error")
	}
}
