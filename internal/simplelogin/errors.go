package simplelogin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError represents a non-2xx response from the SimpleLogin API.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface for APIError.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("simplelogin: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("simplelogin: HTTP %d: %s", e.StatusCode, e.Message)
}

// Sentinel errors for common API error cases.
var (
	ErrUnauthorized = errors.New("simplelogin: unauthorized (invalid API key)")
	ErrNoSuffix     = errors.New("simplelogin: no alias suffix for domain")
	ErrNoMailbox    = errors.New("simplelogin: no mailbox available")
)

// parseError converts an error response into a sentinel or *APIError. Not
// found responses stay *APIError so callers can branch on the status code.
func parseError(statusCode int, body []byte) error {
	if statusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return &APIError{StatusCode: statusCode, Message: strings.TrimSpace(string(body))}
	}
	msg := payload.Error
	if msg == "" {
		msg = payload.Message
	}
	return &APIError{StatusCode: statusCode, Message: msg}
}
