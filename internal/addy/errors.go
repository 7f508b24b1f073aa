package addy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// APIError represents a non-2xx response from the Addy API.
type APIError struct {
	StatusCode int
	Message    string
	// Errors holds per-field validation messages from 422 responses.
	Errors map[string][]string
}

// Error implements the error interface for APIError.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("addy: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("addy: HTTP %d: %s", e.StatusCode, e.Message)
}

// Detail joins the message and every field error into one lower-case string
// suitable for substring matching.
func (e *APIError) Detail() string {
	parts := []string{e.Message}
	fields := make([]string, 0, len(e.Errors))
	for field := range e.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		parts = append(parts, e.Errors[field]...)
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// Sentinel errors for common API error cases.
var (
	ErrUnauthorized = errors.New("addy: unauthorized (invalid API token)")
	ErrNotFound     = errors.New("addy: resource not found")
)

// parseError converts an error response into a sentinel or *APIError.
func parseError(statusCode int, body []byte) error {
	switch statusCode {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	}

	var payload struct {
		Message string          `json:"message"`
		Error   string          `json:"error"`
		Errors  json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return &APIError{StatusCode: statusCode, Message: strings.TrimSpace(string(body))}
	}

	apiErr := &APIError{StatusCode: statusCode, Message: payload.Message}
	if apiErr.Message == "" {
		apiErr.Message = payload.Error
	}

	// Laravel sends {"field": ["msg"]}; older instances sometimes send a
	// flat list.
	var fieldErrors map[string][]string
	if err := json.Unmarshal(payload.Errors, &fieldErrors); err == nil {
		apiErr.Errors = fieldErrors
	} else {
		var list []string
		if err := json.Unmarshal(payload.Errors, &list); err == nil && len(list) > 0 {
			apiErr.Errors = map[string][]string{"_": list}
		}
	}
	return apiErr
}
