// Package logging provides log redaction helpers and an HTTP transport that
// logs upstream provider traffic without leaking credentials.
package logging

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Redacted replaces values that must never appear in logs.
const Redacted = "[REDACTED]"

// credentialHeaders carry provider tokens. Addy uses Authorization,
// SimpleLogin uses Authentication.
var credentialHeaders = map[string]bool{
	"authorization":  true,
	"authentication": true,
	"x-api-key":      true,
	"cookie":         true,
	"set-cookie":     true,
}

// MaskHeader returns a log-safe rendition of a header value.
//
// Credential headers keep only the last 4 characters ("****ab3f"); the
// "Bearer " scheme prefix is preserved. Other headers are returned unchanged.
func MaskHeader(name, value string) string {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "secret") || strings.Contains(lower, "password") {
		return Redacted
	}
	if !credentialHeaders[lower] {
		return value
	}

	scheme := ""
	if i := strings.IndexByte(value, ' '); i > 0 && strings.EqualFold(value[:i], "bearer") {
		scheme, value = value[:i+1], value[i+1:]
	}
	return scheme + MaskSecret(value)
}

// MaskSecret keeps the last 4 characters of a secret.
func MaskSecret(secret string) string {
	if len(secret) < 8 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

// DefaultBodyAllowlist lists JSON fields that are safe to log verbatim in
// provider requests and responses. Everything else is redacted.
var DefaultBodyAllowlist = []string{
	"data", "id", "domain", "domain_name", "domains", "username", "usernames",
	"catch_all", "active", "verified", "default_alias_domain",
	"default_alias_format", "active_shared_domains", "format", "email",
	"alias", "suffixes", "suffix", "can_create", "mailboxes", "default",
	"custom_domains", "message", "error", "errors", "detail", "status",
}

// MaskJSONBody redacts every primitive value whose key is not in
// allowlist. Objects and arrays are always walked. A nil allowlist returns
// body unchanged; a body that is not JSON is returned as is.
func MaskJSONBody(body []byte, allowlist []string) []byte {
	if allowlist == nil || len(body) == 0 {
		return body
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return body
	}

	allowed := make(map[string]bool, len(allowlist))
	for _, field := range allowlist {
		allowed[field] = true
	}

	masked, err := json.Marshal(maskValue(data, allowed))
	if err != nil {
		return body
	}
	return masked
}

func maskValue(value any, allowed map[string]bool) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			switch val.(type) {
			case map[string]any, []any:
				out[key] = maskValue(val, allowed)
			default:
				if allowed[key] {
					out[key] = val
				} else {
					out[key] = Redacted
				}
			}
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = maskValue(item, allowed)
		}
		return out
	default:
		return value
	}
}

// FormatBinaryData describes a non-text body by its size.
func FormatBinaryData(data []byte) string {
	return fmt.Sprintf("[BINARY: %d bytes]", len(data))
}
