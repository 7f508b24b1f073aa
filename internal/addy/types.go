package addy

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Flag is a boolean field that may be absent or of the wrong type. Only a
// JSON true or false sets it.
type Flag struct {
	Set   bool
	Value bool
}

// UnmarshalJSON implements json.Unmarshaler. Non-boolean values leave the
// flag unset instead of failing the whole document.
func (f *Flag) UnmarshalJSON(data []byte) error {
	var v bool
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = Flag{}
		return nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		*f = Flag{}
		return nil
	}
	*f = Flag{Set: true, Value: v}
	return nil
}

// Or returns the flag value, or def when the field was absent.
func (f Flag) Or(def bool) bool {
	if !f.Set {
		return def
	}
	return f.Value
}

// AccountDetails is the subset of GET /account-details the adapter uses.
type AccountDetails struct {
	ID                  string   `json:"id"`
	Username            string   `json:"username"`
	DefaultAliasDomain  string   `json:"default_alias_domain"`
	DefaultAliasFormat  string   `json:"default_alias_format"`
	ActiveSharedDomains []string `json:"active_shared_domains"`
}

// Domain is a custom domain registered with the account.
type Domain struct {
	ID       string `json:"id"`
	Domain   string `json:"domain"`
	Active   Flag   `json:"active"`
	CatchAll Flag   `json:"catch_all"`
}

// Username is an additional username of the account.
type Username struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Active   Flag   `json:"active"`
	CatchAll Flag   `json:"catch_all"`
}

// Alias is the subset of an alias object returned by POST /aliases.
type Alias struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	LocalPart string `json:"local_part"`
	Domain    string `json:"domain"`
}

// CreateAliasRequest is the body of POST /aliases.
type CreateAliasRequest struct {
	Domain      string `json:"domain"`
	Description string `json:"description,omitempty"`
	Format      string `json:"format"`
	LocalPart   string `json:"local_part,omitempty"`
}

// decodeData decodes body into out, unwrapping the {"data": ...} envelope
// when present and falling back to the flat document otherwise.
func decodeData(body []byte, out any) error {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if data := bytes.TrimSpace(envelope.Data); len(data) > 0 && !bytes.Equal(data, []byte("null")) {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("failed to decode response data: %w", err)
			}
			return nil
		}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
