package simplelogin

import (
	"encoding/json"
	"fmt"
)

// UserInfo is the subset of GET /user_info the adapter uses.
type UserInfo struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	IsPremium bool   `json:"is_premium"`
}

// CustomDomain is a domain registered with the account.
type CustomDomain struct {
	ID         int64  `json:"id"`
	DomainName string `json:"domain_name"`
	IsVerified bool   `json:"is_verified"`
}

// Suffix is one selectable alias suffix from the alias options.
type Suffix struct {
	Suffix       string `json:"suffix"`
	SignedSuffix string `json:"signed_suffix"`
	IsCustom     bool   `json:"is_custom"`
	IsPremium    bool   `json:"is_premium"`
}

// AliasOptions is the response of GET /v5/alias/options.
type AliasOptions struct {
	CanCreate        bool     `json:"can_create"`
	PrefixSuggestion string   `json:"prefix_suggestion"`
	Suffixes         []Suffix `json:"suffixes"`
}

// Mailbox is a destination mailbox of the account.
type Mailbox struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Default  bool   `json:"default"`
	Verified bool   `json:"verified"`
}

// Alias is the subset of an alias object returned on creation.
type Alias struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// createAliasV3 is the body of POST /v3/alias/custom/new.
type createAliasV3 struct {
	AliasPrefix  string  `json:"alias_prefix"`
	SignedSuffix string  `json:"signed_suffix"`
	MailboxIDs   []int64 `json:"mailbox_ids"`
	Note         string  `json:"note,omitempty"`
}

// createAliasV2 is the body of POST /v2/alias/custom/new.
type createAliasV2 struct {
	AliasPrefix  string `json:"alias_prefix"`
	SignedSuffix string `json:"signed_suffix"`
	MailboxID    int64  `json:"mailbox_id"`
	Note         string `json:"note,omitempty"`
}

// decodeList decodes either a bare JSON array or an object wrapping the
// array under key.
func decodeList[T any](body []byte, key string) ([]T, error) {
	var list []T
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	raw, ok := wrapped[key]
	if !ok {
		return nil, nil
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return list, nil
}
