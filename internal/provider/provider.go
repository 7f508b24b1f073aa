// Package provider defines the capability interface shared by all email
// alias providers and the registry that maps provider IDs to adapters.
package provider

import (
	"context"
	"errors"
)

// ID identifies a provider variant.
type ID string

const (
	// Addy is the Addy.io (formerly AnonAddy) provider.
	Addy ID = "addy"

	// SimpleLogin is the SimpleLogin provider.
	SimpleLogin ID = "simplelogin"
)

// Valid reports whether id names a known provider variant.
func (id ID) Valid() bool {
	switch id {
	case Addy, SimpleLogin:
		return true
	default:
		return false
	}
}

// ErrUnknownProvider is returned when a provider ID is not registered.
var ErrUnknownProvider = errors.New("provider: unknown provider")

// DomainKind classifies a resolved domain.
type DomainKind string

const (
	KindCustom        DomainKind = "custom"
	KindSharedRoot    DomainKind = "shared_root"
	KindUserSubdomain DomainKind = "user_subdomain"
)

// DomainDetails is the transient result of resolving a domain.
type DomainDetails struct {
	Domain   string     `json:"domain"`
	CatchAll CatchAll   `json:"catch_all"`
	Shared   bool       `json:"shared"`
	Kind     DomainKind `json:"kind"`
	Username string     `json:"username,omitempty"`
}

// AliasCreationResult reports the outcome of a remote alias creation.
// It is never persisted.
type AliasCreationResult struct {
	Success          bool   `json:"success"`
	Error            string `json:"error,omitempty"`
	IsCatchAllDomain bool   `json:"isCatchAllDomain,omitempty"`
	CreatedAlias     string `json:"createdAlias,omitempty"`
}

// Failed builds an unsuccessful result carrying a human readable reason.
func Failed(reason string) *AliasCreationResult {
	return &AliasCreationResult{Success: false, Error: reason}
}

// CreateOptions carries the parameters of a remote alias creation.
type CreateOptions struct {
	// Alias is the requested local part. Empty lets the provider pick one.
	Alias          string
	Domain         string
	SourceHostname string
	// BaseURL overrides the provider API location (self-hosted instances).
	BaseURL string
	Format  string
}

// Capabilities describes the optional behaviour of a provider.
type Capabilities struct {
	// ServerCreation is set when CreateAlias talks to the provider. Without
	// it the locally generated address is final.
	ServerCreation bool `json:"serverCreation"`

	// CatchAll is set when domains carry catch-all semantics and
	// ResolveDomain can classify them.
	CatchAll bool `json:"catchAll"`
}

// Provider is implemented by every alias provider adapter.
//
// Adapters convert network and HTTP failures into return values: a false
// verification, an empty domain list, a failed AliasCreationResult or a nil
// DomainDetails. They never return raw transport errors.
type Provider interface {
	ID() ID
	DisplayName() string
	Capabilities() Capabilities

	// VerifyToken performs one authenticated request against the
	// provider's identity endpoint.
	VerifyToken(ctx context.Context, token, baseURL string) bool

	// Domains lists every domain the account can send from, deduplicated.
	// complete is false when a lookup failed and the list is partial or a
	// fallback; such lists must not be cached.
	Domains(ctx context.Context, token, baseURL string) (domains []string, complete bool)

	// GenerateAddress composes a full address. It is pure.
	GenerateAddress(localPart, domain string) string

	// CreateAlias creates the alias remotely.
	CreateAlias(ctx context.Context, token string, opts CreateOptions) *AliasCreationResult

	// ResolveDomain classifies domain. A nil result means the domain is not
	// recognised, or the provider has no catch-all semantics.
	ResolveDomain(ctx context.Context, token, baseURL, domain string) *DomainDetails
}
