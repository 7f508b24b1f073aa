package provider

import (
	"context"
	"errors"
	"testing"
)

type stubProvider struct {
	id ID
}

func (s stubProvider) ID() ID                     { return s.id }
func (s stubProvider) DisplayName() string        { return string(s.id) }
func (s stubProvider) Capabilities() Capabilities { return Capabilities{} }
func (s stubProvider) VerifyToken(context.Context, string, string) bool {
	return true
}
func (s stubProvider) Domains(context.Context, string, string) ([]string, bool) { return nil, true }
func (s stubProvider) GenerateAddress(localPart, domain string) string {
	return localPart + "@" + domain
}
func (s stubProvider) CreateAlias(context.Context, string, CreateOptions) *AliasCreationResult {
	return Failed("unsupported")
}
func (s stubProvider) ResolveDomain(context.Context, string, string, string) *DomainDetails {
	return nil
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	r := NewRegistry(stubProvider{id: SimpleLogin}, stubProvider{id: Addy})

	p, err := r.Get(Addy)
	if err != nil {
		t.Fatalf("Get(addy) failed: %v", err)
	}
	if p.ID() != Addy {
		t.Errorf("got %q, want addy", p.ID())
	}

	if _, err := r.Get("nope"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}

	list := r.List()
	if len(list) != 2 || list[0].ID() != Addy || list[1].ID() != SimpleLogin {
		t.Errorf("List() not ordered by id: %v", list)
	}
}

func TestIDValid(t *testing.T) {
	t.Parallel()
	if !Addy.Valid() || !SimpleLogin.Valid() {
		t.Error("known ids must be valid")
	}
	if ID("fastmail").Valid() {
		t.Error("unknown id must be invalid")
	}
}
