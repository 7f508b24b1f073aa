package orchestrator

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/sipico/alias-relay/internal/localpart"
	"github.com/sipico/alias-relay/internal/metrics"
	"github.com/sipico/alias-relay/internal/provider"
	"github.com/sipico/alias-relay/internal/settings"
)

// Mode is the way an alias address comes into existence.
type Mode string

const (
	// ModeLocal composes the address locally; the domain accepts it.
	ModeLocal Mode = "local"

	// ModeServer asks the provider to create the address on submission.
	ModeServer Mode = "server"
)

// PlaceholderText replaces the preview when the provider picks the address.
const PlaceholderText = "Alias will be created by the provider"

// Decision is the generation mode chosen for one request.
type Decision struct {
	Provider provider.ID       `json:"provider"`
	Domain   string            `json:"domain"`
	Mode     Mode              `json:"mode"`
	CatchAll provider.CatchAll `json:"catchAll"`
	// Caution is set when local generation proceeds without a confirmed
	// catch-all.
	Caution bool `json:"caution"`
}

// Preview is what the UI shows before submission.
type Preview struct {
	Decision
	LocalPart string `json:"localPart"`
	// Address is empty when the provider will pick it.
	Address     string `json:"address"`
	Display     string `json:"display"`
	Placeholder bool   `json:"placeholder"`
}

// SubmitRequest asks for an alias. Empty fields fall back to the settings.
type SubmitRequest struct {
	Provider   provider.ID `json:"provider,omitempty"`
	CurrentURL string      `json:"currentUrl,omitempty"`
	// LocalPart is the previewed local part, if any.
	LocalPart string `json:"localPart,omitempty"`
	Domain    string `json:"domain,omitempty"`
}

// SubmitResult is the final address.
type SubmitResult struct {
	Provider provider.ID `json:"provider"`
	Address  string      `json:"address"`
	Mode     Mode        `json:"mode"`
	// Created is set when the provider created the alias.
	Created bool `json:"created"`
}

// SubmitError is a creation failure that must reach the user.
type SubmitError struct {
	Provider provider.ID
	Reason   string
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("%s alias creation failed: %s", e.Provider, e.Reason)
}

// Decide picks the generation mode for a provider (the active one when id is
// empty). Providers without catch-all semantics always use server mode. For
// the others an enabled or unknown catch-all gives local mode, unknown with
// Caution, and a disabled one gives server mode.
func (o *Orchestrator) Decide(ctx context.Context, id provider.ID) (*Decision, error) {
	cfg, p, err := o.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	return o.decide(ctx, cfg, p, "")
}

func (o *Orchestrator) decide(ctx context.Context, cfg *settings.ProviderConfig, p provider.Provider, domain string) (*Decision, error) {
	domain = normalizeDomain(domain)
	if domain == "" {
		var err error
		if domain, err = o.domainFor(ctx, cfg); err != nil {
			return nil, err
		}
		domain = normalizeDomain(domain)
	}

	d := &Decision{Provider: cfg.ID, Domain: domain}
	caps := p.Capabilities()
	if !caps.CatchAll {
		d.Mode = ModeLocal
		if caps.ServerCreation {
			d.Mode = ModeServer
		}
		return d, nil
	}

	d.CatchAll = o.catchAll(ctx, cfg, p, domain)
	switch d.CatchAll {
	case provider.CatchAllEnabled:
		d.Mode = ModeLocal
	case provider.CatchAllDisabled:
		d.Mode = ModeServer
	default:
		d.Mode = ModeLocal
		d.Caution = true
	}
	return d, nil
}

// Preview generates a local part and the address it would produce. In
// server mode for catch-all providers the address is replaced by a
// placeholder since the provider will choose it.
func (o *Orchestrator) Preview(ctx context.Context, id provider.ID, currentURL string) (*Preview, error) {
	cfg, p, err := o.resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	d, err := o.decide(ctx, cfg, p, "")
	if err != nil {
		return nil, err
	}

	local := o.generator.Generate(cfg.ActiveFormat, currentURL, cfg.CustomRule)
	pv := &Preview{Decision: *d, LocalPart: local}
	if d.Mode == ModeServer && p.Capabilities().CatchAll {
		pv.Placeholder = true
		pv.Display = PlaceholderText
	} else {
		pv.Address = p.GenerateAddress(local, d.Domain)
		pv.Display = pv.Address
	}
	metrics.RecordAliasRequest(string(cfg.ID), string(d.Mode), "preview")
	return pv, nil
}

// Submit produces the final address.
//
// Local mode returns the composed address, creating it first when the
// provider config asks to wait for server confirmation. Server mode asks the
// provider to create the alias: catch-all providers get an empty local part
// and choose one themselves, the others receive the previewed one. When the
// provider reports that the domain is catch-all after all, the locally
// composed address is used. Any other failure is returned as *SubmitError.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	cfg, p, err := o.resolve(ctx, req.Provider)
	if err != nil {
		return nil, err
	}
	d, err := o.decide(ctx, cfg, p, req.Domain)
	if err != nil {
		return nil, err
	}

	local := req.LocalPart
	if local == "" {
		local = o.generator.Generate(cfg.ActiveFormat, req.CurrentURL, cfg.CustomRule)
	}
	localAddress := p.GenerateAddress(local, d.Domain)
	caps := p.Capabilities()

	result := &SubmitResult{Provider: cfg.ID, Mode: d.Mode}
	if d.Mode == ModeLocal && !(cfg.WaitServerConfirmation && caps.ServerCreation) {
		result.Address = localAddress
		metrics.RecordAliasRequest(string(cfg.ID), string(d.Mode), "local")
		return result, nil
	}

	opts := provider.CreateOptions{
		Alias:          local,
		Domain:         d.Domain,
		SourceHostname: hostname(req.CurrentURL),
		BaseURL:        cfg.BaseURL,
	}
	if d.Mode == ModeServer && caps.CatchAll {
		opts.Alias = ""
		opts.Format = serverFormat(cfg)
	}

	res := p.CreateAlias(ctx, cfg.Token, opts)
	switch {
	case res.Success:
		result.Address = res.CreatedAlias
		result.Created = true
		metrics.RecordAliasRequest(string(cfg.ID), string(d.Mode), "created")
		return result, nil
	case res.IsCatchAllDomain:
		o.logger.Info("provider reports catch-all domain, using local address", "provider", cfg.ID, "domain", d.Domain)
		if caps.CatchAll {
			o.remember(ctx, cfg, d.Domain, provider.CatchAllEnabled)
		}
		result.Address = localAddress
		result.Mode = ModeLocal
		metrics.RecordAliasRequest(string(cfg.ID), string(d.Mode), "catch_all_fallback")
		return result, nil
	default:
		metrics.RecordAliasRequest(string(cfg.ID), string(d.Mode), "failed")
		reason := res.Error
		if reason == "" {
			reason = "unknown error"
		}
		return nil, &SubmitError{Provider: cfg.ID, Reason: reason}
	}
}

// serverFormat maps the local strategy onto the provider-side format used
// when the server picks the local part.
func serverFormat(cfg *settings.ProviderConfig) string {
	if cfg.ActiveFormat == localpart.StrategyUUID {
		return "uuid"
	}
	return "random_characters"
}

func hostname(currentURL string) string {
	raw := strings.TrimSpace(currentURL)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
