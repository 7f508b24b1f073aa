package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sipico/alias-relay/internal/localpart"
	"github.com/sipico/alias-relay/internal/logging"
	"github.com/sipico/alias-relay/internal/provider"
	"github.com/sipico/alias-relay/internal/settings"
)

// ProviderView is a provider as shown to the UI. The token is masked.
type ProviderView struct {
	ID           provider.ID              `json:"id"`
	DisplayName  string                   `json:"displayName"`
	Capabilities provider.Capabilities    `json:"capabilities"`
	Configured   bool                     `json:"configured"`
	Active       bool                     `json:"active"`
	Config       *settings.ProviderConfig `json:"config,omitempty"`
}

// updateProviderRequest is a partial update; nil fields are left alone.
type updateProviderRequest struct {
	Enabled                *bool           `json:"enabled"`
	Token                  *string         `json:"token" validate:"omitempty,max=512"`
	BaseURL                *string         `json:"baseUrl" validate:"omitempty,max=2048"`
	DefaultDomain          *string         `json:"defaultDomain" validate:"omitempty,max=253"`
	ActiveFormat           *string         `json:"activeFormat" validate:"omitempty,oneof=uuid random domain custom"`
	CustomRule             *localpart.Rule `json:"customRule"`
	WaitServerConfirmation *bool           `json:"waitServerConfirmation"`
	FavoriteDomains        []string        `json:"favoriteDomains" validate:"omitempty,max=100,dive,max=253"`
}

type verifyRequest struct {
	Token   string `json:"token" validate:"max=512"`
	BaseURL string `json:"baseUrl" validate:"omitempty,url"`
}

type activeProviderRequest struct {
	Provider string `json:"provider" validate:"required,oneof=addy simplelogin"`
}

// providerID reads and checks the {id} URL parameter.
func (h *Handler) providerID(w http.ResponseWriter, r *http.Request) (provider.ID, bool) {
	id := provider.ID(chi.URLParam(r, "id"))
	if _, err := h.registry.Get(id); err != nil {
		h.writeDomainError(w, r, err)
		return "", false
	}
	return id, true
}

func (h *Handler) view(p provider.Provider, cfg *settings.ProviderConfig, active provider.ID) ProviderView {
	v := ProviderView{
		ID:           p.ID(),
		DisplayName:  p.DisplayName(),
		Capabilities: p.Capabilities(),
		Active:       active != "" && active == p.ID(),
	}
	if cfg != nil {
		masked := cfg.Clone()
		if masked.Token != "" {
			masked.Token = logging.MaskSecret(masked.Token)
		}
		v.Configured = true
		v.Config = masked
	}
	return v
}

func (h *Handler) activeID(r *http.Request) provider.ID {
	cfg, err := h.settings.Active(r.Context())
	if err != nil {
		return ""
	}
	return cfg.ID
}

// HandleListProviders lists every registered provider with its settings.
// GET /v1/providers
func (h *Handler) HandleListProviders(w http.ResponseWriter, r *http.Request) {
	configs, err := h.settings.List(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	byID := make(map[provider.ID]*settings.ProviderConfig, len(configs))
	for _, cfg := range configs {
		byID[cfg.ID] = cfg
	}

	active := h.activeID(r)
	out := make([]ProviderView, 0)
	for _, p := range h.registry.List() {
		out = append(out, h.view(p, byID[p.ID()], active))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGetProvider returns one provider.
// GET /v1/providers/{id}
func (h *Handler) HandleGetProvider(w http.ResponseWriter, r *http.Request) {
	id, ok := h.providerID(w, r)
	if !ok {
		return
	}
	p, _ := h.registry.Get(id) //nolint:errcheck
	cfg, err := h.settings.Get(r.Context(), id)
	if err != nil && !errors.Is(err, settings.ErrNotConfigured) {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(p, cfg, h.activeID(r)))
}

// HandleUpdateProvider creates or partially updates a provider config.
// Changing the token or base URL drops the cached domain data of the old
// account.
// PUT /v1/providers/{id}
func (h *Handler) HandleUpdateProvider(w http.ResponseWriter, r *http.Request) {
	id, ok := h.providerID(w, r)
	if !ok {
		return
	}
	var req updateProviderRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	ctx := r.Context()
	if req.Token != nil || req.BaseURL != nil {
		if err := h.orchestrator.InvalidateCache(ctx, id); err != nil && !errors.Is(err, settings.ErrNotConfigured) {
			h.logger.Warn("failed to invalidate domain cache", "provider", id, "error", err)
		}
	}

	cfg, err := h.settings.Update(ctx, id, func(c *settings.ProviderConfig) error {
		if req.Enabled != nil {
			c.Enabled = *req.Enabled
		}
		if req.Token != nil {
			if *req.Token != c.Token {
				c.CachedDomains = nil
				c.DomainCatchAllStatus = map[string]bool{}
			}
			c.Token = *req.Token
		}
		if req.BaseURL != nil {
			c.BaseURL = *req.BaseURL
		}
		if req.DefaultDomain != nil {
			c.DefaultDomain = *req.DefaultDomain
		}
		if req.ActiveFormat != nil {
			c.ActiveFormat = localpart.Strategy(*req.ActiveFormat)
		}
		if req.CustomRule != nil {
			c.CustomRule = req.CustomRule
		}
		if req.WaitServerConfirmation != nil {
			c.WaitServerConfirmation = *req.WaitServerConfirmation
		}
		if req.FavoriteDomains != nil {
			c.FavoriteDomains = req.FavoriteDomains
		}
		return nil
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	h.logger.Info("provider settings updated", "provider", id, "enabled", cfg.Enabled)
	p, _ := h.registry.Get(id) //nolint:errcheck
	writeJSON(w, http.StatusOK, h.view(p, cfg, h.activeID(r)))
}

// HandleDeleteProvider removes a provider config and its cache entries.
// DELETE /v1/providers/{id}
func (h *Handler) HandleDeleteProvider(w http.ResponseWriter, r *http.Request) {
	id, ok := h.providerID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if err := h.orchestrator.InvalidateCache(ctx, id); err != nil && !errors.Is(err, settings.ErrNotConfigured) {
		h.logger.Warn("failed to invalidate domain cache", "provider", id, "error", err)
	}
	if err := h.settings.Remove(ctx, id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.logger.Info("provider settings removed", "provider", id)
	w.WriteHeader(http.StatusNoContent)
}

// HandleVerifyProvider checks a token, or the stored one when the body has
// none.
// POST /v1/providers/{id}/verify
func (h *Handler) HandleVerifyProvider(w http.ResponseWriter, r *http.Request) {
	id, ok := h.providerID(w, r)
	if !ok {
		return
	}
	var req verifyRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	valid, err := h.orchestrator.Verify(r.Context(), id, req.Token, req.BaseURL)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"provider": id, "valid": valid})
}

// HandleDomains lists the sendable domains.
// GET /v1/providers/{id}/domains?refresh=true
func (h *Handler) HandleDomains(w http.ResponseWriter, r *http.Request) {
	id, ok := h.providerID(w, r)
	if !ok {
		return
	}
	refresh := false
	if raw := r.URL.Query().Get("refresh"); raw != "" {
		var err error
		if refresh, err = strconv.ParseBool(raw); err != nil {
			WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "refresh must be a boolean")
			return
		}
	}

	domains, err := h.orchestrator.Domains(r.Context(), id, refresh)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"provider": id, "domains": domains})
}

// HandleCatchAll resolves the catch-all state of one domain.
// GET /v1/providers/{id}/domains/{domain}/catch-all
func (h *Handler) HandleCatchAll(w http.ResponseWriter, r *http.Request) {
	id, ok := h.providerID(w, r)
	if !ok {
		return
	}
	domain := chi.URLParam(r, "domain")
	status, err := h.orchestrator.CatchAll(r.Context(), id, domain)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"provider": id, "domain": domain, "catchAll": status})
}

// HandleInvalidateCache drops cached domains and catch-all states.
// DELETE /v1/providers/{id}/cache
func (h *Handler) HandleInvalidateCache(w http.ResponseWriter, r *http.Request) {
	id, ok := h.providerID(w, r)
	if !ok {
		return
	}
	if err := h.orchestrator.InvalidateCache(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMode returns the generation mode decision.
// GET /v1/providers/{id}/mode
func (h *Handler) HandleMode(w http.ResponseWriter, r *http.Request) {
	id, ok := h.providerID(w, r)
	if !ok {
		return
	}
	d, err := h.orchestrator.Decide(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// HandleSetActiveProvider selects the provider used when requests name none.
// PUT /v1/active-provider
func (h *Handler) HandleSetActiveProvider(w http.ResponseWriter, r *http.Request) {
	var req activeProviderRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	id := provider.ID(req.Provider)
	if err := h.settings.SetActive(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.logger.Info("active provider changed", "provider", id)
	writeJSON(w, http.StatusOK, map[string]any{"provider": id})
}
