package api

import (
	"net/http"

	"github.com/sipico/alias-relay/internal/orchestrator"
	"github.com/sipico/alias-relay/internal/provider"
)

type previewRequest struct {
	Provider   string `json:"provider" validate:"omitempty,oneof=addy simplelogin"`
	CurrentURL string `json:"currentUrl" validate:"max=2048"`
}

type aliasRequest struct {
	Provider   string `json:"provider" validate:"omitempty,oneof=addy simplelogin"`
	CurrentURL string `json:"currentUrl" validate:"max=2048"`
	LocalPart  string `json:"localPart" validate:"max=64,excludes=@"`
	Domain     string `json:"domain" validate:"max=253"`
}

// HandlePreview generates a preview for the given or active provider.
// POST /v1/alias/preview
func (h *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	pv, err := h.orchestrator.Preview(r.Context(), provider.ID(req.Provider), req.CurrentURL)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pv)
}

// HandleCreateAlias produces the final address, creating it at the provider
// when the mode requires it.
// POST /v1/alias
func (h *Handler) HandleCreateAlias(w http.ResponseWriter, r *http.Request) {
	var req aliasRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	res, err := h.orchestrator.Submit(r.Context(), orchestrator.SubmitRequest{
		Provider:   provider.ID(req.Provider),
		CurrentURL: req.CurrentURL,
		LocalPart:  req.LocalPart,
		Domain:     req.Domain,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}
