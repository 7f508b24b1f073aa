package api

import (
	"net/http"
)

type licenseRequest struct {
	Key   string `json:"key" validate:"required,max=256"`
	Label string `json:"label" validate:"max=128"`
}

// HandleActivateLicense validates and stores a license key.
// POST /v1/license
func (h *Handler) HandleActivateLicense(w http.ResponseWriter, r *http.Request) {
	var req licenseRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	label := req.Label
	if label == "" {
		label = "aliasd"
	}
	status, err := h.license.Validate(r.Context(), req.Key, label)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleGetLicense returns the stored license status.
// GET /v1/license
func (h *Handler) HandleGetLicense(w http.ResponseWriter, r *http.Request) {
	status, err := h.license.Current(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleDeleteLicense forgets the stored license.
// DELETE /v1/license
func (h *Handler) HandleDeleteLicense(w http.ResponseWriter, r *http.Request) {
	if err := h.license.Clear(r.Context()); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
