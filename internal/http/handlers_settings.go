package httpx

import (
	"net/http"

	"github.com/audioscribe/audioscribe/internal/domain/model"
	"github.com/audioscribe/audioscribe/internal/service"
)

// SettingsHandlers holds dependencies for owner settings HTTP handlers.
type SettingsHandlers struct {
	Svc *service.SettingsService
}

// Get handles GET /api/owners/{owner}/settings. Owners without a stored row
// get the built-in defaults.
func (h *SettingsHandlers) Get(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Svc.Get(r.Context(), r.PathValue("owner"))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, settings)
}

// Update handles PUT /api/owners/{owner}/settings.
func (h *SettingsHandlers) Update(w http.ResponseWriter, r *http.Request) {
	var settings model.OwnerSettings
	if !DecodeJSON(w, r, &settings) {
		return
	}
	settings.OwnerID = r.PathValue("owner")

	updated, err := h.Svc.Update(r.Context(), &settings)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, updated)
}
