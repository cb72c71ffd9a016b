// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/wherehaveibeen/internal/config"
	"github.com/tomtom215/wherehaveibeen/internal/models"
	"github.com/tomtom215/wherehaveibeen/internal/store"
)

// settingsResponse adds the values a build would actually use.
type settingsResponse struct {
	models.Settings
	Effective models.SettingsFingerprint `json:"effective"`
}

// GetSettings returns the owner's settings. Unsaved owners get zero values
// and the service defaults under "effective".
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	owner, ok := ownerParam(w, r)
	if !ok {
		return
	}

	st, err := h.deps.Settings.Get(owner)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "STORE_ERROR", "Failed to read settings", err)
		return
	}
	respondSuccess(w, r, http.StatusOK, h.settingsResponse(st), start, false)
}

// SaveSettings replaces the owner's settings. Omitted fields reset to the
// service defaults. A changed radius or routing URL invalidates cached
// coverage on the next build.
func (h *Handler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	owner, ok := ownerParam(w, r)
	if !ok {
		return
	}

	var body models.SaveSettingsRequest
	if err := decodeJSONBody(w, r, &body); err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}
	body.OSRMURL = strings.TrimRight(strings.TrimSpace(body.OSRMURL), "/")
	if apiErr := validateRequest(&body); apiErr != nil {
		respondAPIError(w, r, http.StatusBadRequest, apiErr, nil)
		return
	}
	if err := config.ValidateRoutingURL(body.OSRMURL); err != nil {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	st := models.Settings{RoutingURL: body.OSRMURL}
	if body.CircleSize != nil {
		st.BufferRadiusKm = *body.CircleSize
	}

	saved, err := h.deps.Settings.Save(owner, st)
	switch {
	case errors.Is(err, store.ErrQuotaExceeded):
		respondError(w, r, http.StatusInsufficientStorage, "QUOTA_EXCEEDED", "Storage quota exceeded", err)
		return
	case err != nil:
		respondError(w, r, http.StatusInternalServerError, "STORE_ERROR", "Failed to save settings", err)
		return
	}
	respondSuccess(w, r, http.StatusOK, h.settingsResponse(saved), start, false)
}

func (h *Handler) settingsResponse(st models.Settings) settingsResponse {
	radius, routingURL := h.deps.Settings.Defaults()
	return settingsResponse{Settings: st, Effective: st.Fingerprint(radius, routingURL)}
}

func ownerParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := chi.URLParam(r, "owner")
	// Device is a placeholder so the shared identity rules apply to owner.
	req := models.BuildCoverageRequest{Owner: owner, Device: "settings"}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, r, http.StatusBadRequest, apiErr, nil)
		return "", false
	}
	return owner, true
}
