// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/wherehaveibeen/internal/cache"
	"github.com/tomtom215/wherehaveibeen/internal/metrics"
	"github.com/tomtom215/wherehaveibeen/internal/owntracks"
)

// Locations forwards the recorder's GeoJSON for one user and optional device.
//
// Query: user (defaults to the basic auth user), device, startdate, enddate.
// Dates without an offset are read in the configured time zone.
func (h *Handler) Locations(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()

	user := requestUser(r)
	if user == "" {
		respondError(w, r, http.StatusBadRequest, "MISSING_PARAMETER", "user is required", nil)
		return
	}
	from, err := parseDateParam(r, "startdate", h.deps.Location)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_DATE", err.Error(), nil)
		return
	}
	to, err := parseDateParam(r, "enddate", h.deps.Location)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_DATE", err.Error(), nil)
		return
	}

	r = withCredentials(r)
	raw, err := h.deps.Locations.Locations(r.Context(), owntracks.LocationQuery{
		User:   user,
		Device: q.Get("device"),
		From:   from,
		To:     to,
	})
	if err != nil {
		status, code := upstreamStatus(err)
		respondError(w, r, status, code, "Failed to fetch locations", err)
		return
	}
	if !json.Valid(raw) {
		respondError(w, r, http.StatusBadGateway, "UPSTREAM_ERROR", "Location service returned invalid JSON", nil)
		return
	}
	respondSuccess(w, r, http.StatusOK, json.RawMessage(raw), start, false)
}

// Devices lists the last known position of each of the user's devices.
// Listings are served from DeviceCache when one is configured.
func (h *Handler) Devices(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	user := requestUser(r)
	if user == "" {
		respondError(w, r, http.StatusBadRequest, "MISSING_PARAMETER", "user is required", nil)
		return
	}

	key := devicesCacheKey(r, user)
	if h.deps.DeviceCache != nil {
		if devices, ok := h.deps.DeviceCache.Get(key); ok {
			metrics.RecordCacheOp("devices", "hit")
			respondSuccess(w, r, http.StatusOK, devices, start, true)
			return
		}
		metrics.RecordCacheOp("devices", "miss")
	}

	r = withCredentials(r)
	devices, err := h.deps.Locations.Devices(r.Context(), user)
	if err != nil {
		status, code := upstreamStatus(err)
		respondError(w, r, status, code, "Failed to fetch devices", err)
		return
	}
	if devices == nil {
		devices = []owntracks.Device{}
	}
	if h.deps.DeviceCache != nil {
		h.deps.DeviceCache.Set(key, devices)
	}
	respondSuccess(w, r, http.StatusOK, devices, start, false)
}

// devicesCacheKey scopes a listing to the credentials that fetched it, so one
// caller's recorder login never answers for another's.
func devicesCacheKey(r *http.Request, user string) string {
	authUser, authPass, _ := r.BasicAuth()
	return cache.GenerateKey("devices", struct {
		User     string `json:"user"`
		AuthUser string `json:"auth_user"`
		AuthPass string `json:"auth_pass"`
	}{user, authUser, authPass})
}
