// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

package api

import (
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/wherehaveibeen/internal/config"
	"github.com/tomtom215/wherehaveibeen/internal/logging"
	"github.com/tomtom215/wherehaveibeen/internal/route"
)

// overviewSuffix is dropped from forwarded paths so the upstream returns its
// default overview geometry.
const overviewSuffix = "?overview=false"

// ProxyRoute lets the browser reach a plain-HTTP routing server through this
// origin. It forwards GET {osrmURL}/route/v1/{coords} and returns the
// upstream JSON unchanged.
//
// coords arrives with a leading separator, which is dropped: "/driving/13.4,52.5;13.5,52.6"
// becomes "driving/13.4,52.5;13.5,52.6". Without osrmURL the default routing
// server is used.
func (h *Handler) ProxyRoute(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	coords := q.Get("coords")
	if len(coords) < 2 {
		respondError(w, r, http.StatusBadRequest, "MISSING_PARAMETER", "coords is required", nil)
		return
	}
	path := strings.TrimSuffix(coords[1:], overviewSuffix)

	baseURL := strings.TrimRight(strings.TrimSpace(q.Get("osrmURL")), "/")
	if baseURL == "" {
		_, baseURL = h.deps.Settings.Defaults()
	}
	if baseURL == "" {
		respondError(w, r, http.StatusBadRequest, "MISSING_PARAMETER", "osrmURL is required: no default routing server is configured", nil)
		return
	}
	if err := config.ValidateRoutingURL(baseURL); err != nil {
		respondError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	status, body, err := h.deps.Routes.Forward(r.Context(), baseURL, path)
	switch {
	case err != nil && route.IsBreakerOpen(err):
		respondError(w, r, http.StatusServiceUnavailable, "ROUTING_UNAVAILABLE", "Routing server is temporarily unavailable", err)
		return
	case err != nil:
		respondError(w, r, http.StatusBadGateway, "UPSTREAM_ERROR", "Routing request failed", err)
		return
	case !json.Valid(body):
		respondError(w, r, http.StatusBadGateway, "UPSTREAM_ERROR", "Routing server returned invalid JSON", nil)
		return
	}

	logging.Ctx(r.Context()).Debug().Int("status", status).Int("bytes", len(body)).Msg("Forwarded route request")
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("ETag", generateETag(body))
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		logging.Error().Err(err).Msg("Failed to write route response")
	}
}
