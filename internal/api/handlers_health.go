// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/wherehaveibeen/internal/models"
)

// Health reports liveness. Status is "degraded" when the cache backend
// cannot report its size.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	health := models.HealthStatus{
		Status:       "healthy",
		Version:      Version,
		CacheBackend: h.deps.CacheBackend,
		Uptime:       time.Since(h.startTime).Seconds(),
	}

	if h.deps.Usage != nil {
		used, err := h.deps.Usage.Usage()
		if err != nil {
			health.Status = "degraded"
		}
		health.CacheBytes = used
	}

	respondSuccess(w, r, http.StatusOK, health, start, false)
}
