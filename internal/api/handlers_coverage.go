// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/wherehaveibeen/internal/logging"
	"github.com/tomtom215/wherehaveibeen/internal/models"
	"github.com/tomtom215/wherehaveibeen/internal/owntracks"
	"github.com/tomtom215/wherehaveibeen/internal/pipeline"
)

// BuildCoverage runs a coverage build and returns the record.
//
// Body: {"owner", "device", "startDate"?, "endDate"?, "force"?}. An empty
// range with no cached coverage is 404 NO_DATA. A build replaced by a newer
// one for the same identity is 409 SUPERSEDED, and one that outlives
// BuildTimeout is 504 BUILD_TIMEOUT.
func (h *Handler) BuildCoverage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var body models.BuildCoverageRequest
	if err := decodeJSONBody(w, r, &body); err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}
	if apiErr := validateRequest(&body); apiErr != nil {
		respondAPIError(w, r, http.StatusBadRequest, apiErr, nil)
		return
	}

	from, err := owntracksDate(body.StartDate, h.deps.Location)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_DATE", "startDate: "+err.Error(), nil)
		return
	}
	to, err := owntracksDate(body.EndDate, h.deps.Location)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "INVALID_DATE", "endDate: "+err.Error(), nil)
		return
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		respondError(w, r, http.StatusBadRequest, "INVALID_DATE", "endDate is before startDate", nil)
		return
	}

	r = withCredentials(r)
	ctx := r.Context()
	if h.deps.BuildTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.deps.BuildTimeout)
		defer cancel()
	}
	res, err := h.deps.Builder.Build(ctx, pipeline.BuildRequest{
		Owner:  body.Owner,
		Device: body.Device,
		From:   from,
		To:     to,
		Force:  body.Force,
	})
	switch {
	case errors.Is(err, pipeline.ErrNoData):
		respondError(w, r, http.StatusNotFound, "NO_DATA", "No location data for the requested range", nil)
		return
	case errors.Is(err, pipeline.ErrSuperseded):
		respondError(w, r, http.StatusConflict, "SUPERSEDED", "A newer build for this device replaced this one", nil)
		return
	case err != nil && r.Context().Err() != nil:
		// Client went away; nobody reads the response.
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Coverage build abandoned by client")
		return
	case err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		respondError(w, r, http.StatusGatewayTimeout, "BUILD_TIMEOUT", "Coverage build took too long", err)
		return
	case err != nil:
		status, code := upstreamStatus(err)
		respondError(w, r, status, code, "Coverage build failed", err)
		return
	}

	resp := models.NewCoverageResponse(res.Record)
	resp.Build = &models.BuildSummary{
		ID:          res.BuildID,
		Incremental: res.Incremental,
		Persisted:   res.Persisted,
		NewFixes:    res.NewFixes,
		Segments:    res.Segments,
		Skipped:     res.Skipped,
	}
	respondSuccess(w, r, http.StatusOK, resp, start, res.FromCache)
}

// GetCoverage returns the cached record without building.
func (h *Handler) GetCoverage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, ok := identityParams(w, r)
	if !ok {
		return
	}

	rec, found := h.deps.Coverage.Get(id)
	if !found {
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "No cached coverage for this device", nil)
		return
	}

	// A record built under other settings is as good as none.
	fp, err := h.deps.Settings.Fingerprint(id.Owner)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "SETTINGS_ERROR", "Failed to load settings", err)
		return
	}
	if !h.deps.Coverage.Validate(rec, fp) {
		h.deps.Coverage.Invalidate(id)
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "No cached coverage for this device", nil)
		return
	}
	respondSuccess(w, r, http.StatusOK, models.NewCoverageResponse(rec), start, true)
}

// DeleteCoverage cancels any running build and drops the cached record.
func (h *Handler) DeleteCoverage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	id, ok := identityParams(w, r)
	if !ok {
		return
	}

	h.deps.Builder.Clear(r.Context(), id)
	logging.Ctx(r.Context()).Info().
		Str("owner", sanitizeLogValue(id.Owner)).
		Str("device", sanitizeLogValue(id.Device)).
		Msg("Coverage cache cleared")
	respondSuccess(w, r, http.StatusOK, map[string]string{"message": "Coverage cleared"}, start, false)
}

// identityParams reads and validates {owner} and {device}.
func identityParams(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	id := models.Identity{Owner: chi.URLParam(r, "owner"), Device: chi.URLParam(r, "device")}
	req := models.BuildCoverageRequest{Owner: id.Owner, Device: id.Device}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, r, http.StatusBadRequest, apiErr, nil)
		return models.Identity{}, false
	}
	return id, true
}

func owntracksDate(value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return owntracks.ParseLocalDate(value, loc)
}
