// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

package models

import (
	"time"

	"github.com/paulmach/orb/geojson"
)

// APIResponse is the envelope used by every JSON endpoint.
//
//	{
//	  "status": "success",
//	  "data": {...},
//	  "metadata": {"timestamp": "2026-03-01T12:00:00Z", "query_time_ms": 840}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata contains response metadata. Cached is true when a coverage build
// was answered from the cache without folding in new fixes.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
	Cached      bool      `json:"cached,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
}

// APIError is the machine-readable error body.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// BuildCoverageRequest triggers a coverage build for one identity. Dates use
// the same loose ISO format as the location filters.
type BuildCoverageRequest struct {
	Owner     string `json:"owner" validate:"required,max=64,identity"`
	Device    string `json:"device" validate:"required,max=64,identity"`
	StartDate string `json:"startDate,omitempty" validate:"omitempty,max=40"`
	EndDate   string `json:"endDate,omitempty" validate:"omitempty,max=40"`
	Force     bool   `json:"force,omitempty"`
}

// SaveSettingsRequest mirrors the settings form.
type SaveSettingsRequest struct {
	CircleSize *float64 `json:"circleSize" validate:"omitempty,gt=0,lte=100"`
	OSRMURL    string   `json:"osrmURL" validate:"omitempty,max=512,url"`
}

// HealthStatus is returned by /health.
type HealthStatus struct {
	Status       string  `json:"status"`
	Version      string  `json:"version"`
	CacheBackend string  `json:"cache_backend"`
	CacheBytes   int64   `json:"cache_bytes"`
	Uptime       float64 `json:"uptime_seconds"`
}

// BuildSummary describes the build that produced a CoverageResponse.
type BuildSummary struct {
	ID          string `json:"id"`
	Incremental bool   `json:"incremental"`
	Persisted   bool   `json:"persisted"`
	NewFixes    int    `json:"newFixes"`
	Segments    int    `json:"segments"`
	Skipped     int    `json:"skipped,omitempty"`
}

// CoverageResponse is a cache record rendered for the map: one GeoJSON
// feature per mode that has coverage.
type CoverageResponse struct {
	Owner       string                     `json:"owner"`
	Device      string                     `json:"device"`
	Coverage    *geojson.FeatureCollection `json:"coverage"`
	Metrics     AggregateMetrics           `json:"aggregateMetrics"`
	Fingerprint SettingsFingerprint        `json:"fingerprint"`
	UpdatedAt   time.Time                  `json:"updatedAt"`
	Build       *BuildSummary              `json:"build,omitempty"`
}

// NewCoverageResponse renders rec. Feature properties carry the mode and
// its time range.
func NewCoverageResponse(rec *CacheRecord) *CoverageResponse {
	fc := geojson.NewFeatureCollection()
	for _, mode := range Modes {
		p := rec.Polygon(mode)
		if p == nil || p.Geometry == nil {
			continue
		}
		f := geojson.NewFeature(p.Geometry)
		f.Properties["mode"] = string(mode)
		f.Properties["distanceKm"] = rec.Metrics.DistanceKm[mode]
		f.Properties["segmentCount"] = rec.Metrics.SegmentCount[mode]
		if p.RangeStart != nil {
			f.Properties["rangeStart"] = p.RangeStart.UTC().Format(time.RFC3339)
		}
		if p.RangeEnd != nil {
			f.Properties["rangeEnd"] = p.RangeEnd.UTC().Format(time.RFC3339)
		}
		fc.Append(f)
	}
	return &CoverageResponse{
		Owner:       rec.Owner,
		Device:      rec.Device,
		Coverage:    fc,
		Metrics:     rec.Metrics,
		Fingerprint: rec.Fingerprint,
		UpdatedAt:   rec.UpdatedAt,
	}
}
