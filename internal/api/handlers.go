// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

package api

import (
	"context"
	"time"

	"github.com/tomtom215/wherehaveibeen/internal/cache"
	"github.com/tomtom215/wherehaveibeen/internal/models"
	"github.com/tomtom215/wherehaveibeen/internal/owntracks"
	"github.com/tomtom215/wherehaveibeen/internal/pipeline"
)

// Version is reported by /health.
var Version = "dev"

// CoverageBuilder runs and clears builds. *pipeline.Builder implements it.
type CoverageBuilder interface {
	Build(ctx context.Context, req pipeline.BuildRequest) (*pipeline.BuildResult, error)
	Clear(ctx context.Context, id models.Identity)
}

// CoverageReader reads cached records. *store.CacheStore implements it.
type CoverageReader interface {
	Get(id models.Identity) (*models.CacheRecord, bool)
	Validate(rec *models.CacheRecord, fp models.SettingsFingerprint) bool
	Invalidate(id models.Identity)
}

// SettingsRepository reads and writes per-owner settings.
// *store.SettingsStore implements it.
type SettingsRepository interface {
	Get(owner string) (models.Settings, error)
	Save(owner string, st models.Settings) (models.Settings, error)
	Fingerprint(owner string) (models.SettingsFingerprint, error)
	Defaults() (radiusKm float64, routingURL string)
}

// LocationProvider reads the location recorder. *owntracks.Client implements it.
type LocationProvider interface {
	Locations(ctx context.Context, q owntracks.LocationQuery) ([]byte, error)
	Devices(ctx context.Context, user string) ([]owntracks.Device, error)
}

// RouteForwarder forwards raw route requests. *route.OSRMClient implements it.
type RouteForwarder interface {
	Forward(ctx context.Context, baseURL, path string) (int, []byte, error)
}

// UsageReporter reports cache size in bytes. Both store backends implement it.
type UsageReporter interface {
	Usage() (int64, error)
}

// Deps are the Handler's collaborators. Usage and DeviceCache may be nil.
type Deps struct {
	Builder   CoverageBuilder
	Coverage  CoverageReader
	Settings  SettingsRepository
	Locations LocationProvider
	Routes    RouteForwarder
	Usage     UsageReporter

	// DeviceCache holds recent device listings keyed by user and credentials.
	DeviceCache *cache.Cache[[]owntracks.Device]

	// CacheBackend names the backend in /health, e.g. "badger".
	CacheBackend string

	// Location is the zone date-only filters are read in. nil means time.Local.
	Location *time.Location

	// BuildTimeout bounds one coverage build. 0 leaves it to the client.
	BuildTimeout time.Duration
}

// Handler holds the API handlers. Methods are split across files:
//   - handlers_health.go: /health
//   - handlers_coverage.go: coverage build, read and clear
//   - handlers_settings.go: per-owner settings
//   - handlers_owntracks.go: location and device passthrough
//   - handlers_proxy.go: same-origin route forwarding
type Handler struct {
	deps      Deps
	startTime time.Time
}

// NewHandler creates a Handler.
func NewHandler(deps Deps) *Handler {
	if deps.Location == nil {
		deps.Location = time.Local
	}
	return &Handler{deps: deps, startTime: time.Now()}
}
