// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

package route

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/tomtom215/wherehaveibeen/internal/chunk"
	"github.com/tomtom215/wherehaveibeen/internal/config"
	"github.com/tomtom215/wherehaveibeen/internal/logging"
	"github.com/tomtom215/wherehaveibeen/internal/metrics"
	"github.com/tomtom215/wherehaveibeen/internal/models"
)

// Thresholds pick a reconstruction strategy from the total number of fixes
// in a build. Bounds are exclusive upper limits.
type Thresholds struct {
	RoadSnapBelow       int
	RawBelow            int
	FineDecimationBelow int
	FineSpacingKm       float64
	CoarseSpacingKm     float64
}

// DefaultThresholds returns the stock strategy bands.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RoadSnapBelow:       500,
		RawBelow:            3000,
		FineDecimationBelow: 5000,
		FineSpacingKm:       0.01,
		CoarseSpacingKm:     0.1,
	}
}

// Plan is a chosen strategy; SpacingKm is set for decimation only.
type Plan struct {
	Strategy  models.Strategy
	SpacingKm float64
}

// Select returns the plan for a build with total fixes.
func (t Thresholds) Select(total int) Plan {
	switch {
	case total < t.RoadSnapBelow:
		return Plan{Strategy: models.StrategyRoadSnapped}
	case total < t.RawBelow:
		return Plan{Strategy: models.StrategyRaw}
	case total < t.FineDecimationBelow:
		return Plan{Strategy: models.StrategyDecimated, SpacingKm: t.FineSpacingKm}
	default:
		return Plan{Strategy: models.StrategyDecimated, SpacingKm: t.CoarseSpacingKm}
	}
}

// Config controls a Reconstructor.
type Config struct {
	Thresholds Thresholds
	Timeout    time.Duration // per road-snap request
	YieldEvery int
}

// ConfigFrom builds a Config from service configuration.
func ConfigFrom(rc *config.ReconstructionConfig, routing *config.RoutingConfig) Config {
	return Config{
		Thresholds: Thresholds{
			RoadSnapBelow:       rc.RoadSnapBelow,
			RawBelow:            rc.RawBelow,
			FineDecimationBelow: rc.FineDecimationBelow,
			FineSpacingKm:       rc.FineSpacingKm,
			CoarseSpacingKm:     rc.CoarseSpacingKm,
		},
		Timeout:    routing.Timeout,
		YieldEvery: rc.YieldEvery,
	}
}

// ReconstructionError means no strategy could produce a path for a segment.
type ReconstructionError struct {
	Strategy models.Strategy
	Err      error
}

func (e *ReconstructionError) Error() string {
	return fmt.Sprintf("reconstruct %s path: %v", e.Strategy, e.Err)
}

func (e *ReconstructionError) Unwrap() error {
	return e.Err
}

// errTooFewPoints is wrapped in a ReconstructionError for degenerate segments.
var errTooFewPoints = errors.New("segment has fewer than 2 points")

// Reconstructor turns segments into paths.
type Reconstructor struct {
	router Router
	cfg    Config
}

// NewReconstructor returns a Reconstructor that snaps small batches with
// router. A nil router makes road snapping fall back to raw every time.
func NewReconstructor(router Router, cfg Config) *Reconstructor {
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds()
	}
	if cfg.YieldEvery < 1 {
		cfg.YieldEvery = chunk.DefaultEvery
	}
	return &Reconstructor{router: router, cfg: cfg}
}

// Reconstruct produces the path for seg. totalFixCount is the number of fixes
// in the whole build and selects the strategy. Road-snap failures of any kind,
// cancellation included, degrade to the raw path and are never returned.
func (r *Reconstructor) Reconstruct(ctx context.Context, sess *Session, seg models.Segment, totalFixCount int) (models.ReconstructedPath, error) {
	plan := r.cfg.Thresholds.Select(totalFixCount)
	if len(seg.Points) < 2 {
		return models.ReconstructedPath{}, &ReconstructionError{Strategy: plan.Strategy, Err: errTooFewPoints}
	}

	start := time.Now()
	raw := seg.LineString()
	out := models.ReconstructedPath{Mode: seg.Mode, Strategy: plan.Strategy}

	switch plan.Strategy {
	case models.StrategyRoadSnapped:
		path, err := r.roadSnap(ctx, sess, raw)
		if err != nil {
			metrics.RoadSnapFallbacks.Inc()
			logging.Ctx(ctx).Warn().Err(err).
				Str("mode", string(seg.Mode)).
				Int("points", len(raw)).
				Msg("Road snapping failed, using raw path")
			out.Strategy = models.StrategyRaw
			out.Path = raw
		} else {
			out.Path = path
		}

	case models.StrategyRaw:
		out.Path = raw

	case models.StrategyDecimated:
		path, err := Decimate(ctx, raw, plan.SpacingKm, r.cfg.YieldEvery)
		if err != nil {
			return models.ReconstructedPath{}, &ReconstructionError{Strategy: plan.Strategy, Err: err}
		}
		if len(path) < 2 {
			// Everything collapsed into one spacing cell; draw its extent.
			path = orb.LineString{raw[0], raw[len(raw)-1]}
		}
		out.Path = path
	}

	metrics.RecordReconstruction(string(out.Strategy), time.Since(start))
	return out, nil
}

func (r *Reconstructor) roadSnap(ctx context.Context, sess *Session, waypoints orb.LineString) (orb.LineString, error) {
	if r.router == nil {
		return nil, errors.New("no router configured")
	}
	if sess == nil {
		return nil, errors.New("no routing session")
	}
	if sess.RoutingURL() == "" {
		return nil, errors.New("no routing service URL")
	}

	reqCtx, done := sess.Acquire(ctx, "route", r.cfg.Timeout)
	defer done()

	path, err := r.router.Route(reqCtx, sess.RoutingURL(), waypoints)
	if err != nil {
		return nil, err
	}
	if len(path) < 2 {
		return nil, ErrNoRoute
	}
	return path, nil
}
