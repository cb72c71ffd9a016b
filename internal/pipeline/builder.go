// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

// Package pipeline runs a coverage build for one (owner, device) identity:
// fetch fixes, segment, reconstruct paths, buffer and union per mode, and
// persist the record.
//
// At most one build runs per identity. A new request cancels the running
// build and waits until it has released its routing resources before
// starting, so the cache record always has a single writer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/tomtom215/wherehaveibeen/internal/chunk"
	"github.com/tomtom215/wherehaveibeen/internal/config"
	"github.com/tomtom215/wherehaveibeen/internal/coverage"
	"github.com/tomtom215/wherehaveibeen/internal/logging"
	"github.com/tomtom215/wherehaveibeen/internal/metrics"
	"github.com/tomtom215/wherehaveibeen/internal/models"
	"github.com/tomtom215/wherehaveibeen/internal/owntracks"
	"github.com/tomtom215/wherehaveibeen/internal/route"
	"github.com/tomtom215/wherehaveibeen/internal/store"
	"github.com/tomtom215/wherehaveibeen/internal/trace"
)

var (
	// ErrNoData means the request matched no usable fixes and there is no
	// cached coverage to fall back on.
	ErrNoData = errors.New("no location data for the requested range")

	// ErrSuperseded is the cancellation cause of a build replaced by a newer
	// request for the same identity.
	ErrSuperseded = errors.New("build superseded by a newer request")
)

// Source supplies fixes in timestamp order.
type Source interface {
	Fixes(ctx context.Context, q owntracks.LocationQuery) ([]models.Fix, error)
}

// Stages reported through ProgressFunc.
const (
	StageReconstruct = "reconstruct" // units are segments
	StageCoverage    = "coverage"    // units are reconstructed paths, all modes together
)

// ProgressFunc receives build progress: done of total units within stage.
// It runs on the build goroutine and must return quickly. ctx carries the
// build ID for logging.Ctx.
type ProgressFunc func(ctx context.Context, stage string, done, total int)

// Options bundles the per-stage configuration.
type Options struct {
	Segmentation   trace.Config
	Reconstruction route.Config
	Coverage       coverage.Config // RadiusKm and Progress are set per build

	// Progress is optional. Reconstruction reports after every segment;
	// coverage reports at its yield points and when each mode finishes.
	Progress ProgressFunc
}

func (o Options) report(ctx context.Context, stage string, done, total int) {
	if o.Progress != nil {
		o.Progress(ctx, stage, done, total)
	}
}

// OptionsFrom maps service configuration onto Options.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		Segmentation: trace.Config{
			MaxAccuracyMeters: cfg.Segmentation.MaxAccuracyMeters,
			MinStepKm:         cfg.Segmentation.MinStepKm,
			FlyingSpeedKmh:    cfg.Segmentation.FlyingSpeedKmh,
			FlyingJumpKm:      cfg.Segmentation.FlyingJumpKm,
		},
		Reconstruction: route.ConfigFrom(&cfg.Reconstruction, &cfg.Routing),
		Coverage: coverage.Config{
			RadiusKm:          cfg.Coverage.DefaultBufferRadiusKm,
			SimplifyTolerance: cfg.Coverage.SimplifyTolerance,
			QuadSegs:          cfg.Coverage.QuadSegs,
			YieldEvery:        cfg.Reconstruction.YieldEvery,
		},
	}
}

// BuildRequest selects what to build.
type BuildRequest struct {
	Owner  string
	Device string
	From   time.Time // zero means the provider's default start
	To     time.Time // zero means the provider's default end
	Force  bool      // discard any cached record first
}

// Identity returns the request's identity.
func (r BuildRequest) Identity() models.Identity {
	return models.Identity{Owner: r.Owner, Device: r.Device}
}

// BuildResult describes a finished build.
type BuildResult struct {
	BuildID     string
	Record      *models.CacheRecord
	FromCache   bool // nothing new; Record is the cached one
	Incremental bool // Record was seeded from the cache
	Persisted   bool // Record was written to the store
	NewFixes    int
	Segments    int
	Skipped     int // segments no strategy could reconstruct
}

type buildSlot struct {
	id     string
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// Builder runs builds. It is safe for concurrent use.
type Builder struct {
	source   Source
	router   route.Router
	cache    *store.CacheStore
	settings *store.SettingsStore
	opts     Options
	now      func() time.Time

	mu    sync.Mutex
	slots map[string]*buildSlot
}

// NewBuilder wires a Builder. router may be nil, in which case small
// batches are drawn raw.
func NewBuilder(source Source, router route.Router, cache *store.CacheStore, settings *store.SettingsStore, opts Options) *Builder {
	return &Builder{
		source:   source,
		router:   router,
		cache:    cache,
		settings: settings,
		opts:     opts,
		now:      time.Now,
		slots:    make(map[string]*buildSlot),
	}
}

// Build runs one build. It returns ErrNoData when there is nothing to show,
// and ErrSuperseded (wrapped) when a newer build for the same identity
// replaced this one.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	start := time.Now()
	id := req.Identity()

	ctx, slot := b.acquire(ctx, id.Key())
	defer b.release(id.Key(), slot)

	ctx = logging.ContextWithBuildID(ctx, slot.id)
	res, err := b.run(ctx, slot.id, req)

	outcome := "built"
	switch {
	case errors.Is(err, ErrNoData):
		outcome = "no_data"
	case err != nil && ctx.Err() != nil:
		outcome = "canceled"
		if cause := context.Cause(ctx); cause != nil {
			err = fmt.Errorf("build %s: %w", slot.id, cause)
		}
	case err != nil:
		outcome = "error"
	case res.FromCache:
		outcome = "cached"
	}
	metrics.RecordBuild(outcome, time.Since(start))

	log := logging.Ctx(ctx)
	if err != nil && outcome != "no_data" {
		log.Warn().Err(err).Str("owner", req.Owner).Str("device", req.Device).Str("outcome", outcome).Msg("Coverage build did not complete")
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("owner", req.Owner).
		Str("device", req.Device).
		Str("outcome", outcome).
		Int("new_fixes", res.NewFixes).
		Int("segments", res.Segments).
		Bool("incremental", res.Incremental).
		Bool("persisted", res.Persisted).
		Dur("duration", time.Since(start)).
		Msg("Coverage build finished")
	return res, nil
}

// Clear cancels any running build for id and deletes its cached record.
func (b *Builder) Clear(ctx context.Context, id models.Identity) {
	_, slot := b.acquire(ctx, id.Key())
	defer b.release(id.Key(), slot)
	b.cache.Invalidate(id)
}

// Running reports whether a build holds the slot for id.
func (b *Builder) Running(id models.Identity) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.slots[id.Key()]
	return ok
}

// acquire installs a new slot for key, cancels the previous holder and waits
// for it to finish. The returned context is canceled with ErrSuperseded if a
// later request takes the slot.
func (b *Builder) acquire(parent context.Context, key string) (context.Context, *buildSlot) {
	ctx, cancel := context.WithCancelCause(parent)
	slot := &buildSlot{id: logging.GenerateBuildID(), cancel: cancel, done: make(chan struct{})}

	b.mu.Lock()
	prev := b.slots[key]
	b.slots[key] = slot
	b.mu.Unlock()

	if prev != nil {
		prev.cancel(ErrSuperseded)
		// The previous build has been told to stop; wait for it so its
		// session is released and its cache write has landed or been skipped.
		<-prev.done
		logging.Debug().Str("key", key).Str("superseded", prev.id).Str("build_id", slot.id).Msg("Superseded running build")
	}
	return ctx, slot
}

func (b *Builder) release(key string, slot *buildSlot) {
	b.mu.Lock()
	if b.slots[key] == slot {
		delete(b.slots, key)
	}
	b.mu.Unlock()
	slot.cancel(nil)
	close(slot.done)
}

func (b *Builder) run(ctx context.Context, buildID string, req BuildRequest) (*BuildResult, error) {
	id := req.Identity()
	log := logging.Ctx(ctx)

	fp, err := b.settings.Fingerprint(req.Owner)
	if err != nil {
		return nil, fmt.Errorf("resolve settings: %w", err)
	}

	cached, found := b.cache.Get(id)
	valid := !req.Force && found && b.cache.Validate(cached, fp)
	if !valid {
		// Get has already dropped undecodable records.
		if found || req.Force {
			log.Debug().Bool("force", req.Force).Bool("found", found).Msg("Discarding cached coverage")
			b.cache.Invalidate(id)
		}
		cached = nil
	}

	q := owntracks.LocationQuery{User: req.Owner, Device: req.Device, From: req.From, To: req.To}
	var cachedEnd *time.Time
	if valid {
		cachedEnd = cached.LatestRangeEnd()
		if cachedEnd != nil && cachedEnd.After(q.From) {
			q.From = *cachedEnd
		}
	}

	fixes, err := b.source.Fixes(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetch fixes: %w", err)
	}
	if cachedEnd != nil {
		fixes = after(fixes, *cachedEnd)
	}

	res := &BuildResult{BuildID: buildID, NewFixes: len(fixes), Incremental: valid}
	if len(fixes) == 0 {
		return b.cachedOrNoData(res, cached)
	}

	seg := trace.NewSegmenter(b.opts.Segmentation).Run(fixes)
	if seg.Empty() {
		log.Debug().Int("fixes", len(fixes)).Int("kept", seg.Kept).Msg("No segment survived filtering")
		return b.cachedOrNoData(res, cached)
	}
	res.Segments = len(seg.All)

	paths, last, skipped, err := b.reconstruct(ctx, buildID, fp.RoutingServiceURL, seg.All, len(fixes))
	if err != nil {
		return nil, err
	}
	res.Skipped = skipped
	if len(paths) == 0 {
		return b.cachedOrNoData(res, cached)
	}

	rec := cached
	if rec == nil {
		rec = models.NewCacheRecord(id, fp)
	}
	if err := b.fold(ctx, rec, paths, fp.BufferRadiusKm, fixes); err != nil {
		return nil, err
	}
	rec.Metrics.FixCount += len(fixes)
	if last != "" {
		rec.Metrics.LastStrategy = last
	}
	rec.UpdatedAt = b.now().UTC()
	res.Record = rec

	// A superseded build must not overwrite its successor's record.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res.Persisted = b.cache.Put(id, rec)
	if !res.Persisted {
		log.Warn().Msg("Coverage record not persisted, returning in-memory result")
	}
	return res, nil
}

func (b *Builder) cachedOrNoData(res *BuildResult, cached *models.CacheRecord) (*BuildResult, error) {
	if cached == nil {
		return nil, ErrNoData
	}
	res.Record = cached
	res.FromCache = true
	res.Persisted = true
	return res, nil
}

// reconstruct turns segments into paths in chronological order under one
// routing session that is released before returning. It also reports the
// strategy of the last path produced.
func (b *Builder) reconstruct(ctx context.Context, buildID, routingURL string, segments []models.Segment, total int) (map[models.Mode][]models.ReconstructedPath, models.Strategy, int, error) {
	sess := route.NewSession(buildID, routingURL)
	defer sess.Release()

	rc := route.NewReconstructor(b.router, b.opts.Reconstruction)
	paths := make(map[models.Mode][]models.ReconstructedPath, len(models.Modes))
	var last models.Strategy
	skipped := 0

	// Segments are heavy units, so cancellation is checked after each one.
	err := chunk.Each(ctx, segments, 1, func(i int, seg models.Segment) error {
		p, err := rc.Reconstruct(ctx, sess, seg, total)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var rerr *route.ReconstructionError
			if errors.As(err, &rerr) {
				logging.Ctx(ctx).Warn().Err(err).Int("segment", i).Msg("Skipping segment")
				skipped++
				b.opts.report(ctx, StageReconstruct, i+1, len(segments))
				return nil
			}
			return err
		}
		paths[p.Mode] = append(paths[p.Mode], p)
		last = p.Strategy
		b.opts.report(ctx, StageReconstruct, i+1, len(segments))
		return nil
	})
	if err != nil {
		return nil, "", 0, err
	}
	return paths, last, skipped, nil
}

// fold buffers each mode's new paths into rec.
func (b *Builder) fold(ctx context.Context, rec *models.CacheRecord, paths map[models.Mode][]models.ReconstructedPath, radiusKm float64, fixes []models.Fix) error {
	cfg := b.opts.Coverage
	cfg.RadiusKm = radiusKm
	if rec.Modes == nil {
		rec.Modes = make(map[models.Mode]*models.CoveragePolygon, len(models.Modes))
	}
	if rec.Metrics.DistanceKm == nil {
		rec.Metrics.DistanceKm = make(map[models.Mode]float64, len(models.Modes))
	}
	if rec.Metrics.SegmentCount == nil {
		rec.Metrics.SegmentCount = make(map[models.Mode]int, len(models.Modes))
	}
	first := fixes[0].Timestamp.UTC()
	last := fixes[len(fixes)-1].Timestamp.UTC()

	total := 0
	for _, mode := range models.Modes {
		total += len(paths[mode])
	}
	folded := 0

	for _, mode := range models.Modes {
		modePaths := paths[mode]
		if len(modePaths) == 0 {
			continue
		}

		offset := folded
		cfg.Progress = func(done, _ int) {
			b.opts.report(ctx, StageCoverage, offset+done, total)
		}
		cb := coverage.NewBuilder(cfg)
		folded += len(modePaths)

		prev := rec.Polygon(mode)
		var seed orb.Geometry
		if prev != nil {
			seed = prev.Geometry
		}
		out, err := cb.Build(ctx, modePaths, seed)
		if err != nil {
			return fmt.Errorf("build %s coverage: %w", mode, err)
		}

		poly := &models.CoveragePolygon{Geometry: out.Geometry, RangeStart: &first, RangeEnd: &last}
		if prev != nil && prev.RangeStart != nil {
			start := *prev.RangeStart
			poly.RangeStart = &start
		}
		rec.Modes[mode] = poly

		rec.Metrics.DistanceKm[mode] += out.LengthKm
		rec.Metrics.SegmentCount[mode] += len(modePaths)
		rec.Metrics.UnionFailures += out.UnionFailures
	}
	return nil
}

// after drops fixes at or before t. fixes are sorted.
func after(fixes []models.Fix, t time.Time) []models.Fix {
	for i, f := range fixes {
		if f.Timestamp.After(t) {
			return fixes[i:]
		}
	}
	return nil
}
