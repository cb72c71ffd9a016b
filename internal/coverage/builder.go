// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

// Package coverage buffers reconstructed paths into polygons and folds them
// into one coverage area per travel mode.
//
// Geometry is held in orb types at package boundaries and converted to GEOS
// through WKB for buffering and union. Each path is buffered in a local
// equirectangular frame centred on it, so a radius in kilometres yields a
// round corridor at any latitude.
package coverage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/project"
	"github.com/paulmach/orb/simplify"
	"github.com/twpayne/go-geos"

	"github.com/tomtom215/wherehaveibeen/internal/chunk"
	"github.com/tomtom215/wherehaveibeen/internal/geo"
	"github.com/tomtom215/wherehaveibeen/internal/logging"
	"github.com/tomtom215/wherehaveibeen/internal/metrics"
	"github.com/tomtom215/wherehaveibeen/internal/models"
)

// minCosLat bounds the x scale of the local frame near the poles.
const minCosLat = 0.01

// Config controls buffering.
type Config struct {
	RadiusKm          float64
	SimplifyTolerance float64 // degrees; 0 disables
	QuadSegs          int
	YieldEvery        int

	// Progress, if set, is called at every yield point and once at the end
	// with the number of paths folded so far.
	Progress func(done, total int)
}

// DefaultConfig returns a half-kilometre corridor.
func DefaultConfig() Config {
	return Config{
		RadiusKm:          0.5,
		SimplifyTolerance: 0.0001,
		QuadSegs:          8,
		YieldEvery:        chunk.DefaultEvery,
	}
}

// Result is the folded coverage of one mode.
type Result struct {
	Geometry      orb.Geometry // Polygon or MultiPolygon; nil when nothing was covered
	LengthKm      float64
	UnionFailures int
}

type unionFunc func(acc, next *geos.Geom) (*geos.Geom, error)

// Builder folds buffered paths into a coverage polygon.
type Builder struct {
	cfg   Config
	union unionFunc
}

// NewBuilder returns a Builder. Non-positive fields take defaults.
func NewBuilder(cfg Config) *Builder {
	def := DefaultConfig()
	if cfg.RadiusKm <= 0 {
		cfg.RadiusKm = def.RadiusKm
	}
	if cfg.SimplifyTolerance < 0 {
		cfg.SimplifyTolerance = 0
	}
	if cfg.QuadSegs < 1 {
		cfg.QuadSegs = def.QuadSegs
	}
	if cfg.YieldEvery < 1 {
		cfg.YieldEvery = def.YieldEvery
	}
	return &Builder{cfg: cfg, union: safeUnion}
}

// RadiusKm returns the buffer radius in use.
func (b *Builder) RadiusKm() float64 { return b.cfg.RadiusKm }

// Build buffers every path in order and unions it into seed. A union that
// GEOS cannot compute is logged and counted, and the accumulator restarts
// from the path's own polygon. With no paths the seed comes back unchanged.
func (b *Builder) Build(ctx context.Context, paths []models.ReconstructedPath, seed orb.Geometry) (Result, error) {
	if len(paths) == 0 {
		return Result{Geometry: seed}, nil
	}

	start := time.Now()
	defer func() {
		metrics.CoverageBuildDuration.Observe(time.Since(start).Seconds())
	}()

	acc, err := toGEOS(seed)
	if err != nil {
		return Result{}, fmt.Errorf("decode seed geometry: %w", err)
	}

	var res Result
	y := chunk.NewYielder(b.cfg.YieldEvery)
	for i, p := range paths {
		if len(p.Path) == 0 {
			continue
		}
		res.LengthKm += geo.LengthKm(p.Path)

		poly, err := b.Buffer(p.Path)
		if err != nil {
			return Result{}, fmt.Errorf("buffer path %d: %w", i, err)
		}

		if acc == nil {
			acc = poly
		} else {
			merged, uerr := b.union(acc, poly)
			if uerr != nil {
				res.UnionFailures++
				metrics.UnionFailures.Inc()
				logging.Ctx(ctx).Warn().Err(uerr).
					Int("path", i).
					Str("mode", string(p.Mode)).
					Msg("Coverage union failed, restarting from current path")
				acc.Destroy()
				acc = poly
			} else {
				acc.Destroy()
				poly.Destroy()
				acc = merged
			}
		}

		if err := y.Tick(ctx); err != nil {
			return Result{}, err
		}
		if b.cfg.Progress != nil && y.AtYield() && i+1 < len(paths) {
			b.cfg.Progress(i+1, len(paths))
		}
	}
	if b.cfg.Progress != nil {
		b.cfg.Progress(len(paths), len(paths))
	}

	if acc == nil {
		return res, nil
	}
	res.Geometry, err = fromGEOS(acc)
	acc.Destroy()
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// Buffer simplifies path and returns its corridor of RadiusKm as a GEOS
// polygon in lng/lat.
func (b *Builder) Buffer(path orb.LineString) (*geos.Geom, error) {
	ls := path.Clone()
	if b.cfg.SimplifyTolerance > 0 && len(ls) > 2 {
		if s, ok := simplify.DouglasPeucker(b.cfg.SimplifyTolerance).Simplify(ls).(orb.LineString); ok {
			ls = s
		}
	}

	lng0, lat0 := centroid(ls)
	scale := math.Max(math.Cos(lat0*math.Pi/180), minCosLat)
	toLocal := func(p orb.Point) orb.Point {
		return orb.Point{wrapLng(p.Lon()-lng0) * scale, p.Lat() - lat0}
	}
	toLngLat := func(p orb.Point) orb.Point {
		return orb.Point{p.Lon()/scale + lng0, p.Lat() + lat0}
	}

	var local orb.Geometry
	if len(ls) == 1 || distinct(ls) == 1 {
		local = toLocal(ls[0])
	} else {
		local = project.Geometry(ls, toLocal)
	}

	g, err := toGEOS(local)
	if err != nil {
		return nil, err
	}
	buffered := g.Buffer(b.cfg.RadiusKm/geo.KmPerDegreeLat, b.cfg.QuadSegs)
	g.Destroy()

	poly, err := fromGEOS(buffered)
	buffered.Destroy()
	if err != nil {
		return nil, err
	}
	return toGEOS(project.Geometry(poly, toLngLat))
}

// safeUnion returns acc ∪ next. GEOS reports topology errors by panicking
// through go-geos, so the panic is turned into an error here.
func safeUnion(acc, next *geos.Geom) (u *geos.Geom, err error) {
	defer func() {
		if r := recover(); r != nil {
			u, err = nil, fmt.Errorf("geos union: %v", r)
		}
	}()
	u = acc.Union(next)
	if u == nil {
		return nil, errors.New("geos union returned no geometry")
	}
	return u, nil
}

func toGEOS(g orb.Geometry) (*geos.Geom, error) {
	if g == nil {
		return nil, nil
	}
	data, err := wkb.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encode wkb: %w", err)
	}
	out, err := geos.NewGeomFromWKB(data)
	if err != nil {
		return nil, fmt.Errorf("geos from wkb: %w", err)
	}
	if out.IsEmpty() {
		out.Destroy()
		return nil, nil
	}
	return out, nil
}

// fromGEOS converts to orb and keeps only areal parts, so the result is
// always a Polygon or MultiPolygon.
func fromGEOS(g *geos.Geom) (orb.Geometry, error) {
	decoded, err := wkb.Unmarshal(g.ToWKB())
	if err != nil {
		return nil, fmt.Errorf("decode wkb: %w", err)
	}
	switch v := decoded.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return v, nil
	case orb.Collection:
		var mp orb.MultiPolygon
		for _, part := range v {
			switch pp := part.(type) {
			case orb.Polygon:
				mp = append(mp, pp)
			case orb.MultiPolygon:
				mp = append(mp, pp...)
			}
		}
		if len(mp) == 1 {
			return mp[0], nil
		}
		return mp, nil
	default:
		return nil, fmt.Errorf("unexpected %s from buffer", decoded.GeoJSONType())
	}
}

func centroid(ls orb.LineString) (lng, lat float64) {
	// Longitudes are averaged as offsets from the first point so a path
	// crossing the antimeridian stays centred on itself.
	ref := ls[0].Lon()
	for _, p := range ls {
		lng += wrapLng(p.Lon() - ref)
		lat += p.Lat()
	}
	n := float64(len(ls))
	return wrapLng(ref + lng/n), lat / n
}

func wrapLng(d float64) float64 {
	for d > 180 {
		d -= 360
	}
	for d < -180 {
		d += 360
	}
	return d
}

func distinct(ls orb.LineString) int {
	for _, p := range ls[1:] {
		if !p.Equal(ls[0]) {
			return 2
		}
	}
	return 1
}
