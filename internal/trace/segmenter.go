// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

// Package trace splits a chronological stream of GPS fixes into travel
// segments labelled driving or flying.
//
// The rules, applied in order to each fix:
//
//  1. A fix whose reported accuracy is MaxAccuracyMeters or worse is dropped.
//  2. A fix closer than MinStepKm to the last point kept in the current
//     segment is dropped.
//  3. A fix is flying when its velocity exceeds FlyingSpeedKmh or it jumped
//     more than FlyingJumpKm from the previous kept point. The first fix has
//     no previous point and is classified by velocity alone.
//  4. A change of mode closes the current segment. Segments with fewer than
//     two points are discarded on close.
package trace

import (
	"github.com/tomtom215/wherehaveibeen/internal/geo"
	"github.com/tomtom215/wherehaveibeen/internal/metrics"
	"github.com/tomtom215/wherehaveibeen/internal/models"
)

// Config holds the segmentation heuristics.
type Config struct {
	MaxAccuracyMeters float64
	MinStepKm         float64
	FlyingSpeedKmh    float64
	FlyingJumpKm      float64
}

// DefaultConfig returns the thresholds the coverage map has always used.
func DefaultConfig() Config {
	return Config{
		MaxAccuracyMeters: 100,
		MinStepKm:         0.5,
		FlyingSpeedKmh:    200,
		FlyingJumpKm:      100,
	}
}

// Result holds the segments of one run. Driving and Flying are each in
// chronological order; All interleaves both in the order they were closed,
// which is also chronological.
type Result struct {
	Driving []models.Segment
	Flying  []models.Segment
	All     []models.Segment

	// Kept counts fixes that passed the accuracy and spacing filters.
	Kept int
}

// Empty reports whether no segment survived.
func (r Result) Empty() bool {
	return len(r.All) == 0
}

// Segmenter applies Config to fix sequences. It holds no state between
// calls and is safe for concurrent use.
type Segmenter struct {
	cfg Config
}

// NewSegmenter returns a Segmenter. Zero fields in cfg take the defaults.
func NewSegmenter(cfg Config) *Segmenter {
	def := DefaultConfig()
	if cfg.MaxAccuracyMeters <= 0 {
		cfg.MaxAccuracyMeters = def.MaxAccuracyMeters
	}
	if cfg.FlyingSpeedKmh <= 0 {
		cfg.FlyingSpeedKmh = def.FlyingSpeedKmh
	}
	if cfg.FlyingJumpKm <= 0 {
		cfg.FlyingJumpKm = def.FlyingJumpKm
	}
	if cfg.MinStepKm <= 0 {
		cfg.MinStepKm = def.MinStepKm
	}
	return &Segmenter{cfg: cfg}
}

// Segment returns the driving and flying segments of fixes, which must be
// in non-decreasing timestamp order.
func (s *Segmenter) Segment(fixes []models.Fix) (driving, flying []models.Segment) {
	r := s.Run(fixes)
	return r.Driving, r.Flying
}

// Run segments fixes and returns the full Result.
func (s *Segmenter) Run(fixes []models.Fix) Result {
	var (
		res     Result
		current []models.Fix
		mode    models.Mode
	)

	closeSegment := func() {
		if len(current) < 2 {
			if len(current) == 1 {
				metrics.FixesDropped.WithLabelValues("short_segment").Inc()
			}
			return
		}
		seg := models.Segment{Mode: mode, Points: current}
		if mode == models.ModeFlying {
			res.Flying = append(res.Flying, seg)
		} else {
			res.Driving = append(res.Driving, seg)
		}
		res.All = append(res.All, seg)
		metrics.SegmentsEmitted.WithLabelValues(string(mode)).Inc()
	}

	for _, fix := range fixes {
		if fix.AccuracyMeters >= s.cfg.MaxAccuracyMeters {
			metrics.FixesDropped.WithLabelValues("accuracy").Inc()
			continue
		}

		if len(current) == 0 {
			current = []models.Fix{fix}
			mode = s.classify(fix.VelocityKmh, 0)
			res.Kept++
			continue
		}

		last := current[len(current)-1]
		dist := geo.HaversineKm(last.Latitude, last.Longitude, fix.Latitude, fix.Longitude)
		if dist < s.cfg.MinStepKm {
			metrics.FixesDropped.WithLabelValues("too_close").Inc()
			continue
		}
		res.Kept++

		next := s.classify(fix.VelocityKmh, dist)
		if next != mode {
			closeSegment()
			current = []models.Fix{fix}
			mode = next
			continue
		}
		current = append(current, fix)
	}
	closeSegment()

	return res
}

// classify is a pure function of velocity and distance from the previous
// kept point.
func (s *Segmenter) classify(velocityKmh, distKm float64) models.Mode {
	if velocityKmh > s.cfg.FlyingSpeedKmh || distKm > s.cfg.FlyingJumpKm {
		return models.ModeFlying
	}
	return models.ModeDriving
}
