// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

package route

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/tomtom215/wherehaveibeen/internal/chunk"
)

// Decimate keeps a point only when it is farther than spacingKm from every
// point kept before it, visiting points in order. The first point is always
// kept. The loop yields every yieldEvery points and stops with ctx.Err()
// if the build is canceled.
func Decimate(ctx context.Context, path orb.LineString, spacingKm float64, yieldEvery int) (orb.LineString, error) {
	if len(path) == 0 {
		return orb.LineString{}, nil
	}

	grid := newPointGrid(spacingKm)
	kept := make(orb.LineString, 0, len(path)/4+1)
	y := chunk.NewYielder(yieldEvery)

	for _, p := range path {
		if !grid.anyWithin(p, spacingKm) {
			kept = append(kept, p)
			grid.insert(p)
		}
		if err := y.Tick(ctx); err != nil {
			return nil, err
		}
	}
	return kept, nil
}
