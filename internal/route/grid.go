// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

package route

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/tomtom215/wherehaveibeen/internal/geo"
)

// pointGrid buckets retained points into lat/lng cells so "is any retained
// point within r km?" checks only neighbouring cells instead of every point.
// Cells are spacing-sized in latitude; the longitude search window widens
// with latitude so answers match a full scan.
type pointGrid struct {
	cellDeg float64
	nx      int // cells around a full circle of longitude
	cells   map[cellKey][]orb.Point
}

type cellKey struct {
	X, Y int
}

func newPointGrid(cellKm float64) *pointGrid {
	cellDeg := cellKm / geo.KmPerDegreeLat
	return &pointGrid{
		cellDeg: cellDeg,
		nx:      int(math.Ceil(360 / cellDeg)),
		cells:   make(map[cellKey][]orb.Point),
	}
}

func (g *pointGrid) key(p orb.Point) cellKey {
	x := int(math.Floor((p.Lon() + 180) / g.cellDeg))
	return cellKey{X: g.wrapX(x), Y: int(math.Floor(p.Lat() / g.cellDeg))}
}

func (g *pointGrid) wrapX(x int) int {
	x %= g.nx
	if x < 0 {
		x += g.nx
	}
	return x
}

func (g *pointGrid) insert(p orb.Point) {
	k := g.key(p)
	g.cells[k] = append(g.cells[k], p)
}

// anyWithin reports whether some inserted point lies within radiusKm of p.
func (g *pointGrid) anyWithin(p orb.Point, radiusKm float64) bool {
	dLat := radiusKm / geo.KmPerDegreeLat
	dy := int(math.Ceil(dLat/g.cellDeg)) + 1

	// Shortest parallel in the latitude band sets the longitude window.
	maxAbsLat := math.Min(90, math.Abs(p.Lat())+dLat)
	cosMin := math.Cos(maxAbsLat * math.Pi / 180)

	var dx int
	if cosMin < 1e-6 {
		dx = g.nx
	} else {
		dx = int(math.Ceil(dLat/cosMin/g.cellDeg)) + 1
	}
	if 2*dx+1 >= g.nx {
		return g.scanBand(p, radiusKm, dy)
	}

	center := g.key(p)
	for ix := -dx; ix <= dx; ix++ {
		x := g.wrapX(center.X + ix)
		for iy := -dy; iy <= dy; iy++ {
			for _, q := range g.cells[cellKey{X: x, Y: center.Y + iy}] {
				if geo.DistanceKm(p, q) <= radiusKm {
					return true
				}
			}
		}
	}
	return false
}

// scanBand handles polar windows that wrap the whole globe.
func (g *pointGrid) scanBand(p orb.Point, radiusKm float64, dy int) bool {
	center := g.key(p)
	for k, pts := range g.cells {
		if k.Y < center.Y-dy || k.Y > center.Y+dy {
			continue
		}
		for _, q := range pts {
			if geo.DistanceKm(p, q) <= radiusKm {
				return true
			}
		}
	}
	return false
}
