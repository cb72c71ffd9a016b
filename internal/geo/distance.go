// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

// Package geo holds the spherical distance helpers shared by segmentation,
// decimation and coverage length accounting.
package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// EarthRadiusKm is the mean Earth radius.
const EarthRadiusKm = 6371.0

// KmPerDegreeLat is the length of one degree of latitude on the sphere above.
const KmPerDegreeLat = EarthRadiusKm * math.Pi / 180

// HaversineKm returns the great-circle distance between two lat/lng pairs.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// DistanceKm returns the haversine distance between two orb points, which are
// ordered (lng, lat).
func DistanceKm(a, b orb.Point) float64 {
	return HaversineKm(a.Lat(), a.Lon(), b.Lat(), b.Lon())
}

// LengthKm is the arc length of ls, summed vertex to vertex in order.
func LengthKm(ls orb.LineString) float64 {
	var total float64
	for i := 1; i < len(ls); i++ {
		total += DistanceKm(ls[i-1], ls[i])
	}
	return total
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
