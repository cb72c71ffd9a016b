// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

// Package route turns segments into drawable paths. Small batches are snapped
// to the road network through a routing service, medium batches are drawn
// from the raw fixes, and large batches are thinned by spatial decimation.
package route

import (
	"context"
	"errors"

	"github.com/paulmach/orb"
)

// ErrNoRoute is returned by a Router when the service found no route through
// the waypoints. It does not count against the circuit breaker.
var ErrNoRoute = errors.New("no route through waypoints")

// Router snaps an ordered list of (lng, lat) waypoints to the road network.
type Router interface {
	Route(ctx context.Context, baseURL string, waypoints orb.LineString) (orb.LineString, error)
}

// RouterFunc adapts a function to the Router interface.
type RouterFunc func(ctx context.Context, baseURL string, waypoints orb.LineString) (orb.LineString, error)

// Route calls f.
func (f RouterFunc) Route(ctx context.Context, baseURL string, waypoints orb.LineString) (orb.LineString, error) {
	return f(ctx, baseURL, waypoints)
}
