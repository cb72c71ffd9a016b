// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for the coverage pipeline:
// - Fix filtering and segmentation
// - Route reconstruction strategies and road-snap fallbacks
// - Buffer/union cost and union failures
// - Cache traffic, quota evictions
// - Routing circuit breaker
// - HTTP API

var (
	// Segmentation Metrics
	FixesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whib_fixes_dropped_total",
			Help: "Fixes excluded from segmentation",
		},
		[]string{"reason"}, // "accuracy", "too_close", "no_geometry", "no_timestamp", "short_segment"
	)

	SegmentsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whib_segments_emitted_total",
			Help: "Segments emitted by the trace segmenter",
		},
		[]string{"mode"},
	)

	// Reconstruction Metrics
	Reconstructions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whib_reconstruction_total",
			Help: "Reconstructed paths by the strategy that produced them",
		},
		[]string{"strategy"},
	)

	RoadSnapFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "whib_road_snap_fallbacks_total",
			Help: "Road-snap attempts that fell back to the raw path",
		},
	)

	ReconstructionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whib_reconstruction_duration_seconds",
			Help:    "Time spent reconstructing one segment",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)

	// Coverage Metrics
	UnionFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "whib_coverage_union_failures_total",
			Help: "Polygon unions that failed and replaced the accumulator",
		},
	)

	CoverageBuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "whib_coverage_build_duration_seconds",
			Help:    "Time spent buffering and unioning one mode",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// Cache Metrics
	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whib_cache_operations_total",
			Help: "Coverage cache operations",
		},
		[]string{"op", "result"}, // op: get, put, invalidate; result: hit, miss, ok, error, quota
	)

	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "whib_cache_evictions_total",
			Help: "Records evicted to make room after a quota failure",
		},
	)

	// Build Metrics
	Builds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whib_builds_total",
			Help: "Coverage builds by outcome",
		},
		[]string{"outcome"}, // "built", "cached", "no_data", "canceled", "error"
	)

	BuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "whib_build_duration_seconds",
			Help:    "End-to-end coverage build time",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "whib_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whib_circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whib_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whib_api_requests_total",
			Help: "HTTP API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whib_api_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordReconstruction records one reconstructed path.
func RecordReconstruction(strategy string, duration time.Duration) {
	Reconstructions.WithLabelValues(strategy).Inc()
	ReconstructionDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// RecordCacheOp records a cache operation outcome.
func RecordCacheOp(op, result string) {
	CacheOperations.WithLabelValues(op, result).Inc()
}

// RecordBuild records a finished build.
func RecordBuild(outcome string, duration time.Duration) {
	Builds.WithLabelValues(outcome).Inc()
	BuildDuration.Observe(duration.Seconds())
}

// RecordAPIRequest records an API request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
