// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

// Package config loads service configuration with koanf.
//
// Loading order, later layers winning:
//  1. Defaults from defaultConfig
//  2. Optional YAML file (CONFIG_PATH, ./config.yaml, /etc/wherehaveibeen/config.yaml)
//  3. Environment variables, mapped explicitly by envTransformFunc
//
// The legacy deployment variables WHIB_DEFAULT_OSRM_URL and
// WHIB_OWNTRACKS_URL are honoured as-is.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Server         ServerConfig         `koanf:"server"`
	OwnTracks      OwnTracksConfig      `koanf:"owntracks"`
	Routing        RoutingConfig        `koanf:"routing"`
	Segmentation   SegmentationConfig   `koanf:"segmentation"`
	Reconstruction ReconstructionConfig `koanf:"reconstruction"`
	Coverage       CoverageConfig       `koanf:"coverage"`
	Cache          CacheConfig          `koanf:"cache"`
	Security       SecurityConfig       `koanf:"security"`
	Logging        LoggingConfig        `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// Timezone is the IANA zone in which date-only filters such as
	// startdate=2024-05-01 are interpreted before conversion to UTC.
	Timezone string `koanf:"timezone"`
}

// OwnTracksConfig points at the OwnTracks recorder that holds location history.
type OwnTracksConfig struct {
	URL        string        `koanf:"url"`
	Username   string        `koanf:"username"`
	Password   string        `koanf:"password"`
	Timeout    time.Duration `koanf:"timeout"`
	MaxRetries int           `koanf:"max_retries"`

	// DevicesCacheTTL keeps device listings in memory between polls. 0 disables.
	DevicesCacheTTL time.Duration `koanf:"devices_cache_ttl"`
}

// RoutingConfig configures the OSRM road-routing client.
type RoutingConfig struct {
	// DefaultURL is used when an owner has no routing URL override.
	DefaultURL string `koanf:"default_url"`

	// Profile is the OSRM profile segment, normally "driving".
	Profile string `koanf:"profile"`

	// Timeout bounds a single road-snap request.
	Timeout time.Duration `koanf:"timeout"`

	// RequestsPerSecond limits outbound calls; public OSRM servers ask for 1/s.
	// Zero disables limiting.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`

	BreakerMaxRequests  uint32        `koanf:"breaker_max_requests"`
	BreakerInterval     time.Duration `koanf:"breaker_interval"`
	BreakerTimeout      time.Duration `koanf:"breaker_timeout"`
	BreakerMinRequests  uint32        `koanf:"breaker_min_requests"`
	BreakerFailureRatio float64       `koanf:"breaker_failure_ratio"`
}

// SegmentationConfig holds the trace segmentation heuristics.
type SegmentationConfig struct {
	MaxAccuracyMeters float64 `koanf:"max_accuracy_meters"`
	MinStepKm         float64 `koanf:"min_step_km"`
	FlyingSpeedKmh    float64 `koanf:"flying_speed_kmh"`
	FlyingJumpKm      float64 `koanf:"flying_jump_km"`
}

// ReconstructionConfig holds the batch-size thresholds that pick a route
// reconstruction strategy, and the decimation spacings.
type ReconstructionConfig struct {
	RoadSnapBelow       int     `koanf:"road_snap_below"`
	RawBelow            int     `koanf:"raw_below"`
	FineDecimationBelow int     `koanf:"fine_decimation_below"`
	FineSpacingKm       float64 `koanf:"fine_spacing_km"`
	CoarseSpacingKm     float64 `koanf:"coarse_spacing_km"`
	YieldEvery          int     `koanf:"yield_every"`
}

// CoverageConfig holds buffering defaults.
type CoverageConfig struct {
	// DefaultBufferRadiusKm applies to owners without a saved circle size.
	DefaultBufferRadiusKm float64 `koanf:"default_buffer_radius_km"`

	// SimplifyTolerance is the Douglas-Peucker tolerance in degrees. 0 disables.
	SimplifyTolerance float64 `koanf:"simplify_tolerance"`

	// QuadSegs is the number of segments per quarter circle in buffers.
	QuadSegs int `koanf:"quad_segs"`
}

// CacheConfig configures the coverage cache backend.
type CacheConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`

	// QuotaBytes caps the total size of cached values. 0 means unlimited.
	QuotaBytes int64 `koanf:"quota_bytes"`

	GCInterval     time.Duration `koanf:"gc_interval"`
	GCDiscardRatio float64       `koanf:"gc_discard_ratio"`
}

// SecurityConfig holds HTTP hardening settings.
type SecurityConfig struct {
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Load reads configuration from defaults, file and environment, then validates it.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
