// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks that required configuration is present and consistent.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateOwnTracks(); err != nil {
		return err
	}
	if err := c.validateRouting(); err != nil {
		return err
	}
	if err := c.validateSegmentation(); err != nil {
		return err
	}
	if err := c.validateReconstruction(); err != nil {
		return err
	}
	if err := c.validateCoverage(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	if _, err := time.LoadLocation(c.Server.Timezone); err != nil {
		return fmt.Errorf("TZ %q is not a valid time zone: %w", c.Server.Timezone, err)
	}
	return nil
}

func (c *Config) validateOwnTracks() error {
	if c.OwnTracks.URL == "" {
		return fmt.Errorf("WHIB_OWNTRACKS_URL is required")
	}
	if err := validateBaseURL(c.OwnTracks.URL, "WHIB_OWNTRACKS_URL", false); err != nil {
		return err
	}
	if c.OwnTracks.MaxRetries < 0 {
		return fmt.Errorf("OWNTRACKS_MAX_RETRIES must not be negative")
	}
	if c.OwnTracks.DevicesCacheTTL < 0 {
		return fmt.Errorf("OWNTRACKS_DEVICES_TTL must not be negative")
	}
	return nil
}

func (c *Config) validateRouting() error {
	if c.Routing.DefaultURL == "" {
		return fmt.Errorf("WHIB_DEFAULT_OSRM_URL is required")
	}
	// OSRM is often mounted under a path behind a reverse proxy.
	if err := validateBaseURL(c.Routing.DefaultURL, "WHIB_DEFAULT_OSRM_URL", true); err != nil {
		return err
	}
	if c.Routing.Profile == "" || strings.ContainsAny(c.Routing.Profile, "/?#") {
		return fmt.Errorf("OSRM_PROFILE %q is invalid", c.Routing.Profile)
	}
	if c.Routing.Timeout <= 0 {
		return fmt.Errorf("OSRM_TIMEOUT must be positive")
	}
	if c.Routing.RequestsPerSecond < 0 {
		return fmt.Errorf("OSRM_REQUESTS_PER_SECOND must not be negative")
	}
	if c.Routing.BreakerFailureRatio <= 0 || c.Routing.BreakerFailureRatio > 1 {
		return fmt.Errorf("routing.breaker_failure_ratio must be in (0, 1], got %v", c.Routing.BreakerFailureRatio)
	}
	return nil
}

func (c *Config) validateSegmentation() error {
	s := c.Segmentation
	if s.MaxAccuracyMeters <= 0 {
		return fmt.Errorf("segmentation.max_accuracy_meters must be positive")
	}
	if s.MinStepKm < 0 {
		return fmt.Errorf("segmentation.min_step_km must not be negative")
	}
	if s.FlyingSpeedKmh <= 0 || s.FlyingJumpKm <= 0 {
		return fmt.Errorf("segmentation flying thresholds must be positive")
	}
	return nil
}

func (c *Config) validateReconstruction() error {
	r := c.Reconstruction
	if r.RoadSnapBelow < 0 {
		return fmt.Errorf("reconstruction.road_snap_below must not be negative")
	}
	if r.RoadSnapBelow > r.RawBelow || r.RawBelow > r.FineDecimationBelow {
		return fmt.Errorf("reconstruction thresholds must be non-decreasing: road_snap_below=%d raw_below=%d fine_decimation_below=%d",
			r.RoadSnapBelow, r.RawBelow, r.FineDecimationBelow)
	}
	if r.FineSpacingKm <= 0 || r.CoarseSpacingKm <= 0 {
		return fmt.Errorf("reconstruction spacings must be positive")
	}
	if r.YieldEvery < 1 {
		return fmt.Errorf("reconstruction.yield_every must be at least 1")
	}
	return nil
}

func (c *Config) validateCoverage() error {
	if c.Coverage.DefaultBufferRadiusKm <= 0 {
		return fmt.Errorf("COVERAGE_BUFFER_RADIUS_KM must be positive")
	}
	if c.Coverage.SimplifyTolerance < 0 {
		return fmt.Errorf("COVERAGE_SIMPLIFY_TOLERANCE must not be negative")
	}
	if c.Coverage.QuadSegs < 1 {
		return fmt.Errorf("COVERAGE_QUAD_SEGS must be at least 1")
	}
	return nil
}

func (c *Config) validateCache() error {
	if !c.Cache.InMemory && c.Cache.Path == "" {
		return fmt.Errorf("CACHE_PATH is required unless CACHE_IN_MEMORY=true")
	}
	if c.Cache.QuotaBytes < 0 {
		return fmt.Errorf("CACHE_QUOTA_BYTES must not be negative")
	}
	if c.Cache.GCDiscardRatio <= 0 || c.Cache.GCDiscardRatio >= 1 {
		return fmt.Errorf("cache.gc_discard_ratio must be in (0, 1)")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "disabled", "off":
	default:
		return fmt.Errorf("LOG_LEVEL %q is invalid", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
}
