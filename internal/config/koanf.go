// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists config file locations in priority order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/wherehaveibeen/config.yaml",
	"/etc/wherehaveibeen/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultOSRMURL is the public OSRM demo server.
const DefaultOSRMURL = "https://router.project-osrm.org"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            5000,
			Host:            "0.0.0.0",
			Timeout:         2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			Timezone:        "Local",
		},
		OwnTracks: OwnTracksConfig{
			URL:             "",
			Timeout:         30 * time.Second,
			MaxRetries:      3,
			DevicesCacheTTL: 30 * time.Second,
		},
		Routing: RoutingConfig{
			DefaultURL:          DefaultOSRMURL,
			Profile:             "driving",
			Timeout:             10 * time.Second,
			RequestsPerSecond:   1,
			Burst:               1,
			BreakerMaxRequests:  3,
			BreakerInterval:     time.Minute,
			BreakerTimeout:      2 * time.Minute,
			BreakerMinRequests:  10,
			BreakerFailureRatio: 0.6,
		},
		Segmentation: SegmentationConfig{
			MaxAccuracyMeters: 100,
			MinStepKm:         0.5,
			FlyingSpeedKmh:    200,
			FlyingJumpKm:      100,
		},
		Reconstruction: ReconstructionConfig{
			RoadSnapBelow:       500,
			RawBelow:            3000,
			FineDecimationBelow: 5000,
			FineSpacingKm:       0.01,
			CoarseSpacingKm:     0.1,
			YieldEvery:          100,
		},
		Coverage: CoverageConfig{
			DefaultBufferRadiusKm: 0.5,
			SimplifyTolerance:     0.0001,
			QuadSegs:              8,
		},
		Cache: CacheConfig{
			Path:           "/data/cache",
			InMemory:       false,
			QuotaBytes:     64 << 20,
			GCInterval:     10 * time.Minute,
			GCDiscardRatio: 0.5,
		},
		Security: SecurityConfig{
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf loads configuration using koanf's layered providers.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields splits comma-separated env values into string slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	// Legacy deployment names
	"whib_default_osrm_url": "routing.default_url",
	"whib_owntracks_url":    "owntracks.url",

	"owntracks_username":    "owntracks.username",
	"owntracks_password":    "owntracks.password",
	"owntracks_timeout":     "owntracks.timeout",
	"owntracks_max_retries": "owntracks.max_retries",
	"owntracks_devices_ttl": "owntracks.devices_cache_ttl",

	"osrm_profile":             "routing.profile",
	"osrm_timeout":             "routing.timeout",
	"osrm_requests_per_second": "routing.requests_per_second",
	"osrm_burst":               "routing.burst",

	"segment_max_accuracy_meters": "segmentation.max_accuracy_meters",
	"segment_min_step_km":         "segmentation.min_step_km",
	"segment_flying_speed_kmh":    "segmentation.flying_speed_kmh",
	"segment_flying_jump_km":      "segmentation.flying_jump_km",

	"route_road_snap_below":       "reconstruction.road_snap_below",
	"route_raw_below":             "reconstruction.raw_below",
	"route_fine_decimation_below": "reconstruction.fine_decimation_below",
	"route_fine_spacing_km":       "reconstruction.fine_spacing_km",
	"route_coarse_spacing_km":     "reconstruction.coarse_spacing_km",
	"route_yield_every":           "reconstruction.yield_every",

	"coverage_buffer_radius_km":   "coverage.default_buffer_radius_km",
	"coverage_simplify_tolerance": "coverage.simplify_tolerance",
	"coverage_quad_segs":          "coverage.quad_segs",

	"cache_path":        "cache.path",
	"cache_in_memory":   "cache.in_memory",
	"cache_quota_bytes": "cache.quota_bytes",
	"cache_gc_interval": "cache.gc_interval",

	"http_port":             "server.port",
	"http_host":             "server.host",
	"http_timeout":          "server.timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"tz":                    "server.timezone",

	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"cors_origins":        "security.cors_origins",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps known environment variables to koanf paths. Unknown
// variables map to "" and are skipped so the rest of the environment cannot
// leak into configuration.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
