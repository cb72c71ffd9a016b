// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

// Package main is the entry point for the Where Have I Been server.
//
// The server turns a user's OwnTracks location history into coverage
// polygons: places driven past and flown over, buffered by a per-user
// radius and cached so later builds only fold in new fixes.
//
// Start-up order:
//
//  1. Configuration (koanf: defaults, YAML file, environment)
//  2. Logging (zerolog)
//  3. Cache store (BadgerDB on disk, or in memory)
//  4. Location recorder and routing clients
//  5. Build pipeline and HTTP API
//  6. Supervisor tree (store GC, HTTP server) until SIGINT or SIGTERM
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/tomtom215/wherehaveibeen/internal/api"
	"github.com/tomtom215/wherehaveibeen/internal/cache"
	"github.com/tomtom215/wherehaveibeen/internal/config"
	"github.com/tomtom215/wherehaveibeen/internal/logging"
	"github.com/tomtom215/wherehaveibeen/internal/owntracks"
	"github.com/tomtom215/wherehaveibeen/internal/pipeline"
	"github.com/tomtom215/wherehaveibeen/internal/route"
	"github.com/tomtom215/wherehaveibeen/internal/store"
	"github.com/tomtom215/wherehaveibeen/internal/supervisor"
	"github.com/tomtom215/wherehaveibeen/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})
	logging.Info().
		Str("owntracks_url", cfg.OwnTracks.URL).
		Str("routing_url", cfg.Routing.DefaultURL).
		Bool("cache_in_memory", cfg.Cache.InMemory).
		Msg("Configuration loaded")

	loc, err := time.LoadLocation(cfg.Server.Timezone)
	if err != nil {
		logging.Fatal().Err(err).Str("timezone", cfg.Server.Timezone).Msg("Unknown time zone")
	}

	cs, err := openStore(&cfg.Cache)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open cache store")
	}
	defer func() {
		if err := cs.backend.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing cache store")
		}
	}()

	locations := owntracks.NewClient(&cfg.OwnTracks)
	router := route.NewOSRMClient(&cfg.Routing)
	coverage := store.NewCacheStore(cs.backend)
	settings := store.NewSettingsStore(cs.backend, cfg.Coverage.DefaultBufferRadiusKm, cfg.Routing.DefaultURL)
	opts := pipeline.OptionsFrom(cfg)
	opts.Progress = logBuildProgress
	builder := pipeline.NewBuilder(locations, router, coverage, settings, opts)

	var devices *cache.Cache[[]owntracks.Device]
	if ttl := cfg.OwnTracks.DevicesCacheTTL; ttl > 0 {
		devices = cache.New[[]owntracks.Device](ttl)
		defer devices.Close()
	}

	handler := api.NewHandler(api.Deps{
		Builder:      builder,
		Coverage:     coverage,
		Settings:     settings,
		Locations:    locations,
		Routes:       router,
		Usage:        cs.usage,
		DeviceCache:  devices,
		CacheBackend: cs.name,
		Location:     loc,
		BuildTimeout: cfg.Server.Timeout,
	})
	mw := api.NewChiMiddleware(api.ChiMiddlewareConfigFrom(&cfg.Security))

	server := &http.Server{
		Handler:           api.NewRouter(handler, mw).SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Builds are cut off at Server.Timeout; leave room to write the 504.
		WriteTimeout: cfg.Server.Timeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}
	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	if cs.gc != nil {
		tree.AddDataService(services.NewStoreGCService(cs.gc, cfg.Cache.GCInterval, cfg.Cache.GCDiscardRatio))
	}
	tree.AddAPIService(services.NewHTTPServerService(server, addr, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	if err := tree.Run(ctx); err != nil {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}
	logging.Info().Msg("Application stopped gracefully")
}

// logBuildProgress traces build stages at debug level under the build ID.
func logBuildProgress(ctx context.Context, stage string, done, total int) {
	logging.Ctx(ctx).Debug().
		Str("stage", stage).
		Int("done", done).
		Int("total", total).
		Msg("Coverage build progress")
}
