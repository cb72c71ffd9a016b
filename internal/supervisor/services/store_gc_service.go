// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

package services

import (
	"context"
	"time"

	"github.com/tomtom215/wherehaveibeen/internal/logging"
)

// GarbageCollector reclaims space in a store. *store.BadgerBackend
// implements it.
type GarbageCollector interface {
	RunGC(discardRatio float64) error
}

// StoreGCService runs value log garbage collection on an interval. A failed
// pass is logged and retried on the next tick; it never stops the service.
type StoreGCService struct {
	gc           GarbageCollector
	interval     time.Duration
	discardRatio float64
}

// NewStoreGCService creates the service. Non-positive values take 10 minutes
// and a 0.5 discard ratio.
func NewStoreGCService(gc GarbageCollector, interval time.Duration, discardRatio float64) *StoreGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if discardRatio <= 0 || discardRatio >= 1 {
		discardRatio = 0.5
	}
	return &StoreGCService{gc: gc, interval: interval, discardRatio: discardRatio}
}

// Serve implements suture.Service.
func (s *StoreGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log := logging.WithComponent("store-gc")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			if err := s.gc.RunGC(s.discardRatio); err != nil {
				log.Warn().Err(err).Msg("Value log GC failed")
				continue
			}
			log.Debug().Dur("duration", time.Since(start)).Msg("Value log GC finished")
		}
	}
}

// String names the service in supervisor logs.
func (s *StoreGCService) String() string {
	return "store-gc"
}
