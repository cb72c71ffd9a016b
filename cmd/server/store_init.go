// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

package main

import (
	"fmt"

	"github.com/tomtom215/wherehaveibeen/internal/api"
	"github.com/tomtom215/wherehaveibeen/internal/config"
	"github.com/tomtom215/wherehaveibeen/internal/store"
	"github.com/tomtom215/wherehaveibeen/internal/supervisor/services"
)

// cacheStore is the opened backend plus the optional capabilities the rest
// of main wires up. gc is nil when the backend needs no maintenance.
type cacheStore struct {
	backend store.Backend
	usage   api.UsageReporter
	gc      services.GarbageCollector
	name    string
}

// openStore opens BadgerDB at cfg.Path, or in memory when cfg.InMemory is set.
func openStore(cfg *config.CacheConfig) (*cacheStore, error) {
	b, err := store.OpenBadger(store.BadgerOptions{
		Path:       cfg.Path,
		InMemory:   cfg.InMemory,
		QuotaBytes: cfg.QuotaBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("open badger cache at %q: %w", cfg.Path, err)
	}

	cs := &cacheStore{backend: b, usage: b, name: "badger"}
	if cfg.InMemory {
		cs.name = "badger-memory"
	} else {
		cs.gc = b
	}
	return cs, nil
}
