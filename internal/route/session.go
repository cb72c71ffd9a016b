// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

package route

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/tomtom215/wherehaveibeen/internal/logging"
)

// Session is the registry of routing resources owned by one coverage build.
// Every request context and every closer handed out while talking to the
// routing service is tracked here, and Release tears all of them down. The
// build defers Release so success, fallback, error and cancellation paths all
// leave nothing behind.
type Session struct {
	id         string
	routingURL string

	mu        sync.Mutex
	next      uint64
	resources map[uint64]tracked
	released  bool
}

type tracked struct {
	name    string
	release func()
}

// NewSession returns an empty registry for build id. routingURL is the
// resolved road-routing base URL the build will use.
func NewSession(id, routingURL string) *Session {
	return &Session{
		id:         id,
		routingURL: routingURL,
		resources:  make(map[uint64]tracked),
	}
}

// ID returns the build ID.
func (s *Session) ID() string { return s.id }

// RoutingURL returns the road-routing base URL for this build.
func (s *Session) RoutingURL() string { return s.routingURL }

// Acquire derives a request context bounded by timeout and registers its
// cancel func. done releases it early; calling done after Release is a no-op.
// Once the session is released, Acquire hands back an already-canceled
// context so late callers fail fast instead of leaking a request.
func (s *Session) Acquire(parent context.Context, name string, timeout time.Duration) (context.Context, func()) {
	if timeout > 0 {
		ctx, cancel := context.WithTimeout(parent, timeout)
		return ctx, s.register(name, cancel)
	}
	ctx, cancel := context.WithCancel(parent)
	return ctx, s.register(name, cancel)
}

// Track registers a closer. The returned func closes and unregisters it.
func (s *Session) Track(name string, c io.Closer) func() {
	return s.register(name, func() {
		if err := c.Close(); err != nil {
			logging.Warn().Err(err).Str("build_id", s.id).Str("resource", name).Msg("Routing resource close failed")
		}
	})
}

func (s *Session) register(name string, release func()) func() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		release()
		return func() {}
	}
	key := s.next
	s.next++
	s.resources[key] = tracked{name: name, release: release}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			r, ok := s.resources[key]
			delete(s.resources, key)
			s.mu.Unlock()
			if ok {
				r.release()
			}
		})
	}
}

// Open returns the number of live resources.
func (s *Session) Open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.resources)
}

// Released reports whether Release has run.
func (s *Session) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Release cancels and closes every registered resource. It is idempotent.
func (s *Session) Release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	pending := s.resources
	s.resources = make(map[uint64]tracked)
	s.mu.Unlock()

	for _, r := range pending {
		r.release()
	}
	if len(pending) > 0 {
		logging.Debug().Str("build_id", s.id).Int("released", len(pending)).Msg("Routing session released live resources")
	}
}
