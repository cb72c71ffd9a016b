// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/wherehaveibeen/internal/store"
)

type countingGC struct {
	calls atomic.Int32
	ratio atomic.Value
	err   error
}

func (c *countingGC) RunGC(discardRatio float64) error {
	c.ratio.Store(discardRatio)
	c.calls.Add(1)
	return c.err
}

func TestNewStoreGCService_Defaults(t *testing.T) {
	t.Parallel()

	svc := NewStoreGCService(&countingGC{}, 0, 1.5)
	if svc.interval != 10*time.Minute || svc.discardRatio != 0.5 {
		t.Errorf("defaults = %v, %v", svc.interval, svc.discardRatio)
	}
}

func TestStoreGCService_RunsUntilCanceled(t *testing.T) {
	t.Parallel()

	for _, gcErr := range []error{nil, errors.New("disk busy")} {
		gc := &countingGC{err: gcErr}
		svc := NewStoreGCService(gc, 5*time.Millisecond, 0.7)

		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() { errCh <- svc.Serve(ctx) }()

		deadline := time.Now().Add(5 * time.Second)
		for gc.calls.Load() < 3 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		cancel()

		if err := <-errCh; !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v", err)
		}
		if gc.calls.Load() < 3 {
			t.Errorf("gc ran %d times, want at least 3 (err %v)", gc.calls.Load(), gcErr)
		}
		if r, _ := gc.ratio.Load().(float64); r != 0.7 {
			t.Errorf("discard ratio = %v", r)
		}
	}
}

func TestStoreGCService_WithBadger(t *testing.T) {
	t.Parallel()

	backend, err := store.OpenBadger(store.BadgerOptions{Path: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer backend.Close()
	if err := backend.Set("coverage_alice_phone", []byte(`{"owner":"alice"}`)); err != nil {
		t.Fatal(err)
	}

	svc := NewStoreGCService(backend, 5*time.Millisecond, 0.5)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve = %v", err)
	}
}
