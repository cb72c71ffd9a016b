// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

// Package chunk provides cooperative yield points for long single-goroutine
// loops such as decimation and polygon buffering.
package chunk

import (
	"context"
	"runtime"
)

// DefaultEvery is the default number of work units between yields.
const DefaultEvery = 100

// Yielder counts units of work and, every N units, yields the processor and
// checks for cancellation. Yielding never changes what the loop computes.
type Yielder struct {
	every int
	count int
}

// NewYielder returns a Yielder that yields every n units (DefaultEvery when
// n < 1).
func NewYielder(n int) *Yielder {
	if n < 1 {
		n = DefaultEvery
	}
	return &Yielder{every: n}
}

// Tick records one unit of work. It returns ctx.Err() at a yield point when
// the context is done, and nil otherwise.
func (y *Yielder) Tick(ctx context.Context) error {
	y.count++
	if y.count%y.every != 0 {
		return nil
	}
	runtime.Gosched()
	return ctx.Err()
}

// AtYield reports whether the last Tick landed on a yield point. Loops use it
// to piggyback progress reporting on the same cadence.
func (y *Yielder) AtYield() bool {
	return y.count > 0 && y.count%y.every == 0
}

// Count returns the number of units recorded so far.
func (y *Yielder) Count() int {
	return y.count
}

// Each calls fn for every item in order, yielding every n items. It stops at
// the first error from fn or from cancellation.
func Each[T any](ctx context.Context, items []T, n int, fn func(i int, item T) error) error {
	y := NewYielder(n)
	for i, item := range items {
		if err := fn(i, item); err != nil {
			return err
		}
		if err := y.Tick(ctx); err != nil {
			return err
		}
	}
	return nil
}
