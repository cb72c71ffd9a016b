// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

package chunk

import (
	"context"
	"errors"
	"testing"
)

func TestYielderChecksContextOnlyAtYieldPoints(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	y := NewYielder(3)
	for i := 1; i <= 2; i++ {
		if err := y.Tick(ctx); err != nil {
			t.Fatalf("tick %d: unexpected error %v", i, err)
		}
	}
	if err := y.Tick(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("tick 3: err = %v, want context.Canceled", err)
	}
	if y.Count() != 3 {
		t.Errorf("Count() = %d, want 3", y.Count())
	}
}

func TestYielderAtYield(t *testing.T) {
	t.Parallel()

	y := NewYielder(2)
	if y.AtYield() {
		t.Error("AtYield before any tick")
	}
	var got []bool
	for i := 0; i < 4; i++ {
		_ = y.Tick(context.Background())
		got = append(got, y.AtYield())
	}
	want := []bool{false, true, false, true}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tick %d: AtYield = %v, want %v", i+1, got[i], want[i])
		}
	}
}

func TestNewYielderDefault(t *testing.T) {
	t.Parallel()

	if y := NewYielder(0); y.every != DefaultEvery {
		t.Errorf("every = %d, want %d", y.every, DefaultEvery)
	}
}

func TestEachResultIndependentOfChunkSize(t *testing.T) {
	t.Parallel()

	items := make([]int, 1000)
	for i := range items {
		items[i] = i
	}

	sum := func(n int) int {
		total := 0
		err := Each(context.Background(), items, n, func(_ int, v int) error {
			total += v
			return nil
		})
		if err != nil {
			t.Fatalf("Each(n=%d) error = %v", n, err)
		}
		return total
	}

	if a, b := sum(1), sum(100); a != b {
		t.Errorf("sum with n=1 is %d, with n=100 is %d", a, b)
	}
}

func TestEachStopsOnError(t *testing.T) {
	t.Parallel()

	stop := errors.New("stop")
	calls := 0
	err := Each(context.Background(), []int{1, 2, 3}, 10, func(i int, _ int) error {
		calls++
		if i == 1 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || calls != 2 {
		t.Errorf("err = %v calls = %d, want stop after 2 calls", err, calls)
	}
}
