// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

package cache

import (
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(t *testing.T, ttl time.Duration) (*Cache[string], *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	c := NewWithSweep[string](ttl, 0)
	c.now = clock.Now
	t.Cleanup(c.Close)
	return c, clock
}

func TestCache_GetSet(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Fatal("Get on empty cache reported a hit")
	}
	c.Set("a", "alpha")
	got, ok := c.Get("a")
	if !ok || got != "alpha" {
		t.Fatalf("Get(a) = %q, %v; want alpha, true", got, ok)
	}

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Keys != 1 {
		t.Errorf("Stats = %+v; want 1 hit, 1 miss, 1 key", s)
	}
	if rate := c.HitRate(); rate != 50 {
		t.Errorf("HitRate = %v; want 50", rate)
	}
}

func TestCache_Expiry(t *testing.T) {
	t.Parallel()

	c, clock := newTestCache(t, time.Minute)
	c.Set("a", "alpha")
	c.SetWithTTL("b", "beta", 5*time.Minute)

	clock.Advance(time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Error("entry survived its TTL")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("entry with longer TTL expired early")
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d after lazy expiry; want 1", c.Len())
	}
	if ev := c.Stats().Evictions; ev != 1 {
		t.Errorf("Evictions = %d; want 1", ev)
	}
}

func TestCache_NonPositiveTTLIsNoop(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, 0)
	c.Set("a", "alpha")
	if c.Len() != 0 {
		t.Errorf("Len = %d; want 0 for zero TTL", c.Len())
	}
}

func TestCache_Sweep(t *testing.T) {
	t.Parallel()

	c, clock := newTestCache(t, time.Minute)
	c.Set("a", "alpha")
	c.Set("b", "beta")
	clock.Advance(2 * time.Minute)
	c.Set("c", "gamma")

	c.sweep()

	if c.Len() != 1 {
		t.Errorf("Len = %d after sweep; want 1", c.Len())
	}
	s := c.Stats()
	if s.Evictions != 2 {
		t.Errorf("Evictions = %d; want 2", s.Evictions)
	}
	if !s.LastSweep.Equal(clock.Now()) {
		t.Errorf("LastSweep = %v; want %v", s.LastSweep, clock.Now())
	}
}

func TestCache_DeleteAndClear(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, time.Minute)
	c.Set("a", "alpha")
	c.Set("b", "beta")
	c.Set("c", "gamma")

	c.Delete("a")
	c.Delete("missing")
	if c.Len() != 2 {
		t.Fatalf("Len = %d after Delete; want 2", c.Len())
	}
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("Len = %d after Clear; want 0", c.Len())
	}
	if ev := c.Stats().Evictions; ev != 3 {
		t.Errorf("Evictions = %d; want 3", ev)
	}
}

func TestCache_SweeperStopsOnClose(t *testing.T) {
	t.Parallel()

	c := NewWithSweep[int](time.Millisecond, time.Millisecond)
	c.Set("a", 1)

	deadline := time.Now().Add(2 * time.Second)
	for c.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweeper never removed the expired entry")
		}
		time.Sleep(5 * time.Millisecond)
	}
	c.Close()
	c.Close()
}

func TestCache_Concurrent(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache(t, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				c.Set("k", "v")
				c.Get("k")
				if j%50 == 0 {
					c.Delete("k")
				}
			}
		}()
	}
	wg.Wait()

	s := c.Stats()
	if s.Hits+s.Misses != 8*200 {
		t.Errorf("lookups = %d; want %d", s.Hits+s.Misses, 8*200)
	}
}

func TestGenerateKey(t *testing.T) {
	t.Parallel()

	type params struct {
		User string `json:"user"`
		Auth string `json:"auth"`
	}

	a := GenerateKey("devices", params{User: "alice", Auth: "secret"})
	b := GenerateKey("devices", params{User: "alice", Auth: "secret"})
	c := GenerateKey("devices", params{User: "alice", Auth: "other"})

	if a != b {
		t.Errorf("same params gave different keys: %q vs %q", a, b)
	}
	if a == c {
		t.Error("different params gave the same key")
	}
	if !strings.HasPrefix(a, "devices:") {
		t.Errorf("key %q lacks namespace prefix", a)
	}
	if strings.Contains(a, "secret") {
		t.Errorf("key %q leaks a parameter", a)
	}
	if got := GenerateKey("bad", make(chan int)); !strings.HasPrefix(got, "bad:") {
		t.Errorf("unencodable params key = %q", got)
	}
}
