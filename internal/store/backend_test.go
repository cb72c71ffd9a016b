// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

package store

import (
	"errors"
	"reflect"
	"sort"
	"testing"
)

func openTestBadger(t *testing.T, quota int64) *BadgerBackend {
	t.Helper()
	b, err := OpenBadger(BadgerOptions{InMemory: true, Prefix: "whib/", QuotaBytes: quota})
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// backendFactories run the same behaviour tests over both implementations.
func backendFactories() map[string]func(t *testing.T, quota int64) Backend {
	return map[string]func(t *testing.T, quota int64) Backend{
		"memory": func(_ *testing.T, quota int64) Backend { return NewMemoryBackend(quota) },
		"badger": func(t *testing.T, quota int64) Backend { return openTestBadger(t, quota) },
	}
}

func TestBackend_GetSetDeleteKeys(t *testing.T) {
	t.Parallel()

	for name, open := range backendFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			b := open(t, 0)

			if _, err := b.Get("missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get(missing) err = %v, want ErrNotFound", err)
			}
			if err := b.Set("a", []byte("one")); err != nil {
				t.Fatal(err)
			}
			if err := b.Set("b", []byte("two")); err != nil {
				t.Fatal(err)
			}
			if err := b.Set("a", []byte("uno")); err != nil {
				t.Fatal(err)
			}

			got, err := b.Get("a")
			if err != nil || string(got) != "uno" {
				t.Errorf("Get(a) = %q, %v", got, err)
			}

			keys, err := b.Keys()
			if err != nil {
				t.Fatal(err)
			}
			sort.Strings(keys)
			if !reflect.DeepEqual(keys, []string{"a", "b"}) {
				t.Errorf("Keys() = %v", keys)
			}

			if err := b.Delete("a"); err != nil {
				t.Fatal(err)
			}
			if err := b.Delete("a"); err != nil {
				t.Errorf("deleting a missing key: %v", err)
			}
			if _, err := b.Get("a"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get after Delete err = %v", err)
			}
		})
	}
}

func TestBackend_Quota(t *testing.T) {
	t.Parallel()

	for name, open := range backendFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			b := open(t, 10)

			if err := b.Set("a", []byte("123456")); err != nil {
				t.Fatal(err)
			}
			if err := b.Set("b", []byte("12345")); !errors.Is(err, ErrQuotaExceeded) {
				t.Fatalf("Set over quota err = %v, want ErrQuotaExceeded", err)
			}
			// Overwriting a key only counts its new size.
			if err := b.Set("a", []byte("1234567890")); err != nil {
				t.Errorf("overwrite within quota: %v", err)
			}
			if err := b.Delete("a"); err != nil {
				t.Fatal(err)
			}
			if err := b.Set("b", []byte("12345")); err != nil {
				t.Errorf("Set after freeing space: %v", err)
			}
		})
	}
}

func TestBackend_Closed(t *testing.T) {
	t.Parallel()

	for name, open := range backendFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			b := open(t, 0)
			if err := b.Close(); err != nil {
				t.Fatal(err)
			}
			if err := b.Set("a", []byte("x")); !errors.Is(err, ErrClosed) {
				t.Errorf("Set after Close err = %v", err)
			}
			if _, err := b.Get("a"); !errors.Is(err, ErrClosed) {
				t.Errorf("Get after Close err = %v", err)
			}
		})
	}
}

func TestBadgerBackend_PrefixIsolation(t *testing.T) {
	t.Parallel()

	b := openTestBadger(t, 0)
	if err := b.Set("k", []byte("v")); err != nil {
		t.Fatal(err)
	}

	// A second view over the same DB with another prefix sees nothing.
	other := &BadgerBackend{db: b.db, prefix: []byte("other/")}
	keys, err := other.Keys()
	if err != nil || len(keys) != 0 {
		t.Errorf("other prefix Keys() = %v, %v", keys, err)
	}
	if _, err := other.Get("k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("other prefix Get err = %v", err)
	}
}

func TestBadgerBackend_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	b, err := OpenBadger(BadgerOptions{Path: dir, Prefix: "whib/"})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Set("alice_phone", []byte(`{"owner":"alice"}`)); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	b, err = OpenBadger(BadgerOptions{Path: dir, Prefix: "whib/"})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	got, err := b.Get("alice_phone")
	if err != nil || string(got) != `{"owner":"alice"}` {
		t.Errorf("Get after reopen = %q, %v", got, err)
	}
	if err := b.RunGC(0.5); err != nil {
		t.Errorf("RunGC: %v", err)
	}
	used, err := b.Usage()
	if err != nil || used != int64(len(`{"owner":"alice"}`)) {
		t.Errorf("Usage() = %d, %v", used, err)
	}
}

func TestBadgerBackend_RunGCInMemory(t *testing.T) {
	t.Parallel()

	if err := openTestBadger(t, 0).RunGC(0.5); err != nil {
		t.Errorf("RunGC in memory mode should be a no-op, got %v", err)
	}
}
