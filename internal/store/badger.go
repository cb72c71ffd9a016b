// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/wherehaveibeen/internal/logging"
)

// BadgerOptions configures a BadgerBackend.
type BadgerOptions struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path     string
	InMemory bool

	// Prefix namespaces every key this backend touches.
	Prefix string

	// QuotaBytes caps the summed value size under Prefix. 0 means unlimited.
	QuotaBytes int64
}

// BadgerBackend implements Backend on BadgerDB.
type BadgerBackend struct {
	db     *badger.DB
	prefix []byte
	quota  int64

	// mu serialises writes so the quota check and the write are atomic.
	mu     sync.Mutex
	closed bool
}

// OpenBadger opens (or creates) the database described by opts.
func OpenBadger(opts BadgerOptions) (*BadgerBackend, error) {
	bopts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	// Reduce logging verbosity
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", opts.Path).
		Bool("in_memory", opts.InMemory).
		Int64("quota_bytes", opts.QuotaBytes).
		Msg("Cache store opened")

	return &BadgerBackend{db: db, prefix: []byte(opts.Prefix), quota: opts.QuotaBytes}, nil
}

func (b *BadgerBackend) key(k string) []byte {
	out := make([]byte, 0, len(b.prefix)+len(k))
	out = append(out, b.prefix...)
	return append(out, k...)
}

// Get implements Backend.
func (b *BadgerBackend) Get(key string) ([]byte, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.key(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return val, nil
}

// Set implements Backend. A write that would exceed the quota, or that Badger
// rejects as too large for one transaction, returns ErrQuotaExceeded.
func (b *BadgerBackend) Set(key string, val []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	k := b.key(key)
	err := b.db.Update(func(txn *badger.Txn) error {
		if b.quota > 0 {
			used, err := b.usage(txn, k)
			if err != nil {
				return err
			}
			if used+int64(len(val)) > b.quota {
				return ErrQuotaExceeded
			}
		}
		return txn.SetEntry(badger.NewEntry(k, val))
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrQuotaExceeded), errors.Is(err, badger.ErrTxnTooBig):
		return ErrQuotaExceeded
	default:
		return fmt.Errorf("set %q: %w", key, err)
	}
}

// usage sums value sizes under the prefix, skipping key except.
func (b *BadgerBackend) usage(txn *badger.Txn, except []byte) (int64, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = b.prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var total int64
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		if string(item.Key()) == string(except) {
			continue
		}
		total += item.ValueSize()
	}
	return total, nil
}

// Usage returns the summed value size under the prefix.
func (b *BadgerBackend) Usage() (int64, error) {
	if b.isClosed() {
		return 0, ErrClosed
	}
	var total int64
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		total, err = b.usage(txn, nil)
		return err
	})
	return total, err
}

// Delete implements Backend. Deleting a missing key is not an error.
func (b *BadgerBackend) Delete(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(b.key(key))
	}); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Keys implements Backend. Returned keys have the prefix stripped.
func (b *BadgerBackend) Keys() ([]string, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}
	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = b.prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().Key()[len(b.prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

// RunGC reclaims value-log space until Badger reports nothing to rewrite.
func (b *BadgerBackend) RunGC(discardRatio float64) error {
	if b.isClosed() {
		return ErrClosed
	}
	for {
		err := b.db.RunValueLogGC(discardRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Close implements Backend.
func (b *BadgerBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("close BadgerDB: %w", err)
	}
	logging.Info().Msg("Cache store closed")
	return nil
}

func (b *BadgerBackend) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
