// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

// Package store persists coverage records and per-owner settings in a
// quota-limited key/value backend.
//
// Two backends satisfy Backend: BadgerBackend for durable storage and
// MemoryBackend for tests and ephemeral deployments. Both enforce a byte
// quota over the values they hold so a full cache is reported as
// ErrQuotaExceeded instead of growing without bound.
package store

import "errors"

var (
	// ErrNotFound is returned by Get for a missing key.
	ErrNotFound = errors.New("store: key not found")

	// ErrQuotaExceeded is returned by Set when the write would push stored
	// values past the backend's quota.
	ErrQuotaExceeded = errors.New("store: quota exceeded")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("store: backend closed")
)

// Backend is a flat string-keyed byte store.
type Backend interface {
	Get(key string) ([]byte, error)
	Set(key string, val []byte) error
	Delete(key string) error
	Keys() ([]string, error)
	Close() error
}
