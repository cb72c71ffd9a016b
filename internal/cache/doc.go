// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

// Package cache provides a small in-memory TTL cache for values that are
// cheap to lose, such as device listings read from the location recorder.
//
// Entries expire lazily on Get and in a periodic sweep. Keys built with
// GenerateKey hash their parameters, so credentials can take part in a key
// without being held in memory in clear text.
package cache
