// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

package store

import (
	"errors"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/wherehaveibeen/internal/logging"
	"github.com/tomtom215/wherehaveibeen/internal/metrics"
	"github.com/tomtom215/wherehaveibeen/internal/models"
)

// coveragePrefix separates coverage records from settings in a shared backend.
const coveragePrefix = "coverage_"

// CacheStore persists one CacheRecord per identity.
//
// Writes are best-effort: Put reports failure as false and the caller keeps
// its in-memory result. When the backend is full, every other identity's
// record is evicted and the write is retried once.
type CacheStore struct {
	backend Backend
}

// NewCacheStore wraps backend.
func NewCacheStore(backend Backend) *CacheStore {
	return &CacheStore{backend: backend}
}

func recordKey(id models.Identity) string {
	return coveragePrefix + id.Key()
}

// Get returns the record for id. Missing and undecodable records are both
// misses; the latter is logged and deleted.
func (s *CacheStore) Get(id models.Identity) (*models.CacheRecord, bool) {
	data, err := s.backend.Get(recordKey(id))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logging.Warn().Err(err).Str("key", id.Key()).Msg("Cache read failed")
			metrics.RecordCacheOp("get", "error")
		} else {
			metrics.RecordCacheOp("get", "miss")
		}
		return nil, false
	}

	var rec models.CacheRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		logging.Warn().Err(err).Str("key", id.Key()).Msg("Discarding undecodable cache record")
		metrics.RecordCacheOp("get", "error")
		s.Invalidate(id)
		return nil, false
	}
	metrics.RecordCacheOp("get", "hit")
	return &rec, true
}

// Put writes rec under id and reports whether it was persisted.
func (s *CacheStore) Put(id models.Identity, rec *models.CacheRecord) bool {
	data, err := json.Marshal(rec)
	if err != nil {
		logging.Error().Err(err).Str("key", id.Key()).Msg("Failed to encode cache record")
		metrics.RecordCacheOp("put", "error")
		return false
	}

	key := recordKey(id)
	err = s.backend.Set(key, data)
	if errors.Is(err, ErrQuotaExceeded) {
		evicted := s.evictAllExcept(key)
		logging.Warn().Str("key", id.Key()).Int("evicted", evicted).Int("bytes", len(data)).Msg("Cache quota exceeded, evicted other records")
		err = s.backend.Set(key, data)
		if errors.Is(err, ErrQuotaExceeded) {
			logging.Warn().Str("key", id.Key()).Int("bytes", len(data)).Msg("Cache record does not fit after eviction")
			metrics.RecordCacheOp("put", "quota")
			return false
		}
	}
	if err != nil {
		logging.Error().Err(err).Str("key", id.Key()).Msg("Cache write failed")
		metrics.RecordCacheOp("put", "error")
		return false
	}
	metrics.RecordCacheOp("put", "ok")
	return true
}

func (s *CacheStore) evictAllExcept(keep string) int {
	keys, err := s.backend.Keys()
	if err != nil {
		logging.Warn().Err(err).Msg("Cache eviction could not list keys")
		return 0
	}
	n := 0
	for _, k := range keys {
		if k == keep || !strings.HasPrefix(k, coveragePrefix) {
			continue
		}
		if err := s.backend.Delete(k); err != nil {
			logging.Warn().Err(err).Str("key", k).Msg("Cache eviction failed")
			continue
		}
		n++
	}
	metrics.CacheEvictions.Add(float64(n))
	return n
}

// Validate reports whether rec can seed an incremental build under fp: it
// must exist, carry the same fingerprint, and have at least one mode with
// both a geometry and a range end.
func (s *CacheStore) Validate(rec *models.CacheRecord, fp models.SettingsFingerprint) bool {
	if rec == nil || !rec.Fingerprint.Equal(fp) {
		return false
	}
	for _, mode := range models.Modes {
		if rec.Polygon(mode).Complete() {
			return true
		}
	}
	return false
}

// Invalidate deletes the record for id.
func (s *CacheStore) Invalidate(id models.Identity) {
	if err := s.backend.Delete(recordKey(id)); err != nil {
		logging.Warn().Err(err).Str("key", id.Key()).Msg("Cache invalidate failed")
		metrics.RecordCacheOp("invalidate", "error")
		return
	}
	metrics.RecordCacheOp("invalidate", "ok")
}
