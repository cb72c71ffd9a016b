// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

package store

import (
	"testing"
	"time"

	"github.com/tomtom215/wherehaveibeen/internal/models"
)

func TestSettingsStore_DefaultsAndSave(t *testing.T) {
	t.Parallel()

	const defURL = "https://router.project-osrm.org"
	s := NewSettingsStore(NewMemoryBackend(0), 0.5, defURL)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	fp, err := s.Fingerprint("alice")
	if err != nil {
		t.Fatal(err)
	}
	if fp != (models.SettingsFingerprint{BufferRadiusKm: 0.5, RoutingServiceURL: defURL}) {
		t.Errorf("default fingerprint = %+v", fp)
	}

	saved, err := s.Save("alice", models.Settings{BufferRadiusKm: 2})
	if err != nil {
		t.Fatal(err)
	}
	if !saved.UpdatedAt.Equal(fixed) {
		t.Errorf("UpdatedAt = %v", saved.UpdatedAt)
	}

	fp, err = s.Fingerprint("alice")
	if err != nil {
		t.Fatal(err)
	}
	if fp.BufferRadiusKm != 2 || fp.RoutingServiceURL != defURL {
		t.Errorf("fingerprint after save = %+v", fp)
	}

	got, err := s.Get("alice")
	if err != nil || got.BufferRadiusKm != 2 {
		t.Errorf("Get = %+v, %v", got, err)
	}
}

func TestSettingsStore_DefaultURLChangeChangesFingerprint(t *testing.T) {
	t.Parallel()

	b := NewMemoryBackend(0)
	before, _ := NewSettingsStore(b, 0.5, "http://a").Fingerprint("bob")
	after, _ := NewSettingsStore(b, 0.5, "http://b").Fingerprint("bob")
	if before.Equal(after) {
		t.Error("changing the default routing URL must change the fingerprint")
	}
}

func TestSettingsStore_CorruptIsError(t *testing.T) {
	t.Parallel()

	b := NewMemoryBackend(0)
	_ = b.Set(settingsPrefix+"carol", []byte("nope"))
	if _, err := NewSettingsStore(b, 0.5, "").Get("carol"); err == nil {
		t.Error("expected decode error")
	}
}
