// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

package models

import (
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/paulmach/orb"
)

func TestIdentityKey(t *testing.T) {
	t.Parallel()

	id := Identity{Owner: "alice", Device: "phone"}
	if got := id.Key(); got != "alice_phone" {
		t.Errorf("Key() = %q, want alice_phone", got)
	}
}

func TestSettingsFingerprint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		settings Settings
		want     SettingsFingerprint
	}{
		{"unset takes defaults", Settings{}, SettingsFingerprint{0.5, "https://osrm"}},
		{"radius override", Settings{BufferRadiusKm: 2}, SettingsFingerprint{2, "https://osrm"}},
		{"url override", Settings{RoutingURL: "http://lan:5000"}, SettingsFingerprint{0.5, "http://lan:5000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.settings.Fingerprint(0.5, "https://osrm"); got != tt.want {
				t.Errorf("Fingerprint() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFingerprintEqual(t *testing.T) {
	t.Parallel()

	a := SettingsFingerprint{BufferRadiusKm: 0.5}
	if !a.Equal(SettingsFingerprint{BufferRadiusKm: 0.5}) {
		t.Error("identical fingerprints should be equal")
	}
	if a.Equal(SettingsFingerprint{BufferRadiusKm: 1.0}) {
		t.Error("different radius should not be equal")
	}
	if a.Equal(SettingsFingerprint{BufferRadiusKm: 0.5, RoutingServiceURL: "http://x"}) {
		t.Error("different url should not be equal")
	}
}

func TestLatestRangeEnd(t *testing.T) {
	t.Parallel()

	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(48 * time.Hour)

	rec := NewCacheRecord(Identity{"a", "b"}, SettingsFingerprint{})
	if rec.LatestRangeEnd() != nil {
		t.Fatal("empty record should have no range end")
	}

	rec.Modes[ModeDriving] = &CoveragePolygon{RangeEnd: &early}
	rec.Modes[ModeFlying] = &CoveragePolygon{RangeEnd: &late}
	if got := rec.LatestRangeEnd(); got == nil || !got.Equal(late) {
		t.Errorf("LatestRangeEnd() = %v, want %v", got, late)
	}
}

func TestCacheRecordJSONKeepsGeometry(t *testing.T) {
	t.Parallel()

	end := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rec := NewCacheRecord(Identity{"alice", "phone"}, SettingsFingerprint{BufferRadiusKm: 0.5})
	rec.Modes[ModeDriving] = &CoveragePolygon{
		Geometry: orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
		RangeEnd: &end,
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded CacheRecord
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	p := decoded.Polygon(ModeDriving)
	if !p.Complete() {
		t.Fatalf("decoded driving polygon incomplete: %+v", p)
	}
	poly, ok := p.Geometry.(orb.Polygon)
	if !ok || len(poly[0]) != 4 {
		t.Errorf("decoded geometry = %#v", p.Geometry)
	}
	if decoded.Polygon(ModeFlying) != nil {
		t.Error("flying polygon should be absent")
	}
}

func TestNewCoverageResponse(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Hour)
	rec := NewCacheRecord(Identity{Owner: "alice", Device: "phone"}, SettingsFingerprint{BufferRadiusKm: 0.5})
	rec.Modes[ModeDriving] = &CoveragePolygon{
		Geometry:   orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
		RangeStart: &start,
		RangeEnd:   &end,
	}
	rec.Modes[ModeFlying] = &CoveragePolygon{}
	rec.Metrics.DistanceKm[ModeDriving] = 12.5

	resp := NewCoverageResponse(rec)
	if len(resp.Coverage.Features) != 1 {
		t.Fatalf("features = %d, want 1 (flying has no geometry)", len(resp.Coverage.Features))
	}
	f := resp.Coverage.Features[0]
	if f.Properties["mode"] != "driving" {
		t.Errorf("mode = %v", f.Properties["mode"])
	}
	if f.Properties["rangeEnd"] != "2024-05-01T10:00:00Z" {
		t.Errorf("rangeEnd = %v", f.Properties["rangeEnd"])
	}
	if f.Properties["distanceKm"] != 12.5 {
		t.Errorf("distanceKm = %v", f.Properties["distanceKm"])
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !json.Valid(data) {
		t.Errorf("invalid JSON: %s", data)
	}
}
