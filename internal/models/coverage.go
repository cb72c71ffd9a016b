// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

// Package models defines the data carried through the coverage pipeline and
// the persisted cache schema.
package models

import (
	"time"

	json "github.com/goccy/go-json"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Mode is the travel mode a segment was classified as.
type Mode string

const (
	ModeDriving Mode = "driving"
	ModeFlying  Mode = "flying"
)

// Modes lists every mode in a stable order.
var Modes = []Mode{ModeDriving, ModeFlying}

// Strategy identifies how a reconstructed path was produced.
type Strategy string

const (
	StrategyRoadSnapped Strategy = "road-snapped"
	StrategyRaw         Strategy = "raw"
	StrategyDecimated   Strategy = "decimated"
)

// Fix is one GPS observation from the location history.
type Fix struct {
	Latitude       float64   `json:"lat"`
	Longitude      float64   `json:"lng"`
	VelocityKmh    float64   `json:"vel"`
	AltitudeMeters float64   `json:"alt"`
	AccuracyMeters float64   `json:"acc"`
	Timestamp      time.Time `json:"isotst"`
}

// Point returns the fix as an orb point in (lng, lat) order.
func (f Fix) Point() orb.Point {
	return orb.Point{f.Longitude, f.Latitude}
}

// Segment is a maximal run of fixes sharing one Mode. Segments handed out
// by the segmenter always hold at least two points.
type Segment struct {
	Mode   Mode
	Points []Fix
}

// Start is the timestamp of the first point.
func (s Segment) Start() time.Time {
	if len(s.Points) == 0 {
		return time.Time{}
	}
	return s.Points[0].Timestamp
}

// End is the timestamp of the last point.
func (s Segment) End() time.Time {
	if len(s.Points) == 0 {
		return time.Time{}
	}
	return s.Points[len(s.Points)-1].Timestamp
}

// LineString returns the segment vertices in (lng, lat) order.
func (s Segment) LineString() orb.LineString {
	ls := make(orb.LineString, len(s.Points))
	for i, p := range s.Points {
		ls[i] = p.Point()
	}
	return ls
}

// ReconstructedPath is a segment turned into a drawable and bufferable line.
type ReconstructedPath struct {
	Mode     Mode
	Strategy Strategy
	Path     orb.LineString
}

// CoveragePolygon is the cumulative buffered area for one mode plus the time
// range of the fixes folded into it.
type CoveragePolygon struct {
	Geometry   orb.Geometry
	RangeStart *time.Time
	RangeEnd   *time.Time
}

type coveragePolygonJSON struct {
	Geometry   *geojson.Geometry `json:"geometry,omitempty"`
	RangeStart *time.Time        `json:"rangeStart,omitempty"`
	RangeEnd   *time.Time        `json:"rangeEnd,omitempty"`
}

// MarshalJSON encodes the geometry as a GeoJSON geometry object.
func (p CoveragePolygon) MarshalJSON() ([]byte, error) {
	w := coveragePolygonJSON{RangeStart: p.RangeStart, RangeEnd: p.RangeEnd}
	if p.Geometry != nil {
		w.Geometry = geojson.NewGeometry(p.Geometry)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (p *CoveragePolygon) UnmarshalJSON(data []byte) error {
	var w coveragePolygonJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p.RangeStart, p.RangeEnd = w.RangeStart, w.RangeEnd
	p.Geometry = nil
	if w.Geometry != nil {
		p.Geometry = w.Geometry.Geometry()
	}
	return nil
}

// Complete reports whether the polygon can seed an incremental build.
func (p *CoveragePolygon) Complete() bool {
	return p != nil && p.Geometry != nil && p.RangeEnd != nil
}

// SettingsFingerprint is the subset of settings that invalidates cached
// coverage when it changes.
type SettingsFingerprint struct {
	BufferRadiusKm    float64 `json:"bufferRadiusKm"`
	RoutingServiceURL string  `json:"routingServiceUrl"`
}

// Equal reports exact equality of both fields.
func (f SettingsFingerprint) Equal(other SettingsFingerprint) bool {
	return f.BufferRadiusKm == other.BufferRadiusKm && f.RoutingServiceURL == other.RoutingServiceURL
}

// Identity names the (owner, device) pair a cache record belongs to.
type Identity struct {
	Owner  string
	Device string
}

// Key is the persistent store key, "{owner}_{device}".
func (id Identity) Key() string {
	return id.Owner + "_" + id.Device
}

// AggregateMetrics summarise everything folded into a cache record.
type AggregateMetrics struct {
	DistanceKm    map[Mode]float64 `json:"distanceKm"`
	SegmentCount  map[Mode]int     `json:"segmentCount"`
	FixCount      int              `json:"fixCount"`
	LastStrategy  Strategy         `json:"lastStrategy,omitempty"`
	UnionFailures int              `json:"unionFailures,omitempty"`
}

// CacheRecord is the persisted coverage for one identity.
type CacheRecord struct {
	Owner       string                    `json:"owner"`
	Device      string                    `json:"device"`
	Modes       map[Mode]*CoveragePolygon `json:"perMode"`
	Fingerprint SettingsFingerprint       `json:"fingerprint"`
	Metrics     AggregateMetrics          `json:"aggregateMetrics"`
	UpdatedAt   time.Time                 `json:"updatedAt"`
}

// NewCacheRecord returns an empty record for id.
func NewCacheRecord(id Identity, fp SettingsFingerprint) *CacheRecord {
	return &CacheRecord{
		Owner:       id.Owner,
		Device:      id.Device,
		Modes:       make(map[Mode]*CoveragePolygon, len(Modes)),
		Fingerprint: fp,
		Metrics: AggregateMetrics{
			DistanceKm:   make(map[Mode]float64, len(Modes)),
			SegmentCount: make(map[Mode]int, len(Modes)),
		},
	}
}

// Identity returns the record's identity.
func (r *CacheRecord) Identity() Identity {
	return Identity{Owner: r.Owner, Device: r.Device}
}

// Polygon returns the coverage for mode, or nil.
func (r *CacheRecord) Polygon(mode Mode) *CoveragePolygon {
	if r == nil || r.Modes == nil {
		return nil
	}
	return r.Modes[mode]
}

// LatestRangeEnd is the newest rangeEnd across all modes, or nil when no
// mode has one.
func (r *CacheRecord) LatestRangeEnd() *time.Time {
	var latest *time.Time
	for _, mode := range Modes {
		p := r.Polygon(mode)
		if p == nil || p.RangeEnd == nil {
			continue
		}
		if latest == nil || p.RangeEnd.After(*latest) {
			end := *p.RangeEnd
			latest = &end
		}
	}
	return latest
}

// Settings are the per-owner preferences. The JSON names match the web
// client's settings form (circleSize in km, osrmURL override).
type Settings struct {
	BufferRadiusKm float64   `json:"circleSize"`
	RoutingURL     string    `json:"osrmURL"`
	UpdatedAt      time.Time `json:"updatedAt,omitempty"`
}

// Fingerprint resolves the settings against the service defaults. An unset
// radius or URL takes the default, so a changed default invalidates caches
// built under it.
func (s Settings) Fingerprint(defaultRadiusKm float64, defaultRoutingURL string) SettingsFingerprint {
	fp := SettingsFingerprint{BufferRadiusKm: s.BufferRadiusKm, RoutingServiceURL: s.RoutingURL}
	if fp.BufferRadiusKm <= 0 {
		fp.BufferRadiusKm = defaultRadiusKm
	}
	if fp.RoutingServiceURL == "" {
		fp.RoutingServiceURL = defaultRoutingURL
	}
	return fp
}
