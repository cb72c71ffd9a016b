// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

package owntracks

import (
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/tomtom215/wherehaveibeen/internal/metrics"
	"github.com/tomtom215/wherehaveibeen/internal/models"
)

// ParseFixes decodes an OwnTracks GeoJSON FeatureCollection.
//
// Features without a Point geometry or without any timestamp are skipped and
// counted. Properties read are vel (km/h), alt (m), acc (m) and isotst, with
// tst (epoch seconds) as the timestamp fallback. The result is sorted by
// timestamp; fixes with equal timestamps keep their input order.
func ParseFixes(raw []byte) ([]models.Fix, error) {
	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}
	if fc.Type != "" && fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("decode feature collection: unexpected type %q", fc.Type)
	}

	fixes := make([]models.Fix, 0, len(fc.Features))
	for _, rawFeature := range fc.Features {
		f, err := geojson.UnmarshalFeature(rawFeature)
		if err != nil || f.Geometry == nil {
			metrics.FixesDropped.WithLabelValues("no_geometry").Inc()
			continue
		}
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			metrics.FixesDropped.WithLabelValues("no_geometry").Inc()
			continue
		}
		ts, ok := timestamp(f.Properties)
		if !ok {
			metrics.FixesDropped.WithLabelValues("no_timestamp").Inc()
			continue
		}
		fixes = append(fixes, models.Fix{
			Latitude:       pt.Lat(),
			Longitude:      pt.Lon(),
			VelocityKmh:    f.Properties.MustFloat64("vel", 0),
			AltitudeMeters: f.Properties.MustFloat64("alt", 0),
			AccuracyMeters: f.Properties.MustFloat64("acc", 0),
			Timestamp:      ts,
		})
	}

	sort.SliceStable(fixes, func(i, j int) bool {
		return fixes[i].Timestamp.Before(fixes[j].Timestamp)
	})
	return fixes, nil
}

func timestamp(props geojson.Properties) (time.Time, bool) {
	if s, ok := props["isotst"].(string); ok && s != "" {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC(), true
		}
	}
	if v, ok := props["tst"].(float64); ok && v > 0 {
		return time.Unix(int64(v), 0).UTC(), true
	}
	return time.Time{}, false
}
