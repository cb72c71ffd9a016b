// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/wherehaveibeen/internal/cache"
	"github.com/tomtom215/wherehaveibeen/internal/owntracks"
)

const sampleGeoJSON = `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[13.4,52.5]},"properties":{"tst":1714550400}}]}`

func TestLocations(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 0)
	env.locations.raw = []byte(sampleGeoJSON)

	rec, resp := env.do(t, http.MethodGet, "/api/v1/locations?user=Alice&device=phone&startdate=2024-05-01&enddate=2024-05-01T18:30", "", withBasicAuth("alice", "pw"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(resp.Data, &fc); err != nil {
		t.Fatal(err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 1 {
		t.Errorf("data = %s", resp.Data)
	}

	q := env.locations.query
	if q.User != "Alice" || q.Device != "phone" {
		t.Errorf("query = %+v", q)
	}
	if !q.From.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)) || !q.To.Equal(time.Date(2024, 5, 1, 18, 30, 0, 0, time.UTC)) {
		t.Errorf("range = %v..%v", q.From, q.To)
	}
	if env.locations.creds.Username != "alice" {
		t.Errorf("credentials = %+v", env.locations.creds)
	}
}

func TestLocations_UserFromBasicAuth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 0)
	env.locations.raw = []byte(sampleGeoJSON)

	rec, _ := env.do(t, http.MethodGet, "/api/v1/locations", "", withBasicAuth("bob", "pw"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if env.locations.query.User != "bob" {
		t.Errorf("user = %q, want bob", env.locations.query.User)
	}
}

func TestLocations_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target string
		raw    string
		err    error
		status int
		code   string
	}{
		{"no user", "/api/v1/locations", sampleGeoJSON, nil, http.StatusBadRequest, "MISSING_PARAMETER"},
		{"bad date", "/api/v1/locations?user=a&startdate=May", sampleGeoJSON, nil, http.StatusBadRequest, "INVALID_DATE"},
		{"rejected", "/api/v1/locations?user=a", "", &owntracks.HTTPError{StatusCode: http.StatusUnauthorized}, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"unreachable", "/api/v1/locations?user=a", "", errors.New("dial tcp: refused"), http.StatusBadGateway, "UPSTREAM_ERROR"},
		{"not json", "/api/v1/locations?user=a", "<html>", nil, http.StatusBadGateway, "UPSTREAM_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, 0)
			env.locations.raw = []byte(tt.raw)
			env.locations.err = tt.err

			rec, resp := env.do(t, http.MethodGet, tt.target, "")
			if rec.Code != tt.status || errorCode(resp) != tt.code {
				t.Errorf("got %d %q, want %d %q", rec.Code, errorCode(resp), tt.status, tt.code)
			}
		})
	}
}

func TestDevices(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 0)
	env.locations.devices = []owntracks.Device{{Username: "alice", Device: "phone", Latitude: 52.5, Longitude: 13.4}}

	rec, resp := env.do(t, http.MethodGet, "/api/v1/devices?user=alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var devices []owntracks.Device
	if err := json.Unmarshal(resp.Data, &devices); err != nil {
		t.Fatal(err)
	}
	if len(devices) != 1 || devices[0].Device != "phone" || env.locations.user != "alice" {
		t.Errorf("devices = %+v, user %q", devices, env.locations.user)
	}
}

func TestDevices_EmptyIsArray(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 0)

	rec, resp := env.do(t, http.MethodGet, "/api/v1/devices?user=alice", "")
	if rec.Code != http.StatusOK || string(resp.Data) != "[]" {
		t.Errorf("got %d %s", rec.Code, resp.Data)
	}

	rec, resp = env.do(t, http.MethodGet, "/api/v1/devices", "")
	if rec.Code != http.StatusBadRequest || errorCode(resp) != "MISSING_PARAMETER" {
		t.Errorf("no user: %d %q", rec.Code, errorCode(resp))
	}
}

func TestDevices_Cached(t *testing.T) {
	t.Parallel()

	locations := &fakeLocations{devices: []owntracks.Device{{Username: "alice", Device: "phone"}}}
	devCache := cache.NewWithSweep[[]owntracks.Device](time.Minute, 0)
	t.Cleanup(devCache.Close)
	h := NewHandler(Deps{Locations: locations, DeviceCache: devCache, Location: time.UTC})

	get := func(user, pass string) testResponse {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/devices?user=alice", nil)
		if user != "" {
			req.SetBasicAuth(user, pass)
		}
		rec := httptest.NewRecorder()
		h.Devices(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		var resp testResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		return resp
	}

	if resp := get("alice", "pw"); resp.Metadata.Cached {
		t.Error("first request reported cached")
	}
	if resp := get("alice", "pw"); !resp.Metadata.Cached {
		t.Error("second request was not served from cache")
	}
	if locations.calls != 1 {
		t.Errorf("upstream calls = %d, want 1", locations.calls)
	}

	get("alice", "other")
	get("", "")
	if locations.calls != 3 {
		t.Errorf("upstream calls = %d, want 3 for distinct credentials", locations.calls)
	}
}

func TestDevices_ErrorNotCached(t *testing.T) {
	t.Parallel()

	locations := &fakeLocations{err: errors.New("recorder down")}
	devCache := cache.NewWithSweep[[]owntracks.Device](time.Minute, 0)
	t.Cleanup(devCache.Close)
	h := NewHandler(Deps{Locations: locations, DeviceCache: devCache, Location: time.UTC})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices?user=alice", nil)
	rec := httptest.NewRecorder()
	h.Devices(rec, req)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if devCache.Len() != 0 {
		t.Errorf("cache holds %d entries after an upstream error", devCache.Len())
	}
}
