// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/wherehaveibeen/internal/models"
	"github.com/tomtom215/wherehaveibeen/internal/owntracks"
	"github.com/tomtom215/wherehaveibeen/internal/pipeline"
	"github.com/tomtom215/wherehaveibeen/internal/store"
)

const testDefaultRoutingURL = "http://osrm.default:5000"

type fakeBuilder struct {
	mu      sync.Mutex
	res     *pipeline.BuildResult
	err     error
	reqs    []pipeline.BuildRequest
	creds   owntracks.Credentials
	cleared []models.Identity
	block   bool // wait for ctx to end and return its error
}

func (f *fakeBuilder) Build(ctx context.Context, req pipeline.BuildRequest) (*pipeline.BuildResult, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.creds, _ = owntracks.CredentialsFromContext(ctx)
	res, err, block := f.res, f.err, f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return res, err
}

func (f *fakeBuilder) Clear(_ context.Context, id models.Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, id)
}

type fakeLocations struct {
	mu      sync.Mutex
	raw     []byte
	devices []owntracks.Device
	err     error
	query   owntracks.LocationQuery
	user    string
	creds   owntracks.Credentials
	calls   int
}

func (f *fakeLocations) Locations(ctx context.Context, q owntracks.LocationQuery) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.query = q
	f.creds, _ = owntracks.CredentialsFromContext(ctx)
	return f.raw, f.err
}

func (f *fakeLocations) Devices(ctx context.Context, user string) ([]owntracks.Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user = user
	f.creds, _ = owntracks.CredentialsFromContext(ctx)
	f.calls++
	return f.devices, f.err
}

type fakeRoutes struct {
	mu      sync.Mutex
	status  int
	body    []byte
	err     error
	baseURL string
	path    string
}

func (f *fakeRoutes) Forward(_ context.Context, baseURL, path string) (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.baseURL, f.path = baseURL, path
	return f.status, f.body, f.err
}

type testEnv struct {
	builder   *fakeBuilder
	cache     *store.CacheStore
	settings  *store.SettingsStore
	locations *fakeLocations
	routes    *fakeRoutes
	handler   http.Handler
}

func newTestEnv(t *testing.T, quotaBytes int64) *testEnv {
	t.Helper()

	backend := store.NewMemoryBackend(quotaBytes)
	t.Cleanup(func() { _ = backend.Close() })

	env := &testEnv{
		builder:   &fakeBuilder{},
		cache:     store.NewCacheStore(backend),
		settings:  store.NewSettingsStore(backend, 0.5, testDefaultRoutingURL),
		locations: &fakeLocations{},
		routes:    &fakeRoutes{},
	}
	h := NewHandler(Deps{
		Builder:      env.builder,
		Coverage:     env.cache,
		Settings:     env.settings,
		Locations:    env.locations,
		Routes:       env.routes,
		Usage:        backend,
		CacheBackend: "memory",
		Location:     time.UTC,
	})

	cfg := DefaultChiMiddlewareConfig()
	cfg.CORSAllowedOrigins = []string{"https://map.example"}
	cfg.RateLimitDisabled = true
	env.handler = NewRouter(h, NewChiMiddleware(cfg)).SetupChi()
	return env
}

type testResponse struct {
	Status   string           `json:"status"`
	Data     json.RawMessage  `json:"data"`
	Metadata models.Metadata  `json:"metadata"`
	Error    *models.APIError `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, target, body string, opts ...func(*http.Request)) (*httptest.ResponseRecorder, testResponse) {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var resp testResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, resp
}

func withBasicAuth(user, pass string) func(*http.Request) {
	return func(r *http.Request) { r.SetBasicAuth(user, pass) }
}

func errorCode(resp testResponse) string {
	if resp.Error == nil {
		return ""
	}
	return resp.Error.Code
}

func TestHealth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 0)

	rec, resp := env.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var health models.HealthStatus
	if err := json.Unmarshal(resp.Data, &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "healthy" || health.CacheBackend != "memory" {
		t.Errorf("health = %+v", health)
	}
	if rec.Header().Get("ETag") == "" {
		t.Error("missing ETag")
	}
	if id := rec.Header().Get("X-Request-ID"); id == "" || id != resp.Metadata.RequestID {
		t.Errorf("request id header %q, metadata %q", id, resp.Metadata.RequestID)
	}
}

func TestRouter_NotFoundAndMethodNotAllowed(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 0)

	rec, resp := env.do(t, http.MethodGet, "/api/v1/nope", "")
	if rec.Code != http.StatusNotFound || errorCode(resp) != "NOT_FOUND" {
		t.Errorf("unknown route: %d %s", rec.Code, errorCode(resp))
	}

	rec, resp = env.do(t, http.MethodPatch, "/api/v1/coverage/build", "")
	if rec.Code != http.StatusMethodNotAllowed || errorCode(resp) != "METHOD_NOT_ALLOWED" {
		t.Errorf("wrong method: %d %s", rec.Code, errorCode(resp))
	}
}
