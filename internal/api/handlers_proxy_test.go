// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	gobreaker "github.com/sony/gobreaker/v2"
)

func proxyTarget(values map[string]string) string {
	q := url.Values{}
	for k, v := range values {
		q.Set(k, v)
	}
	return "/api/v1/proxy/route?" + q.Encode()
}

func TestProxyRoute_ForwardsVerbatim(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 0)
	upstream := `{"code":"Ok","routes":[{"distance":1234.5}]}`
	env.routes.status = http.StatusOK
	env.routes.body = []byte(upstream)

	rec, _ := env.do(t, http.MethodGet, proxyTarget(map[string]string{
		"coords": "/driving/13.4,52.5;13.5,52.6?overview=false",
	}), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != upstream {
		t.Errorf("body = %s, want upstream verbatim", rec.Body.String())
	}
	if env.routes.baseURL != testDefaultRoutingURL {
		t.Errorf("base = %q, want default", env.routes.baseURL)
	}
	if env.routes.path != "driving/13.4,52.5;13.5,52.6" {
		t.Errorf("path = %q", env.routes.path)
	}
}

func TestProxyRoute_CustomServerAndUpstreamStatus(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, 0)
	env.routes.status = http.StatusBadRequest
	env.routes.body = []byte(`{"code":"InvalidQuery","message":"bad coords"}`)

	rec, _ := env.do(t, http.MethodGet, proxyTarget(map[string]string{
		"osrmURL": "http://my.osrm:5000/",
		"coords":  "/driving/x",
	}), "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want upstream 400", rec.Code)
	}
	if env.routes.baseURL != "http://my.osrm:5000" || env.routes.path != "driving/x" {
		t.Errorf("forwarded to %q %q", env.routes.baseURL, env.routes.path)
	}
}

func TestProxyRoute_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		params map[string]string
		body   string
		err    error
		status int
		code   string
	}{
		{"missing coords", map[string]string{}, "", nil, http.StatusBadRequest, "MISSING_PARAMETER"},
		{"bad scheme", map[string]string{"coords": "/driving/x", "osrmURL": "file:///etc/passwd"}, "", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"breaker open", map[string]string{"coords": "/driving/x"}, "", fmt.Errorf("route: %w", gobreaker.ErrOpenState), http.StatusServiceUnavailable, "ROUTING_UNAVAILABLE"},
		{"network", map[string]string{"coords": "/driving/x"}, "", errors.New("connection refused"), http.StatusBadGateway, "UPSTREAM_ERROR"},
		{"not json", map[string]string{"coords": "/driving/x"}, "<html>502</html>", nil, http.StatusBadGateway, "UPSTREAM_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t, 0)
			env.routes.status = http.StatusOK
			env.routes.body = []byte(tt.body)
			env.routes.err = tt.err

			rec, resp := env.do(t, http.MethodGet, proxyTarget(tt.params), "")
			if rec.Code != tt.status || errorCode(resp) != tt.code {
				t.Errorf("got %d %q, want %d %q", rec.Code, errorCode(resp), tt.status, tt.code)
			}
		})
	}
}
