// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

package route

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/wherehaveibeen/internal/config"
	"github.com/tomtom215/wherehaveibeen/internal/logging"
	"github.com/tomtom215/wherehaveibeen/internal/metrics"
)

// maxErrorBodySize limits how much of a failed response is read into an error.
const maxErrorBodySize = 64 * 1024

// maxRouteBodySize caps a decoded route response. Full-overview geometries for
// a few hundred waypoints stay well below this.
const maxRouteBodySize = 32 << 20

// OSRMClient implements Router against the OSRM HTTP API
// (GET {base}/route/v1/{profile}/{lng,lat;...}?overview=full&geometries=geojson).
//
// Each base URL gets its own circuit breaker, created on first use, so one
// owner's broken self-hosted server does not trip routing for everyone else.
// All outbound calls share one rate limiter; public OSRM servers allow one
// request per second.
//
// Thread Safety: safe for concurrent use.
type OSRMClient struct {
	client  *http.Client
	profile string
	limiter *rate.Limiter
	cfg     config.RoutingConfig

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]byte]
}

// NewOSRMClient creates a client from routing configuration.
func NewOSRMClient(cfg *config.RoutingConfig) *OSRMClient {
	c := &OSRMClient{
		client: &http.Client{
			// Per-request deadlines come from the caller's context; this is a backstop.
			Timeout: 2 * cfg.Timeout,
		},
		profile:  cfg.Profile,
		cfg:      *cfg,
		breakers: make(map[string]*gobreaker.CircuitBreaker[[]byte]),
	}
	if c.client.Timeout <= 0 {
		c.client.Timeout = 30 * time.Second
	}
	if c.profile == "" {
		c.profile = "driving"
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Geometry *geojson.Geometry `json:"geometry"`
	} `json:"routes"`
}

// Route implements Router.
func (c *OSRMClient) Route(ctx context.Context, baseURL string, waypoints orb.LineString) (orb.LineString, error) {
	if len(waypoints) < 2 {
		return nil, fmt.Errorf("route: need at least 2 waypoints, got %d", len(waypoints))
	}

	reqURL := fmt.Sprintf("%s/route/v1/%s/%s?overview=full&geometries=geojson",
		strings.TrimRight(baseURL, "/"), c.profile, FormatCoordinates(waypoints))

	body, err := c.execute(ctx, baseURL, func() ([]byte, error) {
		return c.fetchRoute(ctx, reqURL)
	})
	if err != nil {
		return nil, err
	}

	var resp osrmResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode route response: %w", err)
	}
	if len(resp.Routes) == 0 || resp.Routes[0].Geometry == nil {
		return nil, ErrNoRoute
	}
	ls, ok := resp.Routes[0].Geometry.Geometry().(orb.LineString)
	if !ok || len(ls) < 2 {
		return nil, fmt.Errorf("route geometry is %s, want LineString", resp.Routes[0].Geometry.Type)
	}
	return ls, nil
}

// fetchRoute performs the request and checks the OSRM status code. A
// "NoRoute" answer maps to ErrNoRoute; every other non-Ok code is an error.
func (c *OSRMClient) fetchRoute(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("route request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRouteBodySize))
	if err != nil {
		return nil, fmt.Errorf("read route response: %w", err)
	}

	var head struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if jerr := json.Unmarshal(body, &head); jerr != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("route request failed with status %d: %s", resp.StatusCode, truncate(body))
		}
		return nil, fmt.Errorf("decode route response: %w", jerr)
	}
	switch head.Code {
	case "Ok":
		return body, nil
	case "NoRoute", "NoSegment":
		return nil, ErrNoRoute
	default:
		return nil, fmt.Errorf("route request failed with status %d: code %q: %s", resp.StatusCode, head.Code, head.Message)
	}
}

// Forward performs GET {baseURL}/route/v1/{path} and returns the upstream
// status and body verbatim. It shares the limiter and breaker with Route.
func (c *OSRMClient) Forward(ctx context.Context, baseURL, path string) (int, []byte, error) {
	reqURL := strings.TrimRight(baseURL, "/") + "/route/v1/" + strings.TrimLeft(path, "/")
	if _, err := url.Parse(reqURL); err != nil {
		return 0, nil, fmt.Errorf("invalid route URL: %w", err)
	}

	var status int
	body, err := c.execute(ctx, baseURL, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("route request failed: %w", err)
		}
		defer resp.Body.Close()
		status = resp.StatusCode
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxRouteBodySize))
		if err != nil {
			return nil, fmt.Errorf("read route response: %w", err)
		}
		if status >= http.StatusInternalServerError {
			return b, fmt.Errorf("route upstream returned status %d", status)
		}
		return b, nil
	})
	if err != nil && status == 0 {
		return 0, nil, err
	}
	return status, body, nil
}

// execute waits for the rate limiter, then runs fn under the breaker for
// baseURL and records the outcome.
func (c *OSRMClient) execute(ctx context.Context, baseURL string, fn func() ([]byte, error)) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("route rate limit wait: %w", err)
		}
	}

	cb := c.breaker(baseURL)
	name := cb.Name()
	result, err := cb.Execute(fn)
	if err != nil {
		switch {
		case IsBreakerOpen(err):
			metrics.CircuitBreakerRequests.WithLabelValues(name, "rejected").Inc()
			logging.Debug().Err(err).Str("breaker", name).Msg("[CIRCUIT BREAKER] Request rejected")
		case isBreakerNeutral(err):
			metrics.CircuitBreakerRequests.WithLabelValues(name, "success").Inc()
		default:
			metrics.CircuitBreakerRequests.WithLabelValues(name, "failure").Inc()
		}
		return result, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(name, "success").Inc()
	return result, nil
}

// breaker returns the circuit breaker for baseURL, creating it on first use.
func (c *OSRMClient) breaker(baseURL string) *gobreaker.CircuitBreaker[[]byte] {
	key := breakerName(baseURL)

	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[key]; ok {
		return cb
	}

	minRequests := c.cfg.BreakerMinRequests
	ratio := c.cfg.BreakerFailureRatio
	metrics.CircuitBreakerState.WithLabelValues(key).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        key,
		MaxRequests: c.cfg.BreakerMaxRequests,
		Interval:    c.cfg.BreakerInterval,
		Timeout:     c.cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= ratio
			if shouldTrip {
				logging.Warn().Str("breaker", key).Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr, toStr := stateToString(from), stateToString(to)
			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isBreakerNeutral(err)
		},
	})
	c.breakers[key] = cb
	return cb
}

// BreakerState reports the breaker state for baseURL ("closed" if unused).
func (c *OSRMClient) BreakerState(baseURL string) string {
	c.mu.Lock()
	cb, ok := c.breakers[breakerName(baseURL)]
	c.mu.Unlock()
	if !ok {
		return stateToString(gobreaker.StateClosed)
	}
	return stateToString(cb.State())
}

// IsBreakerOpen reports whether err is a rejection by an open or half-open
// breaker rather than an upstream failure.
func IsBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// isBreakerNeutral reports errors that say nothing about the server's health.
func isBreakerNeutral(err error) bool {
	return errors.Is(err, ErrNoRoute) || errors.Is(err, context.Canceled)
}

func breakerName(baseURL string) string {
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		return "osrm:" + u.Host
	}
	return "osrm:" + baseURL
}

// FormatCoordinates renders waypoints as OSRM's "lng,lat;lng,lat" path form.
func FormatCoordinates(ls orb.LineString) string {
	var b strings.Builder
	b.Grow(len(ls) * 24)
	for i, p := range ls {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(strconv.FormatFloat(p.Lon(), 'f', -1, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(p.Lat(), 'f', -1, 64))
	}
	return b.String()
}

func truncate(b []byte) string {
	if len(b) > maxErrorBodySize {
		return string(b[:maxErrorBodySize]) + "\n... (truncated)"
	}
	return string(b)
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
