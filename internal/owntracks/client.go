// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

// Package owntracks reads location history from an OwnTracks recorder.
//
// The recorder's HTTP API is used read-only:
//
//	GET /api/0/locations?from&to&user&device&format=geojson
//	GET /api/0/last
//
// Requests authenticate with HTTP basic auth. Credentials come from the
// request context when the caller forwarded them (ContextWithCredentials),
// otherwise from configuration.
package owntracks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/wherehaveibeen/internal/config"
	"github.com/tomtom215/wherehaveibeen/internal/models"
)

// maxErrorBodySize limits how much of a failed response is kept for the error.
const maxErrorBodySize = 64 * 1024

// wireTimeFormat is the UTC millisecond form the recorder expects.
const wireTimeFormat = "2006-01-02T15:04:05.000Z"

// Default query range when the caller gives no bounds.
var (
	DefaultFrom = time.Date(2015, 1, 1, 1, 0, 0, 0, time.UTC)
	DefaultTo   = time.Date(2099, 12, 31, 23, 59, 59, 0, time.UTC)
)

// Credentials are OwnTracks basic-auth credentials.
type Credentials struct {
	Username string
	Password string
}

type credentialsKey struct{}

// ContextWithCredentials attaches per-request credentials that override the
// configured ones.
func ContextWithCredentials(ctx context.Context, c Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey{}, c)
}

// CredentialsFromContext returns the credentials set by ContextWithCredentials.
func CredentialsFromContext(ctx context.Context) (Credentials, bool) {
	c, ok := ctx.Value(credentialsKey{}).(Credentials)
	return c, ok && c.Username != ""
}

// LocationQuery selects a slice of location history. Zero times take the
// default range.
type LocationQuery struct {
	User   string
	Device string
	From   time.Time
	To     time.Time
}

// Values renders the query parameters the recorder expects.
func (q LocationQuery) Values() url.Values {
	from, to := q.From, q.To
	if from.IsZero() {
		from = DefaultFrom
	}
	if to.IsZero() {
		to = DefaultTo
	}
	v := url.Values{}
	v.Set("from", from.UTC().Format(wireTimeFormat))
	v.Set("to", to.UTC().Format(wireTimeFormat))
	v.Set("format", "geojson")
	v.Set("user", strings.ToLower(q.User))
	if q.Device != "" {
		v.Set("device", q.Device)
	}
	return v
}

// Device is one entry of /api/0/last.
type Device struct {
	Username  string  `json:"username"`
	Device    string  `json:"device"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Timestamp int64   `json:"tst"`
	ISOTime   string  `json:"isotst,omitempty"`
	Accuracy  float64 `json:"acc,omitempty"`
	Velocity  float64 `json:"vel,omitempty"`
	Battery   int     `json:"batt,omitempty"`
	TrackerID string  `json:"tid,omitempty"`
}

// Client talks to one OwnTracks recorder.
//
// Thread Safety: safe for concurrent use.
type Client struct {
	baseURL        string
	creds          Credentials
	client         *http.Client
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewClient creates a client from configuration.
func NewClient(cfg *config.OwnTracksConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.URL, "/"),
		creds:          Credentials{Username: cfg.Username, Password: cfg.Password},
		client:         &http.Client{Timeout: timeout},
		maxRetries:     maxRetries,
		retryBaseDelay: time.Second,
	}
}

// Locations returns the raw GeoJSON FeatureCollection for q.
func (c *Client) Locations(ctx context.Context, q LocationQuery) ([]byte, error) {
	body, err := c.get(ctx, "/api/0/locations", q.Values())
	if err != nil {
		return nil, fmt.Errorf("fetch locations: %w", err)
	}
	return body, nil
}

// Fixes fetches and parses the fixes for q, oldest first.
func (c *Client) Fixes(ctx context.Context, q LocationQuery) ([]models.Fix, error) {
	raw, err := c.Locations(ctx, q)
	if err != nil {
		return nil, err
	}
	return ParseFixes(raw)
}

// Devices returns the last known location of each of user's devices.
func (c *Client) Devices(ctx context.Context, user string) ([]Device, error) {
	body, err := c.get(ctx, "/api/0/last", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch last locations: %w", err)
	}
	var all []Device
	if err := json.Unmarshal(body, &all); err != nil {
		return nil, fmt.Errorf("decode last locations: %w", err)
	}
	out := all[:0]
	for _, d := range all {
		if strings.EqualFold(d.Username, user) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	resp, err := c.doRequestWithRateLimit(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

// doRequestWithRateLimit retries HTTP 429 with exponential backoff, honouring
// Retry-After when the recorder (or a proxy in front of it) sends one.
func (c *Client) doRequestWithRateLimit(ctx context.Context, reqURL string) (*http.Response, error) {
	creds := c.creds
	if fromCtx, ok := CredentialsFromContext(ctx); ok {
		creds = fromCtx
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if creds.Username != "" {
			req.SetBasicAuth(creds.Username, creds.Password)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("HTTP request failed: %w", err)
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}
		_ = resp.Body.Close()

		if attempt >= c.maxRetries {
			return nil, fmt.Errorf("rate limit exceeded after %d retries (HTTP 429)", c.maxRetries)
		}

		delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs >= 0 {
				delay = time.Duration(secs) * time.Second
			}
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

// HTTPError is a non-200 answer from the recorder.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("owntracks returned status %d: %s", e.StatusCode, e.Body)
}
