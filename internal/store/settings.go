// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/wherehaveibeen/internal/models"
)

const settingsPrefix = "settings_"

// SettingsStore persists per-owner Settings next to the coverage records.
type SettingsStore struct {
	backend       Backend
	defaultRadius float64
	defaultURL    string
	now           func() time.Time
}

// NewSettingsStore wraps backend. The defaults fill unset fields when a
// fingerprint is computed.
func NewSettingsStore(backend Backend, defaultRadiusKm float64, defaultRoutingURL string) *SettingsStore {
	return &SettingsStore{
		backend:       backend,
		defaultRadius: defaultRadiusKm,
		defaultURL:    defaultRoutingURL,
		now:           time.Now,
	}
}

// Get returns the owner's settings, or zero Settings if none were saved.
func (s *SettingsStore) Get(owner string) (models.Settings, error) {
	data, err := s.backend.Get(settingsPrefix + owner)
	if errors.Is(err, ErrNotFound) {
		return models.Settings{}, nil
	}
	if err != nil {
		return models.Settings{}, fmt.Errorf("read settings for %q: %w", owner, err)
	}
	var st models.Settings
	if err := json.Unmarshal(data, &st); err != nil {
		return models.Settings{}, fmt.Errorf("decode settings for %q: %w", owner, err)
	}
	return st, nil
}

// Save stores st for owner and returns it with UpdatedAt set.
func (s *SettingsStore) Save(owner string, st models.Settings) (models.Settings, error) {
	st.UpdatedAt = s.now().UTC()
	data, err := json.Marshal(st)
	if err != nil {
		return models.Settings{}, fmt.Errorf("encode settings: %w", err)
	}
	if err := s.backend.Set(settingsPrefix+owner, data); err != nil {
		return models.Settings{}, fmt.Errorf("save settings for %q: %w", owner, err)
	}
	return st, nil
}

// Fingerprint resolves the owner's settings against the service defaults.
func (s *SettingsStore) Fingerprint(owner string) (models.SettingsFingerprint, error) {
	st, err := s.Get(owner)
	if err != nil {
		return models.SettingsFingerprint{}, err
	}
	return st.Fingerprint(s.defaultRadius, s.defaultURL), nil
}

// Defaults returns the radius and routing URL used for unset fields.
func (s *SettingsStore) Defaults() (radiusKm float64, routingURL string) {
	return s.defaultRadius, s.defaultURL
}
