// Where Have I Been - GPS Coverage Mapping
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wherehaveibeen

// Package api serves the coverage HTTP API on a chi router.
//
// Routes:
//
//	GET    /health
//	GET    /metrics
//	POST   /api/v1/coverage/build
//	GET    /api/v1/coverage/{owner}/{device}
//	DELETE /api/v1/coverage/{owner}/{device}
//	GET    /api/v1/settings/{owner}
//	PUT    /api/v1/settings/{owner}
//	GET    /api/v1/locations
//	GET    /api/v1/devices
//	GET    /api/v1/proxy/route
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/wherehaveibeen/internal/middleware"
)

// Router binds handlers to routes.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a Router. A nil mw takes the default middleware config.
func NewRouter(handler *Handler, mw *ChiMiddleware) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, chiMiddleware: mw}
}

// SetupChi builds the HTTP handler.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // global so OPTIONS preflight is answered
	r.Use(middleware.PrometheusMetrics)

	r.Get("/health", router.handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())

		r.Post("/coverage/build", router.handler.BuildCoverage)
		r.Get("/coverage/{owner}/{device}", router.handler.GetCoverage)
		r.Delete("/coverage/{owner}/{device}", router.handler.DeleteCoverage)

		r.Get("/settings/{owner}", router.handler.GetSettings)
		r.Put("/settings/{owner}", router.handler.SaveSettings)

		r.Get("/locations", router.handler.Locations)
		r.Get("/devices", router.handler.Devices)

		r.Get("/proxy/route", router.handler.ProxyRoute)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	return r
}
