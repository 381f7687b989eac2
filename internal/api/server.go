// SPDX-License-Identifier: MIT

// Package api provides the HTTP surface of the daemon: guest session
// endpoints, event publication and streaming, and staff administration.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mesaops/mesad/internal/api/middleware"
	"github.com/mesaops/mesad/internal/config"
	"github.com/mesaops/mesad/internal/diag"
	"github.com/mesaops/mesad/internal/domain/session/manager"
	"github.com/mesaops/mesad/internal/eventbus"
	"github.com/mesaops/mesad/internal/ratelimit"
	"github.com/mesaops/mesad/internal/token"
)

// Server wires the HTTP handlers to the domain services.
type Server struct {
	cfg      config.AppConfig
	bus      *eventbus.Bus
	sessions *manager.Manager
	tokens   *token.Service
	limiter  *ratelimit.Limiter
	exporter *diag.Exporter

	startTime time.Time
}

// Deps carries the domain services the server dispatches to.
type Deps struct {
	Bus      *eventbus.Bus
	Sessions *manager.Manager
	Tokens   *token.Service
	Limiter  *ratelimit.Limiter
	Exporter *diag.Exporter
}

// NewServer creates an API server around the given services.
func NewServer(cfg config.AppConfig, deps Deps) *Server {
	return &Server{
		cfg:       cfg,
		bus:       deps.Bus,
		sessions:  deps.Sessions,
		tokens:    deps.Tokens,
		limiter:   deps.Limiter,
		exporter:  deps.Exporter,
		startTime: time.Now(),
	}
}

// Router builds the chi router with the full middleware stack and all routes.
func (s *Server) Router() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:   true,
		TracingService:  "mesad-api",
		EnableLogging:   true,
		EnableRateLimit: s.cfg.RateLimit.Enabled,
		RateLimitRPM:    int(s.cfg.RateLimit.GlobalRate * 60),
		RateLimitBurst:  s.cfg.RateLimit.GlobalBurst,
	})

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.ScanRateLimit()).Post("/scan", s.handleScan)

		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Post("/sessions/{id}/extend", s.handleExtendSession)
		r.Post("/sessions/{id}/close", s.handleCloseSession)
		r.Get("/stats", s.handleStats)

		r.Post("/events/{topic}", s.handlePublishEvent)
		r.Get("/events/{topic}/history", s.handleEventHistory)
		r.Get("/events/stream", s.handleEventStream)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.adminAuth)
			r.Post("/tokens", s.handleIssueToken)
			r.Post("/tokens/rotate", s.handleRotateToken)
			r.Post("/events/export", s.handleExportEvents)
		})
	})

	return r
}
