// Package api is the engine's small HTTP surface: a health check, the
// Prometheus scrape endpoint, a manual poll trigger and a read-only view of
// open holds.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"clearskies/internal/scheduler"
	"clearskies/internal/types"
)

// CycleTrigger runs one poll cycle and returns its report once every site
// has settled.
type CycleTrigger interface {
	TriggerNow(ctx context.Context) scheduler.CycleReport
}

// ActiveHoldLister lists holds that have not been cleared.
type ActiveHoldLister interface {
	ListActive(ctx context.Context) ([]types.Hold, error)
}

// ServerConfig carries the optional pieces of a Server.
type ServerConfig struct {
	Logger *slog.Logger
	// APIKey guards /api/*. Empty disables the check.
	APIKey  string
	Probes  []HealthProbe
	Metrics http.Handler
	Version string
}

// Server owns the router and its handler dependencies.
type Server struct {
	poller  CycleTrigger
	holds   ActiveHoldLister
	logger  *slog.Logger
	apiKey  string
	probes  []HealthProbe
	metrics http.Handler
	version string

	router *chi.Mux
}

// NewServer builds a Server with all routes mounted.
func NewServer(poller CycleTrigger, holds ActiveHoldLister, cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		poller:  poller,
		holds:   holds,
		logger:  logger,
		apiKey:  cfg.APIKey,
		probes:  cfg.Probes,
		metrics: cfg.Metrics,
		version: cfg.Version,
		router:  chi.NewRouter(),
	}
	s.mountRoutes()
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Middleware order: request id outermost so every later log line and error
// envelope carries it, including the one Recoverer writes.
func (s *Server) mountRoutes() {
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.Recoverer)
	s.router.Use(RequestLogger(s.logger))

	s.router.Get("/health", s.HandleHealth)
	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics)
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(RequireAPIKey(s.apiKey))
		r.Post("/poll", s.HandlePoll)
		r.Get("/holds/active", s.HandleActiveHolds)
	})
}

// HandlePoll runs one cycle synchronously and returns its report. The cycle
// is detached from the request, so a disconnecting client does not cut it
// short. A cycle that could not list sites answers 503 with the report.
func (s *Server) HandlePoll(w http.ResponseWriter, r *http.Request) {
	report := s.poller.TriggerNow(r.Context())
	status := http.StatusOK
	if report.ListError != "" {
		status = http.StatusServiceUnavailable
	}
	JSON(w, r, status, APIResponse{Data: report})
}

// HandleActiveHolds lists open holds.
func (s *Server) HandleActiveHolds(w http.ResponseWriter, r *http.Request) {
	holds, err := s.holds.ListActive(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "failed to list active holds", "error", err)
		Error(w, r, err)
		return
	}
	if holds == nil {
		holds = []types.Hold{}
	}
	JSON(w, r, http.StatusOK, APIResponse{Data: holds})
}
