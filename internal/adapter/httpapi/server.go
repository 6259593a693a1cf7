package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sewagewatch/cso-live-service/internal/observability"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Middleware wraps a handler, in the shape chi expects.
type Middleware = func(http.Handler) http.Handler

// Server exposes the JSON API together with health, readiness, and
// metrics endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds the full route tree around the API handlers. The cache
// middleware wraps only the /api/v1 group; pass nil to serve uncached.
func NewServer(addr string, api *API, ready ReadinessChecker, metrics *observability.Metrics, cache Middleware, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", handleReady(ready))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if metrics != nil {
			r.Use(countRequests(metrics))
		}
		if cache != nil {
			r.Use(cache)
		}

		r.Get("/live/summary", api.handleLiveSummary)
		r.Get("/live/overflowing/{epochms}", api.handleOverflowingAt)
		r.Get("/live/worst", api.handleWorstPoints)

		r.Get("/constituencies", api.handleListConstituencies)
		r.Get("/constituencies/{slug}/events", api.handleConstituencyEvents)
		r.Get("/constituencies/{slug}/rainfall", api.handleConstituencyRainfall)
		r.Get("/constituencies/{slug}/annual", api.handleConstituencyAnnual)

		r.Get("/csos/{id}/annual", api.handleCsoAnnual)

		r.Get("/companies", api.handleListCompanies)
		r.Get("/companies/{slug}/infrastructure", api.handleCompanyInfrastructure)

		r.Get("/rankings/beaches", api.handleBeachRankings)
		r.Get("/rankings/rivers", api.handleRiverRankings)
	})

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
