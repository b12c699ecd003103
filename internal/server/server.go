// Package server exposes the OKR dashboard over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"okrdash/internal/audit"
	"okrdash/internal/checkin"
	"okrdash/internal/okrstore"
	"okrdash/internal/records"
	"okrdash/internal/report"
)

// Config holds server configuration
type Config struct {
	Port        int
	Log         zerolog.Logger
	Repo        *records.OKRRepository
	CheckIns    *checkin.Service
	Permissions *okrstore.PermissionConfig
	Audit       *audit.Logger
	Metrics     *report.Metrics
	Gatherer    prometheus.Gatherer
	SnapshotDir string
	Now         func() time.Time
	DevMode     bool
}

// Server represents the HTTP server
type Server struct {
	router   *chi.Mux
	server   *http.Server
	log      zerolog.Logger
	port     int
	repo     *records.OKRRepository
	checkIns *checkin.Service
	perms    *okrstore.PermissionConfig
	audit    *audit.Logger
	metrics  *report.Metrics
	gatherer prometheus.Gatherer
	snapDir  string
	now      func() time.Time
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		log:      cfg.Log.With().Str("component", "server").Logger(),
		port:     cfg.Port,
		repo:     cfg.Repo,
		checkIns: cfg.CheckIns,
		perms:    cfg.Permissions,
		audit:    cfg.Audit,
		metrics:  cfg.Metrics,
		gatherer: cfg.Gatherer,
		snapDir:  cfg.SnapshotDir,
		now:      cfg.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.perms == nil {
		s.perms = okrstore.DefaultPermissions()
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", ActorHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/cycles", func(r chi.Router) {
			r.Get("/", s.handleListCycles)
			r.Get("/current/progress", s.handleCurrentCycleProgress)
		})

		r.Route("/objectives", func(r chi.Router) {
			r.Get("/", s.handleListObjectives)
			r.Get("/{id}", s.handleGetObjective)
			r.Get("/{id}/children", s.handleObjectiveChildren)
			r.Put("/{id}/override", s.handleSetOverride)
			r.Delete("/{id}/override", s.handleClearOverride)
		})

		r.Route("/key-results", func(r chi.Router) {
			r.Get("/{id}", s.handleGetKeyResult)
			r.Post("/{id}/check-ins", s.handleCheckIn)
		})

		r.Get("/dashboard", s.handleDashboard)
		r.Get("/dashboard/latest", s.handleLatestSnapshot)
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Int("port", s.port).Msg("starting HTTP server")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
