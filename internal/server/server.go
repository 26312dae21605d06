// Package server exposes the analyzer over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/truthguard/truthguard/internal/analysis"
	"github.com/truthguard/truthguard/internal/analyzer"
	"github.com/truthguard/truthguard/internal/config"
	"github.com/truthguard/truthguard/internal/logging"
)

// Analyzer is the part of *analyzer.Analyzer the HTTP layer needs.
type Analyzer interface {
	AnalyzeText(ctx context.Context, text string) analysis.Result
	AnalyzeImage(ctx context.Context, data []byte) analysis.Result
	AnalyzeVideo(ctx context.Context, data []byte) analysis.Result
	Status() analyzer.Status
}

// Server wraps the HTTP server components for TruthGuard.
type Server struct {
	router   chi.Router
	cfg      config.ServerConfig
	analyzer Analyzer
	validate *validator.Validate
	inFlight chan struct{}
	draining atomic.Bool
	httpSrv  *http.Server
}

// New creates a server with all routes registered.
func New(cfg config.ServerConfig, a Analyzer) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		cfg:      cfg,
		analyzer: a,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	if cfg.MaxInFlightRequests > 0 {
		s.inFlight = make(chan struct{}, cfg.MaxInFlightRequests)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(requestID)
	r.Use(chimiddleware.RealIP)
	r.Use(accessLog)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         86400,
	}))

	r.Get("/", s.handleHealth)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/analyze", func(r chi.Router) {
		if s.cfg.RateLimitPerMinute > 0 {
			r.Use(httprate.Limit(
				s.cfg.RateLimitPerMinute,
				time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(rateLimited),
			))
		}
		r.Use(instrument)
		r.Use(s.limitInFlight)
		r.Use(s.limitBody)

		r.Post("/text", s.handleAnalyzeText)
		r.Post("/image", s.handleAnalyzeImage)
		r.Post("/video", s.handleAnalyzeVideo)
	})
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server and blocks until it stops. A clean Shutdown
// returns nil.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}
	logging.Info().Str("addr", s.cfg.Addr).Msg("TruthGuard listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown marks the server not ready and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.draining.Store(true)
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
