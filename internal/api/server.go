// Package api serves the explanation pipeline over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/fraudlens/internal/assembler"
	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/metrics"
	"github.com/opensource-finance/fraudlens/internal/rules"
	"github.com/opensource-finance/fraudlens/internal/worker"
)

// Deps are the components the API serves. Assembler and Engine are required.
type Deps struct {
	Repository domain.Repository
	Cache      domain.Cache
	Bus        domain.EventBus
	Assembler  *assembler.Assembler
	Engine     *rules.Engine
	Metrics    *metrics.Collector

	// Worker receives async batches. Without it async requests answer 503.
	Worker *worker.Worker

	// MetricsPath mounts the Prometheus handler when non-empty.
	MetricsPath string
}

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates the router and mounts every endpoint.
func NewServer(cfg domain.ServerConfig, deps Deps, version string) *Server {
	handler := NewHandler(deps, version)
	router := chi.NewRouter()

	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(MetricsMiddleware(deps.Metrics))
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	if deps.Metrics != nil && deps.MetricsPath != "" {
		router.Method(http.MethodGet, deps.MetricsPath, deps.Metrics.Handler())
	}

	router.Group(func(r chi.Router) {
		r.Use(TenantMiddleware)

		r.Post("/explain", handler.Explain)
		r.Post("/explain/batch", handler.ExplainBatch)

		r.Get("/explanations", handler.ListExplanations)
		r.Get("/explanations/{id}", handler.GetExplanation)

		r.Post("/feedback", handler.SubmitFeedback)
		r.Get("/feedback/summary", handler.FeedbackSummary)

		r.Get("/rules", handler.ListRules)
		r.Get("/templates", handler.ListTemplates)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
