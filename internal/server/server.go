// Package server exposes the query pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sadopc/bankql/internal/ambiguity"
	"github.com/sadopc/bankql/internal/config"
	"github.com/sadopc/bankql/internal/history"
	"github.com/sadopc/bankql/internal/pipeline"
	"github.com/sadopc/bankql/internal/schema"
)

// Asker runs one pipeline turn.
type Asker interface {
	Handle(ctx context.Context, text string, actx *ambiguity.Context) pipeline.Response
}

// Pinger checks database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the handlers' collaborators. History and Pinger are optional.
type Deps struct {
	Pipeline  Asker
	Corrector pipeline.Corrector
	Validator pipeline.Validator
	Catalog   *schema.Store
	History   *history.History
	Pinger    Pinger
	Logger    *slog.Logger
}

// Server serves the bankql HTTP API.
type Server struct {
	cfg        config.ServerConfig
	deps       Deps
	log        *slog.Logger
	router     chi.Router
	httpServer *http.Server
}

// New builds a Server and its router.
func New(cfg config.ServerConfig, deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	s := &Server{cfg: cfg, deps: deps, log: log}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware(s.log))
	r.Use(metricsMiddleware)
	r.Use(middleware.Recoverer)

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/ask", s.handleAsk)
		r.Post("/validate", s.handleValidate)
		r.Post("/correct", s.handleCorrect)
		r.Get("/schema", s.handleSchema)
		r.Post("/schema/reload", s.handleSchemaReload)
		r.Get("/history", s.handleHistory)
	})
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on the configured address until Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}
	s.log.Info("http server listening", "addr", s.cfg.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
