// Package server exposes the analysis pipeline over HTTP.
//
// Routes:
//
//	POST /v1/analyze    CSV export in, fitness summary out
//	POST /v1/forecast   CSV export in, score forecast out
//	POST /v1/normalize  CSV export in, normalized runs table out
//	GET  /healthz
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/lucasjlepore/vdot-analyzer/forecast"
	"github.com/lucasjlepore/vdot-analyzer/pipeline"
	"github.com/lucasjlepore/vdot-analyzer/store"
)

// DefaultMaxUploadBytes bounds request bodies when Options leaves it unset.
const DefaultMaxUploadBytes = 32 << 20

// Options wires the server's dependencies.
type Options struct {
	Logger         *slog.Logger
	Pipeline       pipeline.Config
	Model          forecast.Model
	MaxUploadBytes int64
	// Store receives analyzed runs and snapshots; nil disables publishing.
	Store store.Sink
	Now   func() time.Time
}

// Server holds the router and the shared analysis settings.
type Server struct {
	logger    *slog.Logger
	cfg       pipeline.Config
	model     forecast.Model
	maxUpload int64
	sink      store.Sink
	now       func() time.Time
	validate  *validator.Validate
	router    *chi.Mux
}

// New builds a server with its routes mounted.
func New(opts Options) *Server {
	s := &Server{
		logger:    opts.Logger,
		cfg:       opts.Pipeline,
		model:     opts.Model,
		maxUpload: opts.MaxUploadBytes,
		sink:      opts.Store,
		now:       opts.Now,
		validate:  validator.New(),
		router:    chi.NewRouter(),
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if len(s.cfg.Windows) == 0 {
		s.cfg = pipeline.DefaultConfig()
	}
	if s.model == "" {
		s.model = forecast.ModelBlended
	}
	if s.maxUpload <= 0 {
		s.maxUpload = DefaultMaxUploadBytes
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.mountRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) mountRoutes() {
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.logger))
	s.router.Use(s.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/forecast", s.handleForecast)
		r.Post("/normalize", s.handleNormalize)
	})
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		JSON(w, r, http.StatusNotFound, APIErrorResponse{Error: ErrorDetail{
			Code:      "not_found",
			Message:   "no route for " + r.Method + " " + r.URL.Path,
			RequestID: RequestIDFrom(r.Context()),
		}})
	})
}
