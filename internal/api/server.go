// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package api serves the conversion pipeline over HTTP. Every request runs
// its own pipeline, so concurrent requests share nothing but the oracle
// client.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/pdiddy/md2json/internal/convert"
	"github.com/pdiddy/md2json/pkg/types"
)

// Defaults for ServeConfig fields left zero.
const (
	DefaultAddr           = ":8090"
	DefaultRequestTimeout = 10 * time.Minute
	DefaultMaxBodyBytes   = 8 << 20
)

// Server is the HTTP API server for md2json.
type Server struct {
	router chi.Router
	cls    convert.Classifier
	conv   types.ConversionConfig
	cfg    types.ServeConfig
	log    *zap.Logger
}

// NewServer creates and configures the HTTP server. conv supplies the
// chunking and orphan defaults that requests may override.
func NewServer(cls convert.Classifier, conv types.ConversionConfig, cfg types.ServeConfig, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{cls: cls, conv: conv, cfg: cfg, log: log}
	s.setupRoutes()
	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.cfg.Addr
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.cfg.APIKey != "" {
			r.Use(AuthMiddleware(s.cfg.APIKey))
		}
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))

		r.Post("/v1/convert", s.handleConvert)
		r.Post("/v1/plan", s.handlePlan)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
