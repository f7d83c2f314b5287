// Package server provides the HTTP API for civicrag.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/civicrag/internal/assistant"
	"github.com/hyperjump/civicrag/internal/config"
	"github.com/hyperjump/civicrag/internal/embedding"
	"github.com/hyperjump/civicrag/internal/indexer"
	"github.com/hyperjump/civicrag/internal/keyword"
	"github.com/hyperjump/civicrag/internal/search"
	"github.com/hyperjump/civicrag/internal/storage"
	"github.com/hyperjump/civicrag/internal/vector"
	"github.com/hyperjump/civicrag/pkg/utils"
)

// Backfiller runs the embedding backlog. *indexer.Pipeline implements it.
type Backfiller interface {
	Backfill(ctx context.Context, batchSize int) (*indexer.Report, error)
}

// Deps are the services the API serves. Embeddings, Keywords and Vectors are
// only used for the status report and may be nil.
type Deps struct {
	Engine     *search.Engine
	Assistant  *assistant.Assistant
	Classifier assistant.Classifier
	Indexer    *indexer.Indexer
	Pipeline   Backfiller
	Storage    storage.Storage
	Embeddings *embedding.Store
	Keywords   keyword.KeywordIndex
	Vectors    vector.VectorIndex
}

// Server is the HTTP server for the civicrag API.
type Server struct {
	deps   Deps
	config *config.Config
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(deps Deps, cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		deps:   deps,
		config: cfg,
		logger: utils.LoggerOrNop(logger),
	}
}

// Handler returns the routed, instrumented API handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/intent", s.handleIntent)
		r.Post("/ask", s.handleAsk)
		r.Post("/complaints", s.handleIndexComplaint)
		r.Get("/complaints/{id}", s.handleGetComplaint)
		r.Delete("/complaints/{id}", s.handleDeleteComplaint)
		r.Post("/embeddings/backfill", s.handleBackfill)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)

	return otelhttp.NewHandler(r, "civicrag.api")
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
