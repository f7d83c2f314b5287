package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/civicrag/internal/apperrors"
	"github.com/hyperjump/civicrag/internal/assistant"
	"github.com/hyperjump/civicrag/internal/models"
	"github.com/hyperjump/civicrag/internal/storage"
)

type searchRequest struct {
	Query   string               `json:"query"`
	Filters models.Filters       `json:"filters"`
	Options models.SearchOptions `json:"options"`
}

type intentRequest struct {
	Query string `json:"query"`
}

type askRequest struct {
	Question string               `json:"question"`
	Options  assistant.AskOptions `json:"options"`
}

type backfillRequest struct {
	BatchSize int `json:"batch_size"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("limit", req.Options.Limit))
	response, err := s.deps.Engine.Search(r.Context(), req.Query, req.Filters, req.Options)
	if err != nil {
		s.fail(w, "search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleIntent(w http.ResponseWriter, r *http.Request) {
	var req intentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	s.respondJSON(w, http.StatusOK, s.deps.Classifier.Classify(r.Context(), req.Query))
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("ask request", zap.String("question", req.Question))
	response, err := s.deps.Assistant.Ask(r.Context(), req.Question, req.Options)
	if err != nil {
		s.fail(w, "ask failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleIndexComplaint(w http.ResponseWriter, r *http.Request) {
	var c models.Complaint
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("index complaint request", zap.String("id", c.ID), zap.String("complaint_type", c.ComplaintType))
	err := s.deps.Indexer.IndexComplaint(r.Context(), &c)
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusCreated, map[string]string{"id": c.ID, "status": "indexed"})
	case errors.Is(err, apperrors.ErrProviderUnavailable), errors.Is(err, apperrors.ErrMalformedResponse):
		// Stored and keyword-indexed; the embedding is left to the next backfill.
		s.logger.Warn("complaint stored without embedding", zap.String("id", c.ID), zap.Error(err))
		s.respondJSON(w, http.StatusAccepted, map[string]string{"id": c.ID, "status": "embedding_pending"})
	default:
		s.fail(w, "indexing failed", err)
	}
}

func (s *Server) handleGetComplaint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := s.deps.Storage.GetComplaint(r.Context(), id)
	if err != nil {
		s.fail(w, "get complaint failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteComplaint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete complaint request", zap.String("id", id))
	if err := s.deps.Indexer.DeleteComplaint(r.Context(), id); err != nil {
		s.fail(w, "deletion failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	var req backfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	report, err := s.deps.Pipeline.Backfill(r.Context(), req.BatchSize)
	if err != nil {
		s.fail(w, "backfill failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Complaints      int64                  `json:"complaints"`
	Embeddings      storage.EmbeddingStats `json:"embeddings"`
	KeywordDocs     uint64                 `json:"keyword_documents"`
	VectorIndexSize int                    `json:"vector_index_size"`
	Cache           any                    `json:"embedding_cache,omitempty"`
	DiskUsageBytes  *int64                 `json:"disk_usage_bytes,omitempty"`
	DiskUsage       map[string]int64       `json:"disk_usage,omitempty"`
	Config          map[string]interface{} `json:"config,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var resp statusResponse
	g, ctx := errgroup.WithContext(r.Context())

	g.Go(func() error {
		n, err := s.deps.Storage.CountAllComplaints(ctx)
		resp.Complaints = n
		return err
	})
	g.Go(func() error {
		stats, err := s.deps.Storage.EmbeddingStats(ctx)
		resp.Embeddings = stats
		return err
	})
	if s.deps.Keywords != nil {
		g.Go(func() error {
			n, err := s.deps.Keywords.DocCount()
			resp.KeywordDocs = n
			return err
		})
	}
	if s.deps.Vectors != nil {
		g.Go(func() error {
			resp.VectorIndexSize = s.deps.Vectors.Size()
			return nil
		})
	}
	if s.config != nil {
		g.Go(func() error {
			sizes, total, err := storage.DiskUsage(map[string]string{
				"database":      s.config.Storage.DatabasePath,
				"keyword_index": s.config.Storage.KeywordIndexPath,
				"vector_index":  s.config.Vector.IndexPath,
			})
			if err != nil {
				s.logger.Warn("status: disk usage failed", zap.Error(err))
				return nil
			}
			resp.DiskUsage = sizes
			resp.DiskUsageBytes = &total
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.fail(w, "status failed", err)
		return
	}

	if s.deps.Embeddings != nil {
		resp.Cache = s.deps.Embeddings.Stats()
	}
	if s.config != nil {
		resp.Config = map[string]interface{}{
			"embedding_provider":   s.config.Embedding.Provider,
			"embedding_model":      s.config.Embedding.Model,
			"embedding_dimensions": s.config.Embedding.Dimensions,
			"classifier_provider":  s.config.Classifier.Provider,
			"vector_index_type":    s.config.Vector.IndexType,
			"vector_weight":        s.config.Search.VectorWeight,
			"metadata_weight":      s.config.Search.MetadataWeight,
			"similarity_threshold": s.config.Search.SimilarityThreshold,
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// fail maps typed errors to a status code and logs server-side failures.
func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
