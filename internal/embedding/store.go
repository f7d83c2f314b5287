package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hyperjump/civicrag/internal/apperrors"
	"github.com/hyperjump/civicrag/internal/models"
	"github.com/hyperjump/civicrag/internal/storage"
	"github.com/hyperjump/civicrag/pkg/utils"
)

const (
	rebuildBatchSize     = 256
	defaultFlightTimeout = 30 * time.Second
)

// IndexWriter receives vectors for newly stored embeddings, keyed by content hash.
type IndexWriter interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
}

// Document is one piece of text to embed on behalf of a document.
type Document struct {
	Type     models.DocumentType
	ID       string
	Content  string
	Model    string
	Metadata map[string]string
	Time     time.Time
}

// Stats counts store activity since construction.
type Stats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	ProviderCalls int64 `json:"provider_calls"`
}

// Store is the content-addressable embedding cache. Identical normalized text under the same
// model is embedded once and shared by every document that links to it.
type Store struct {
	repo     storage.EmbeddingRepository
	provider Provider
	index    IndexWriter
	onCreate func(context.Context, *models.EmbeddingRecord)
	logger   *zap.Logger
	group    singleflight.Group
	// flightTimeout bounds a shared provider call, which outlives any single caller's context.
	flightTimeout time.Duration

	hits          atomic.Int64
	misses        atomic.Int64
	providerCalls atomic.Int64
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithIndex adds new vectors to idx as they are stored.
func WithIndex(idx IndexWriter) StoreOption {
	return func(s *Store) { s.index = idx }
}

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) { s.logger = utils.LoggerOrNop(l) }
}

// WithOnCreate registers fn to run after a new embedding row is written.
func WithOnCreate(fn func(context.Context, *models.EmbeddingRecord)) StoreOption {
	return func(s *Store) { s.onCreate = fn }
}

// WithFlightTimeout bounds how long a shared embedding miss may run.
func WithFlightTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.flightTimeout = d
		}
	}
}

// NewStore creates a Store over repo that embeds misses with provider.
func NewStore(repo storage.EmbeddingRepository, provider Provider, opts ...StoreOption) *Store {
	s := &Store{repo: repo, provider: provider, logger: zap.NewNop(), flightTimeout: defaultFlightTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Model returns the model the store embeds with.
func (s *Store) Model() string { return s.provider.Model() }

// Put embeds content for (docType, docID). See PutDocument.
func (s *Store) Put(ctx context.Context, docType models.DocumentType, docID, content, model string) (*models.EmbeddingRecord, error) {
	return s.PutDocument(ctx, Document{Type: docType, ID: docID, Content: content, Model: model})
}

// PutDocument returns the embedding for doc.Content, calling the provider only when no record
// exists for the normalized text. Provider failures write nothing.
func (s *Store) PutDocument(ctx context.Context, doc Document) (*models.EmbeddingRecord, error) {
	model := doc.Model
	if model == "" {
		model = s.provider.Model()
	}
	if model != s.provider.Model() {
		return nil, apperrors.NewValidationError("model",
			fmt.Sprintf("model %q is not served by provider model %q", model, s.provider.Model()))
	}
	if doc.ID == "" {
		return nil, apperrors.NewValidationError("document_id", "document id is required")
	}
	if doc.Type == "" {
		doc.Type = models.DocumentComplaint
	}

	normalized := Normalize(doc.Content)
	if normalized == "" {
		return nil, apperrors.NewValidationError("content", "content is empty")
	}
	hash := ContentHash(normalized)

	rec, err := s.repo.GetEmbedding(ctx, model, hash)
	switch {
	case err == nil:
		s.hits.Add(1)
	case errors.Is(err, apperrors.ErrNotFound):
		s.misses.Add(1)
		rec, err = s.create(ctx, doc, model, hash)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("failed to look up embedding: %w", err)
	}

	ref := models.DocumentRef{
		DocumentType: doc.Type,
		DocumentID:   doc.ID,
		Model:        model,
		ContentHash:  hash,
		Metadata:     doc.Metadata,
		DocumentTime: doc.Time,
	}
	if err := s.repo.LinkDocument(ctx, ref); err != nil {
		return nil, err
	}
	return rec, nil
}

// create embeds a miss. Concurrent misses for the same (model, hash) share one provider call.
// The shared call runs on a context detached from any one caller and bounded by flightTimeout,
// so a caller that gives up does not fail the others waiting on the same flight.
func (s *Store) create(ctx context.Context, doc Document, model, hash string) (*models.EmbeddingRecord, error) {
	ch := s.group.DoChan(model+"\x00"+hash, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.flightTimeout)
		defer cancel()

		// Another caller may have finished between our lookup and acquiring the flight.
		if rec, err := s.repo.GetEmbedding(ctx, model, hash); err == nil {
			return rec, nil
		}

		content := strings.TrimSpace(doc.Content)
		s.providerCalls.Add(1)
		vec, err := s.provider.Embed(ctx, content)
		if err != nil {
			return nil, classifyProviderError(model, err)
		}
		if len(vec) == 0 || len(vec) != s.provider.Dimensions() {
			return nil, apperrors.NewMalformedResponse(model,
				fmt.Sprintf("embedding has %d dimensions, want %d", len(vec), s.provider.Dimensions()), nil)
		}
		if !utils.AllFinite(vec) {
			return nil, apperrors.NewMalformedResponse(model, "embedding contains non-finite values", nil)
		}

		rec := &models.EmbeddingRecord{
			DocumentType: doc.Type,
			DocumentID:   doc.ID,
			ContentHash:  hash,
			Content:      content,
			Vector:       vec,
			Model:        model,
			Metadata:     doc.Metadata,
			CreatedAt:    time.Now().UTC(),
		}
		inserted, err := s.repo.InsertEmbedding(ctx, rec)
		if err != nil {
			return nil, err
		}
		canonical, err := s.repo.GetEmbedding(ctx, model, hash)
		if err != nil {
			return nil, fmt.Errorf("failed to read back embedding: %w", err)
		}
		if inserted {
			s.addToIndex(ctx, canonical)
			if s.onCreate != nil {
				s.onCreate(ctx, canonical)
			}
		}
		return canonical, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.EmbeddingRecord), nil
	}
}

func (s *Store) addToIndex(ctx context.Context, rec *models.EmbeddingRecord) {
	if s.index == nil {
		return
	}
	if err := s.index.Add(ctx, []string{rec.ContentHash}, [][]float32{rec.Vector}); err != nil {
		s.logger.Warn("failed to add embedding to vector index",
			zap.String("content_hash", rec.ContentHash), zap.Error(err))
	}
}

// Get returns the record for (model, hash), or apperrors.ErrNotFound.
func (s *Store) Get(ctx context.Context, model, hash string) (*models.EmbeddingRecord, error) {
	if model == "" {
		model = s.provider.Model()
	}
	return s.repo.GetEmbedding(ctx, model, hash)
}

// RebuildIndex loads every stored vector for the provider's model into the index.
func (s *Store) RebuildIndex(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, nil
	}
	var (
		ids     []string
		vectors [][]float32
		total   int
	)
	flush := func() error {
		if len(ids) == 0 {
			return nil
		}
		if err := s.index.Add(ctx, ids, vectors); err != nil {
			return fmt.Errorf("failed to add to vector index: %w", err)
		}
		total += len(ids)
		ids, vectors = ids[:0], vectors[:0]
		return nil
	}
	err := s.repo.ListEmbeddings(ctx, s.provider.Model(), func(rec *models.EmbeddingRecord) error {
		ids = append(ids, rec.ContentHash)
		vectors = append(vectors, rec.Vector)
		if len(ids) >= rebuildBatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return total, err
	}
	if err := flush(); err != nil {
		return total, err
	}
	s.logger.Info("vector index rebuilt", zap.Int("vectors", total), zap.String("model", s.provider.Model()))
	return total, nil
}

// Stats returns the activity counters.
func (s *Store) Stats() Stats {
	return Stats{
		Hits:          s.hits.Load(),
		Misses:        s.misses.Load(),
		ProviderCalls: s.providerCalls.Load(),
	}
}
