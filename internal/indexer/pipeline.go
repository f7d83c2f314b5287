package indexer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/civicrag/internal/apperrors"
	"github.com/hyperjump/civicrag/internal/config"
	"github.com/hyperjump/civicrag/internal/embedding"
	"github.com/hyperjump/civicrag/internal/models"
	"github.com/hyperjump/civicrag/pkg/utils"
)

const defaultBatchSize = 50

// ErrPipelineBusy is returned when Run is called while another run is in progress.
var ErrPipelineBusy = apperrors.NewConflictError("embedding pipeline is already running")

// DocumentError records one failed document.
type DocumentError struct {
	DocumentType models.DocumentType `json:"document_type"`
	DocumentID   string              `json:"document_id"`
	Error        string              `json:"error"`
}

// Report summarizes a pipeline run.
type Report struct {
	Processed int             `json:"processed"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Errors    []DocumentError `json:"errors,omitempty"`
}

// BacklogLister lists complaints that have no embedding link for a model.
type BacklogLister interface {
	ListComplaintsWithoutEmbedding(ctx context.Context, model string, limit int) ([]*models.Complaint, error)
}

// Pipeline embeds documents in chunks. Only one run may be active at a time.
type Pipeline struct {
	store      Embedder
	backlog    BacklogLister
	batchSize  int
	chunkDelay time.Duration
	limiter    *rate.Limiter
	mu         sync.Mutex
	logger     *zap.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithPipelineLogger sets the logger.
func WithPipelineLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = utils.LoggerOrNop(l) }
}

// WithLimiter overrides the limiter built from config. nil disables rate limiting.
func WithLimiter(l *rate.Limiter) PipelineOption {
	return func(p *Pipeline) { p.limiter = l }
}

// NewPipeline creates a pipeline. backlog may be nil when Backfill is not needed.
func NewPipeline(store Embedder, backlog BacklogLister, cfg config.PipelineConfig, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		store:      store,
		backlog:    backlog,
		batchSize:  cfg.BatchSize,
		chunkDelay: cfg.ChunkDelay,
		logger:     zap.NewNop(),
	}
	if p.batchSize <= 0 {
		p.batchSize = defaultBatchSize
	}
	if p.chunkDelay < 0 {
		p.chunkDelay = 0
	}
	if cfg.RequestsPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run embeds docs through the store, batchSize at a time, pausing between chunks.
// A failed document is recorded and the run continues. Cancelling ctx stops before
// the next document and returns the partial report with ctx.Err().
func (p *Pipeline) Run(ctx context.Context, docs []embedding.Document, batchSize int) (*Report, error) {
	if !p.mu.TryLock() {
		return nil, ErrPipelineBusy
	}
	defer p.mu.Unlock()

	if batchSize <= 0 {
		batchSize = p.batchSize
	}
	report := &Report{}
	start := time.Now()

	for chunkStart := 0; chunkStart < len(docs); chunkStart += batchSize {
		if chunkStart > 0 && p.chunkDelay > 0 {
			if err := sleep(ctx, p.chunkDelay); err != nil {
				return report, err
			}
		}
		end := min(chunkStart+batchSize, len(docs))
		for _, doc := range docs[chunkStart:end] {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if p.limiter != nil && !p.cached(ctx, doc) {
				if err := p.limiter.Wait(ctx); err != nil {
					return report, err
				}
			}
			report.Processed++
			if _, err := p.store.PutDocument(ctx, doc); err != nil {
				report.Failed++
				report.Errors = append(report.Errors, DocumentError{
					DocumentType: doc.Type,
					DocumentID:   doc.ID,
					Error:        err.Error(),
				})
				p.logger.Warn("pipeline document failed",
					zap.String("document_id", doc.ID), zap.Error(err))
				continue
			}
			report.Succeeded++
		}
		p.logger.Debug("pipeline chunk done",
			zap.Int("processed", report.Processed), zap.Int("total", len(docs)))
	}

	p.logger.Info("pipeline run finished",
		zap.Int("processed", report.Processed),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Duration("took", time.Since(start)))
	return report, nil
}

// Backfill embeds every complaint that has no embedding link for the store's model.
func (p *Pipeline) Backfill(ctx context.Context, batchSize int) (*Report, error) {
	if p.backlog == nil {
		return nil, apperrors.NewConfigurationError("pipeline", "no complaint backlog configured")
	}
	complaints, err := p.backlog.ListComplaintsWithoutEmbedding(ctx, p.store.Model(), 0)
	if err != nil {
		return nil, err
	}
	docs := make([]embedding.Document, len(complaints))
	for i, c := range complaints {
		docs[i] = ComplaintDocument(c)
	}
	p.logger.Info("pipeline backfill starting", zap.Int("backlog", len(docs)))
	return p.Run(ctx, docs, batchSize)
}

// cached reports whether doc's text already has an embedding, so the put costs no provider call.
func (p *Pipeline) cached(ctx context.Context, doc embedding.Document) bool {
	model := doc.Model
	if model == "" {
		model = p.store.Model()
	}
	normalized := embedding.Normalize(doc.Content)
	if normalized == "" {
		return true
	}
	_, err := p.store.Get(ctx, model, embedding.ContentHash(normalized))
	return err == nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
