package search

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/hyperjump/civicrag/internal/apperrors"
	"github.com/hyperjump/civicrag/internal/config"
	"github.com/hyperjump/civicrag/internal/models"
	"github.com/hyperjump/civicrag/internal/ranking"
	"github.com/hyperjump/civicrag/internal/vector"
	"github.com/hyperjump/civicrag/pkg/utils"
)

const (
	reasonDeadline        = "deadline exceeded"
	reasonMetadataFailed  = "metadata retrieval failed"
	defaultQueryTimeout   = 30 * time.Second
	defaultVectorWeight   = 0.7
	defaultMetadataWeight = 0.3
)

var tracer = otel.Tracer("github.com/hyperjump/civicrag/internal/search")

// VectorSearcher is the semantic half of a hybrid search.
type VectorSearcher interface {
	SearchText(ctx context.Context, text string, q vector.VectorQuery) vector.VectorOutcome
}

// MetadataSearcher is the structured half of a hybrid search.
type MetadataSearcher interface {
	Search(ctx context.Context, query string, filters models.Filters, limit int) ([]*models.SearchResult, error)
	SearchRelaxed(ctx context.Context, query string, limit int) ([]*models.SearchResult, error)
}

// Hydrator loads the full complaint behind a ranked result.
type Hydrator interface {
	FetchByID(ctx context.Context, docType models.DocumentType, id string) (*models.Complaint, error)
}

// Engine runs hybrid (vector + metadata) search.
type Engine struct {
	vectors  VectorSearcher
	metadata MetadataSearcher
	docs     Hydrator
	ranker   *ranking.Ranker
	config   config.SearchConfig
	logger   *zap.Logger
}

// NewEngine creates a search engine. vectors may be nil when no embedding provider is configured.
func NewEngine(vectors VectorSearcher, metadata MetadataSearcher, docs Hydrator, cfg config.SearchConfig, logger *zap.Logger) *Engine {
	return &Engine{
		vectors:  vectors,
		metadata: metadata,
		docs:     docs,
		config:   cfg,
		logger:   utils.LoggerOrNop(logger),
	}
}

// WithRanker enables reranking and near-duplicate suppression after hydration. Fusion then
// keeps every candidate so reranking can promote results below the limit.
func (e *Engine) WithRanker(r *ranking.Ranker) *Engine {
	e.ranker = r
	return e
}

type vectorArrival struct {
	outcome vector.VectorOutcome
}

type metadataArrival struct {
	results []*models.SearchResult
	err     error
}

type plan struct {
	limit          int
	vectorWeight   float64
	metadataWeight float64
	threshold      float64
	timeout        time.Duration
	fallback       bool
	docType        models.DocumentType
}

func (e *Engine) plan(opts models.SearchOptions) plan {
	opts.Normalize(e.config.DefaultLimit, e.config.MaxLimit)
	// Config validation rejects two zero weights, so this only catches hand-built configs.
	vw, mw := e.config.VectorWeight, e.config.MetadataWeight
	if vw == 0 && mw == 0 {
		vw, mw = defaultVectorWeight, defaultMetadataWeight
	}
	p := plan{
		limit:          opts.Limit,
		vectorWeight:   pick(opts.VectorWeight, vw),
		metadataWeight: pick(opts.MetadataWeight, mw),
		threshold:      pick(opts.Threshold, e.config.SimilarityThreshold),
		timeout:        opts.Timeout,
		fallback:       opts.IncludeFallback,
		docType:        opts.DocumentType,
	}
	if p.timeout <= 0 {
		p.timeout = e.config.QueryTimeout
	}
	if p.timeout <= 0 {
		p.timeout = defaultQueryTimeout
	}
	return p
}

// pick returns the explicit option, otherwise the configured value. Zero is a valid setting.
func pick(explicit *float64, configured float64) float64 {
	if explicit != nil {
		return *explicit
	}
	return configured
}

// Search runs the vector and metadata retrievers concurrently, fuses their results and
// hydrates complaints. It only fails on an empty query; retriever trouble is reported
// through the response metadata.
func (e *Engine) Search(ctx context.Context, query string, filters models.Filters, opts models.SearchOptions) (*models.SearchResponse, error) {
	startTime := time.Now()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.NewValidationError("query", "must not be empty")
	}

	ctx, span := tracer.Start(ctx, "search.hybrid")
	defer span.End()

	p := e.plan(opts)
	if filters.DocumentType == "" {
		filters.DocumentType = p.docType
	}
	span.SetAttributes(
		attribute.Int("search.limit", p.limit),
		attribute.Float64("search.vector_weight", p.vectorWeight),
		attribute.Float64("search.metadata_weight", p.metadataWeight),
	)

	meta := models.SearchMetadata{Query: query, SearchMode: models.SearchModeNormal}
	vecResults, metaResults := e.retrieve(ctx, query, filters, p, &meta)
	meta.VectorResultCount = len(vecResults)
	meta.MetadataResultCount = len(metaResults)

	fuseLimit := p.limit
	if e.ranker != nil {
		fuseLimit = 0
	}

	_, fuseSpan := tracer.Start(ctx, "search.fuse")
	ranked := Combine(vecResults, metaResults, p.vectorWeight, p.metadataWeight, fuseLimit)
	fuseSpan.SetAttributes(attribute.Int("search.fused", len(ranked)))
	fuseSpan.End()

	if len(ranked) == 0 && p.fallback {
		relaxed := e.relaxed(ctx, query, p.limit)
		if len(relaxed) > 0 {
			ranked = Combine(nil, relaxed, 0, 1, fuseLimit)
			meta.MetadataResultCount += len(relaxed)
		}
		meta.SearchMode = models.SearchModeFallbackMetadataOnly
	}

	results, dropped := e.hydrate(ctx, ranked)
	meta.HydrationDropped = dropped
	if e.ranker != nil {
		results = e.rerank(ctx, query, results, p.limit)
		meta.Reranked = true
	}
	meta.TotalResults = len(results)
	meta.DurationMs = time.Since(startTime).Milliseconds()

	span.SetAttributes(
		attribute.Int("search.results", meta.TotalResults),
		attribute.String("search.mode", string(meta.SearchMode)),
		attribute.Bool("search.degraded", meta.Degraded),
	)
	if meta.Degraded {
		span.SetStatus(codes.Error, meta.DegradedReason)
	}
	return &models.SearchResponse{Results: results, Metadata: meta}, nil
}

// retrieve fans out to both retrievers under the query deadline and collects
// whatever arrives before it.
func (e *Engine) retrieve(ctx context.Context, query string, filters models.Filters, p plan, meta *models.SearchMetadata) ([]*models.SearchResult, []*models.SearchResult) {
	ctx, span := tracer.Start(ctx, "search.retrieve")
	defer span.End()

	qctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var (
		vecCh  chan vectorArrival
		metaCh chan metadataArrival
	)

	runVector := p.vectorWeight > 0
	if runVector && e.vectors == nil {
		degrade(meta, "no embedding provider configured")
		meta.SearchMode = models.SearchModeFallbackMetadataOnly
		runVector = false
	}
	if runVector {
		vc := make(chan vectorArrival, 1)
		vecCh = vc
		go func() {
			vctx, vspan := tracer.Start(qctx, "search.vector")
			defer vspan.End()
			out := e.vectors.SearchText(vctx, query, vector.VectorQuery{
				DocumentType: p.docType,
				Threshold:    p.threshold,
				Limit:        p.limit,
				Filters:      filters,
			})
			vspan.SetAttributes(attribute.Int("search.candidates", len(out.Results)))
			if out.Degraded {
				vspan.SetStatus(codes.Error, out.Reason)
			}
			vc <- vectorArrival{outcome: out}
		}()
	}
	if p.metadataWeight > 0 && e.metadata != nil {
		mc := make(chan metadataArrival, 1)
		metaCh = mc
		go func() {
			mctx, mspan := tracer.Start(qctx, "search.metadata")
			defer mspan.End()
			results, err := e.metadata.Search(mctx, query, filters, p.limit)
			if err != nil {
				mspan.RecordError(err)
				mspan.SetStatus(codes.Error, err.Error())
			}
			mspan.SetAttributes(attribute.Int("search.candidates", len(results)))
			mc <- metadataArrival{results: results, err: err}
		}()
	}

	var vecResults, metaResults []*models.SearchResult
	for vecCh != nil || metaCh != nil {
		select {
		case got := <-vecCh:
			vecCh = nil
			if got.outcome.Degraded {
				degrade(meta, got.outcome.Reason)
				meta.SearchMode = models.SearchModeFallbackMetadataOnly
				e.logger.Warn("vector retrieval degraded",
					zap.String("reason", got.outcome.Reason))
				continue
			}
			vecResults = got.outcome.Results
		case got := <-metaCh:
			metaCh = nil
			if got.err != nil {
				if errors.Is(got.err, context.DeadlineExceeded) {
					degrade(meta, reasonDeadline)
				} else {
					degrade(meta, reasonMetadataFailed)
				}
				e.logger.Warn("metadata retrieval failed", zap.Error(got.err))
				continue
			}
			metaResults = got.results
		case <-qctx.Done():
			degrade(meta, reasonDeadline)
			if vecCh != nil {
				meta.SearchMode = models.SearchModeFallbackMetadataOnly
			}
			e.logger.Warn("search deadline exceeded",
				zap.String("query", query),
				zap.Duration("timeout", p.timeout),
				zap.Bool("vector_pending", vecCh != nil),
				zap.Bool("metadata_pending", metaCh != nil))
			return vecResults, metaResults
		}
	}
	return vecResults, metaResults
}

func (e *Engine) relaxed(ctx context.Context, query string, limit int) []*models.SearchResult {
	if e.metadata == nil {
		return nil
	}
	ctx, span := tracer.Start(ctx, "search.relaxed")
	defer span.End()
	results, err := e.metadata.SearchRelaxed(ctx, query, limit)
	if err != nil {
		span.RecordError(err)
		e.logger.Warn("relaxed search failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	return results
}

// hydrate attaches complaints to complaint results. Results whose complaint is gone are dropped.
func (e *Engine) hydrate(ctx context.Context, ranked []*models.RankedResult) ([]*models.RankedResult, int) {
	if e.docs == nil {
		return ranked, 0
	}
	ctx, span := tracer.Start(ctx, "search.hydrate")
	defer span.End()

	out := make([]*models.RankedResult, 0, len(ranked))
	dropped := 0
	for _, r := range ranked {
		if r.DocumentType != models.DocumentComplaint {
			out = append(out, r)
			continue
		}
		c, err := e.docs.FetchByID(ctx, r.DocumentType, r.DocumentID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				dropped++
				continue
			}
			e.logger.Warn("hydration failed",
				zap.String("document_id", r.DocumentID), zap.Error(err))
			continue
		}
		r.Complaint = c
		out = append(out, r)
	}
	for i, r := range out {
		r.Rank = i + 1
	}
	span.SetAttributes(attribute.Int("search.hydration_dropped", dropped))
	return out, dropped
}

// rerank applies the ranker's bonuses, then drops near-duplicates down to limit.
func (e *Engine) rerank(ctx context.Context, query string, results []*models.RankedResult, limit int) []*models.RankedResult {
	_, span := tracer.Start(ctx, "search.rerank")
	defer span.End()

	before := len(results)
	results = e.ranker.ReRank(query, results)
	results = e.ranker.Diversify(results, limit)
	for i, r := range results {
		r.Rank = i + 1
	}
	span.SetAttributes(
		attribute.Int("search.rerank_candidates", before),
		attribute.Int("search.rerank_kept", len(results)),
	)
	return results
}

// degrade marks the response degraded, keeping the first reason.
func degrade(meta *models.SearchMetadata, reason string) {
	meta.Degraded = true
	if meta.DegradedReason == "" {
		meta.DegradedReason = reason
	}
}
