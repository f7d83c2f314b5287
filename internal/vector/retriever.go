package vector

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/civicrag/internal/apperrors"
	"github.com/hyperjump/civicrag/internal/models"
	"github.com/hyperjump/civicrag/pkg/utils"
)

const snippetLength = 240

// QueryEmbedder embeds query text. *embedding.CachedProvider satisfies it.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// LinkRepository resolves content hashes to the documents that share them.
type LinkRepository interface {
	GetEmbedding(ctx context.Context, model, contentHash string) (*models.EmbeddingRecord, error)
	DocumentsForHashes(ctx context.Context, model string, hashes []string) (map[string][]models.DocumentRef, error)
}

// VectorQuery bounds a vector search.
type VectorQuery struct {
	DocumentType models.DocumentType
	Threshold    float64
	Limit        int
	Filters      models.Filters
}

// VectorOutcome is the result of a text query. Degraded is set when the query could not be
// embedded or the index failed; Results is then empty.
type VectorOutcome struct {
	Results  []*models.SearchResult
	Degraded bool
	Reason   string
}

// Retriever finds documents whose embeddings are similar to a query.
type Retriever struct {
	index    VectorIndex
	links    LinkRepository
	embedder QueryEmbedder
	model    string
	topK     int
	logger   *zap.Logger
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithTopK sets how many index candidates are considered before threshold and filters.
func WithTopK(k int) RetrieverOption {
	return func(r *Retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithModel sets the embedding model whose links are searched. Defaults to the embedder's model.
func WithModel(model string) RetrieverOption {
	return func(r *Retriever) { r.model = model }
}

// WithLogger sets the retriever logger.
func WithLogger(l *zap.Logger) RetrieverOption {
	return func(r *Retriever) { r.logger = utils.LoggerOrNop(l) }
}

// NewRetriever creates a Retriever over index. embedder may be nil when only Search is used.
func NewRetriever(index VectorIndex, links LinkRepository, embedder QueryEmbedder, opts ...RetrieverOption) *Retriever {
	r := &Retriever{index: index, links: links, embedder: embedder, topK: 100, logger: zap.NewNop()}
	if embedder != nil {
		r.model = embedder.Model()
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Search returns documents linked to vectors similar to queryVector. Candidates below the
// threshold or failing the filters are dropped. Results are ordered by similarity, then most
// recent document, then id.
func (r *Retriever) Search(ctx context.Context, queryVector []float32, q VectorQuery) ([]*models.SearchResult, error) {
	k := r.topK
	if q.Limit > k {
		k = q.Limit
	}
	hits, err := r.index.Search(ctx, queryVector, k)
	if err != nil {
		return nil, fmt.Errorf("vector index search: %w", err)
	}

	scores := make(map[string]float64, len(hits))
	hashes := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.Score < q.Threshold {
			continue
		}
		if _, seen := scores[h.ID]; seen {
			continue
		}
		scores[h.ID] = h.Score
		hashes = append(hashes, h.ID)
	}
	if len(hashes) == 0 {
		return nil, nil
	}

	model := r.model
	docs, err := r.links.DocumentsForHashes(ctx, model, hashes)
	if err != nil {
		return nil, fmt.Errorf("resolve linked documents: %w", err)
	}

	docType := q.DocumentType
	if q.Filters.DocumentType != "" {
		docType = q.Filters.DocumentType
	}

	var results []*models.SearchResult
	snippets := make(map[string]string)
	for _, hash := range hashes {
		for _, ref := range docs[hash] {
			if docType != "" && ref.DocumentType != docType {
				continue
			}
			if !q.Filters.Matches(ref.Metadata) {
				continue
			}
			snippet, ok := snippets[hash]
			if !ok {
				snippet = r.snippet(ctx, model, hash)
				snippets[hash] = snippet
			}
			results = append(results, &models.SearchResult{
				DocumentType: ref.DocumentType,
				DocumentID:   ref.DocumentID,
				Content:      snippet,
				SourceScore:  scores[hash],
				Sources:      []models.Source{models.SourceVector},
				Origin:       ref.Metadata,
				DocumentTime: ref.DocumentTime,
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.SourceScore != b.SourceScore {
			return a.SourceScore > b.SourceScore
		}
		if !a.DocumentTime.Equal(b.DocumentTime) {
			return a.DocumentTime.After(b.DocumentTime)
		}
		return a.DocumentID < b.DocumentID
	})
	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

// SearchText embeds text and searches. It never returns an error: any failure is reported as a
// degraded outcome so callers can continue with other retrievers.
func (r *Retriever) SearchText(ctx context.Context, text string, q VectorQuery) VectorOutcome {
	if r.embedder == nil {
		return VectorOutcome{Degraded: true, Reason: "no embedding provider configured"}
	}
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		reason := "embedding failed"
		switch {
		case errors.Is(err, apperrors.ErrProviderUnavailable):
			reason = "embedding provider unavailable"
		case errors.Is(err, apperrors.ErrMalformedResponse):
			reason = "embedding provider returned a malformed response"
		case errors.Is(err, context.DeadlineExceeded):
			reason = "deadline exceeded"
		}
		r.logger.Warn("vector search degraded", zap.String("reason", reason), zap.Error(err))
		return VectorOutcome{Degraded: true, Reason: reason}
	}
	results, err := r.Search(ctx, vec, q)
	if err != nil {
		r.logger.Warn("vector search degraded", zap.Error(err))
		return VectorOutcome{Degraded: true, Reason: "vector index unavailable"}
	}
	return VectorOutcome{Results: results}
}

func (r *Retriever) snippet(ctx context.Context, model, hash string) string {
	rec, err := r.links.GetEmbedding(ctx, model, hash)
	if err != nil {
		return ""
	}
	return utils.Truncate(rec.Content, snippetLength)
}
