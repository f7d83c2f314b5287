// Package metadata implements the structured retriever: hard filters in SQL, then field-weighted
// relevance over the surviving complaints.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/hyperjump/civicrag/internal/apperrors"
	"github.com/hyperjump/civicrag/internal/keyword"
	"github.com/hyperjump/civicrag/internal/models"
	"github.com/hyperjump/civicrag/internal/ranking"
	"github.com/hyperjump/civicrag/pkg/utils"
)

const snippetLength = 240

// ComplaintFinder is the slice of storage.ComplaintStore the retriever reads.
type ComplaintFinder interface {
	GetComplaint(ctx context.Context, id string) (*models.Complaint, error)
	FindComplaints(ctx context.Context, filters models.Filters, limit int) ([]*models.Complaint, error)
	FindComplaintsMatching(ctx context.Context, filters models.Filters, terms []string, limit int) ([]*models.Complaint, error)
}

// Retriever scores complaints by field matches against the query.
type Retriever struct {
	store             ComplaintFinder
	keywords          keyword.KeywordIndex
	analyzer          *ranking.QueryAnalyzer
	scorer            *ranking.FieldScorer
	candidates        int
	relaxedCandidates int
	logger            *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithKeywordIndex enables bleve-backed relaxed search.
func WithKeywordIndex(idx keyword.KeywordIndex) Option {
	return func(r *Retriever) { r.keywords = idx }
}

// WithCandidates bounds how many filtered complaints are scored per query.
func WithCandidates(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.candidates = n
		}
	}
}

// WithRelaxedCandidates bounds how many complaints the relaxed search considers.
func WithRelaxedCandidates(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.relaxedCandidates = n
		}
	}
}

// WithFieldWeights overrides the field weights.
func WithFieldWeights(w ranking.FieldWeights) Option {
	return func(r *Retriever) { r.scorer = ranking.NewFieldScorer(w) }
}

// WithLogger sets the retriever logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) { r.logger = utils.LoggerOrNop(l) }
}

// NewRetriever creates a metadata retriever over store.
func NewRetriever(store ComplaintFinder, opts ...Option) *Retriever {
	r := &Retriever{
		store:             store,
		analyzer:          ranking.NewQueryAnalyzer(),
		scorer:            ranking.NewFieldScorer(ranking.DefaultFieldWeights()),
		candidates:        1000,
		relaxedCandidates: 200,
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Search returns complaints passing every filter with non-zero relevance to query, ordered by
// relevance, then most recent, then id.
func (r *Retriever) Search(ctx context.Context, query string, filters models.Filters, limit int) ([]*models.SearchResult, error) {
	if filters.DocumentType != "" && filters.DocumentType != models.DocumentComplaint {
		return nil, nil
	}
	q := r.analyzer.Analyze(query)
	if q.IsEmpty() {
		return nil, nil
	}
	complaints, err := r.store.FindComplaintsMatching(ctx, filters, candidateTerms(q), r.candidates)
	if err != nil {
		return nil, fmt.Errorf("metadata candidates: %w", err)
	}
	return r.rank(q, complaints, limit), nil
}

// candidateTerms returns the words the SQL prefilter matches on. They are the alphanumeric runs of
// every match token: a field containing a token contains each of its runs, and no run spans the
// separators Location and organizationText join columns with. A token without runs disables the
// prefilter.
func candidateTerms(q *ranking.AnalyzedQuery) []string {
	var terms []string
	seen := make(map[string]bool)
	for _, tok := range q.MatchTokens() {
		runs := strings.FieldsFunc(tok, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len(runs) == 0 {
			return nil
		}
		// The longest run is the most selective and still implied by the token.
		best := runs[0]
		for _, run := range runs[1:] {
			if len(run) > len(best) {
				best = run
			}
		}
		// SQLite LOWER only folds ASCII.
		for _, r := range best {
			if r > unicode.MaxASCII {
				return nil
			}
		}
		if !seen[best] {
			seen[best] = true
			terms = append(terms, best)
		}
	}
	return terms
}

// SearchRelaxed ignores all filters and matches the query with typo tolerance and domain
// synonyms. Scores are normalized by the best hit so they land in [0,1].
func (r *Retriever) SearchRelaxed(ctx context.Context, query string, limit int) ([]*models.SearchResult, error) {
	q := r.analyzer.Analyze(query)
	if q.IsEmpty() {
		return nil, nil
	}
	if r.keywords != nil {
		results, err := r.searchKeyword(ctx, q, limit)
		if err == nil {
			return results, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn("keyword search failed, falling back to field scoring", zap.Error(err))
	}

	complaints, err := r.store.FindComplaints(ctx, models.Filters{}, r.relaxedCandidates)
	if err != nil {
		return nil, fmt.Errorf("relaxed candidates: %w", err)
	}
	results := r.rank(q.Expanded(), complaints, limit)
	normalizeByMax(results)
	return results, nil
}

func (r *Retriever) searchKeyword(ctx context.Context, q *ranking.AnalyzedQuery, limit int) ([]*models.SearchResult, error) {
	text := strings.Join(append(append([]string{}, q.Terms...), q.Phrases...), " ")
	if text == "" {
		text = q.Normalized
	}
	hits, err := r.keywords.Search(ctx, text, r.relaxedCandidates, &keyword.SearchOptions{
		FuzzyEnabled: true,
		ExtraTerms:   q.Expansions,
	})
	if err != nil {
		return nil, err
	}

	results := make([]*models.SearchResult, 0, len(hits))
	for _, hit := range hits {
		c, err := r.store.GetComplaint(ctx, hit.ID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("load keyword hit %s: %w", hit.ID, err)
		}
		results = append(results, toResult(c, hit.Score))
	}
	normalizeByMax(results)
	sortResults(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (r *Retriever) rank(q *ranking.AnalyzedQuery, complaints []*models.Complaint, limit int) []*models.SearchResult {
	results := make([]*models.SearchResult, 0, len(complaints))
	for _, c := range complaints {
		score := r.scorer.Score(q, c)
		if score.Value <= 0 {
			continue
		}
		results = append(results, toResult(c, score.Value))
	}
	sortResults(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func toResult(c *models.Complaint, score float64) *models.SearchResult {
	return &models.SearchResult{
		DocumentType: models.DocumentComplaint,
		DocumentID:   c.ID,
		Content:      utils.Truncate(snippet(c), snippetLength),
		SourceScore:  score,
		Sources:      []models.Source{models.SourceMetadata},
		Origin:       c.Metadata(),
		DocumentTime: c.SubmittedAt,
	}
}

func snippet(c *models.Complaint) string {
	if c.Descriptor == "" {
		return c.ComplaintType
	}
	return c.ComplaintType + ": " + c.Descriptor
}

func sortResults(results []*models.SearchResult) {
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
}

// normalizeByMax rescales scores so the best result scores 1.
func normalizeByMax(results []*models.SearchResult) {
	var best float64
	for _, r := range results {
		if r.SourceScore > best {
			best = r.SourceScore
		}
	}
	if best <= 0 {
		return
	}
	for _, r := range results {
		r.SourceScore = utils.Clamp01(r.SourceScore / best)
	}
}
