package ranking

import (
	"sort"
	"strings"
	"time"

	"github.com/hyperjump/civicrag/internal/models"
)

// Ranker reranks fused results with bonuses and multipliers, then drops near-duplicates.
type Ranker struct {
	config      *RerankConfig
	analyzer    *QueryAnalyzer
	multipliers []Multiplier
	now         func() time.Time
}

// NewRanker creates a new Ranker with the given configuration.
func NewRanker(config *RerankConfig) *Ranker {
	if config == nil {
		defaults := DefaultRerankConfig()
		config = &defaults
	}

	return &Ranker{
		config:      config,
		analyzer:    NewQueryAnalyzer(),
		multipliers: DefaultMultipliers(config),
		now:         time.Now,
	}
}

// WithMultipliers sets custom multipliers.
func (r *Ranker) WithMultipliers(multipliers []Multiplier) *Ranker {
	r.multipliers = multipliers
	return r
}

// WithClock sets the reference time for recency.
func (r *Ranker) WithClock(now func() time.Time) *Ranker {
	if now != nil {
		r.now = now
	}
	return r
}

// AnalyzeQuery parses and analyzes a query string.
func (r *Ranker) AnalyzeQuery(query string) *AnalyzedQuery {
	return r.analyzer.Analyze(query)
}

// Rank returns the reranked score of one fused result.
func (r *Ranker) Rank(query *AnalyzedQuery, result *models.RankedResult) float64 {
	ctx := NewScoringContext(query, result, r.now())
	return ApplyMultipliers(ctx, result.CombinedScore, r.multipliers)
}

// RankWithBreakdown returns detailed reranking information for one fused result.
func (r *Ranker) RankWithBreakdown(query *AnalyzedQuery, result *models.RankedResult) *ScoreBreakdown {
	ctx := NewScoringContext(query, result, r.now())
	return ApplyMultipliersWithDetails(ctx, result.CombinedScore, r.multipliers)
}

// ReRank rescores results in place and sorts them by the new score. Ties keep their fused
// order.
func (r *Ranker) ReRank(query string, results []*models.RankedResult) []*models.RankedResult {
	analyzed := r.AnalyzeQuery(query)

	for _, result := range results {
		score := r.Rank(analyzed, result)
		result.RerankAdjustment = score - result.CombinedScore
		result.CombinedScore = score
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CombinedScore > results[j].CombinedScore
	})

	for i := range results {
		results[i].Rank = i + 1
	}

	return results
}

// Diversify keeps the first result and every later one that is not a near-duplicate of a kept
// result, stopping at limit. Two complaints are near-duplicates when they share complaint type
// and borough and the Jaccard overlap of their content words exceeds the diversity threshold.
// A limit of zero or less keeps everything that survives.
func (r *Ranker) Diversify(results []*models.RankedResult, limit int) []*models.RankedResult {
	if !r.config.Diversity {
		return TopN(results, limit)
	}
	if len(results) <= 1 {
		return results
	}

	kept := make([]*models.RankedResult, 0, len(results))
	words := make([]map[string]struct{}, 0, len(results))
	for _, result := range results {
		w := wordSet(result.Content)
		duplicate := false
		for i, k := range kept {
			if r.similar(result, k, w, words[i]) {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}
		kept = append(kept, result)
		words = append(words, w)
		if limit > 0 && len(kept) >= limit {
			break
		}
	}

	for i := range kept {
		kept[i].Rank = i + 1
	}
	return kept
}

func (r *Ranker) similar(a, b *models.RankedResult, wa, wb map[string]struct{}) bool {
	typeA, boroughA := groupingOf(a)
	typeB, boroughB := groupingOf(b)
	if !strings.EqualFold(typeA, typeB) || !strings.EqualFold(boroughA, boroughB) {
		return false
	}
	return Jaccard(wa, wb) > r.config.DiversityThreshold
}

// groupingOf returns the complaint type and borough, from the hydrated complaint when present.
func groupingOf(r *models.RankedResult) (string, string) {
	if r.Complaint != nil {
		return r.Complaint.ComplaintType, r.Complaint.Borough
	}
	return r.Origin[models.MetaComplaintType], r.Origin[models.MetaBorough]
}

func wordSet(text string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Jaccard returns |a∩b| / |a∪b|, or 0 when either set is empty.
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	overlap := 0
	for w := range a {
		if _, ok := b[w]; ok {
			overlap++
		}
	}
	union := len(a) + len(b) - overlap
	return float64(overlap) / float64(union)
}

// GetConfig returns the rerank configuration.
func (r *Ranker) GetConfig() *RerankConfig {
	return r.config
}

// TopN returns the top N results. N of zero or less returns everything.
func TopN(results []*models.RankedResult, n int) []*models.RankedResult {
	if n <= 0 || n >= len(results) {
		return results
	}
	return results[:n]
}
