// Package search provides hybrid search (vector + metadata) and result fusion.
package search

import (
	"sort"

	"github.com/hyperjump/civicrag/internal/models"
)

// Combine merges vector and metadata candidates into one ranked list.
//
// Vector results seed the list with score*vectorWeight. A metadata result for a
// document already present adds score*metadataWeight to it; otherwise it is
// appended. The sort is stable, so equal scores keep insertion order. A limit
// of zero or less returns everything. Negative weights count as 0.
func Combine(vectorResults, metadataResults []*models.SearchResult, vectorWeight, metadataWeight float64, limit int) []*models.RankedResult {
	vectorWeight = nonNegative(vectorWeight)
	metadataWeight = nonNegative(metadataWeight)

	byKey := make(map[models.DocumentKey]*models.RankedResult, len(vectorResults)+len(metadataResults))
	ordered := make([]*models.RankedResult, 0, len(vectorResults)+len(metadataResults))

	fold := func(r *models.SearchResult, weight float64, source models.Source) {
		if r == nil {
			return
		}
		key := r.Key()
		if existing, ok := byKey[key]; ok {
			existing.CombinedScore += r.SourceScore * weight
			addScore(existing, source, r.SourceScore)
			if !existing.HasSource(source) {
				existing.Sources = append(existing.Sources, source)
			}
			if existing.Content == "" {
				existing.Content = r.Content
			}
			if existing.Origin == nil {
				existing.Origin = r.Origin
			}
			return
		}
		ranked := &models.RankedResult{
			DocumentType:  r.DocumentType,
			DocumentID:    r.DocumentID,
			Content:       r.Content,
			CombinedScore: r.SourceScore * weight,
			Sources:       []models.Source{source},
			Origin:        r.Origin,
		}
		addScore(ranked, source, r.SourceScore)
		byKey[key] = ranked
		ordered = append(ordered, ranked)
	}

	for _, r := range vectorResults {
		fold(r, vectorWeight, models.SourceVector)
	}
	for _, r := range metadataResults {
		fold(r, metadataWeight, models.SourceMetadata)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CombinedScore > ordered[j].CombinedScore
	})
	if limit > 0 && len(ordered) > limit {
		ordered = ordered[:limit]
	}
	for i, r := range ordered {
		r.Rank = i + 1
	}
	return ordered
}

// addScore keeps the best per-source score seen for a document.
func addScore(r *models.RankedResult, source models.Source, score float64) {
	switch source {
	case models.SourceVector:
		if score > r.VectorScore {
			r.VectorScore = score
		}
	case models.SourceMetadata:
		if score > r.MetadataScore {
			r.MetadataScore = score
		}
	}
}

func nonNegative(w float64) float64 {
	if w < 0 {
		return 0
	}
	return w
}
