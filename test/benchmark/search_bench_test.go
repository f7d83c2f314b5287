package benchmark

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/hyperjump/civicrag/internal/embedding"
	"github.com/hyperjump/civicrag/internal/models"
	"github.com/hyperjump/civicrag/internal/search"
	"github.com/hyperjump/civicrag/internal/vector"
)

func benchResults(n int, source models.Source, score func(i int) float64) []*models.SearchResult {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]*models.SearchResult, n)
	for i := 0; i < n; i++ {
		out[i] = &models.SearchResult{
			DocumentType: models.DocumentComplaint,
			DocumentID:   fmt.Sprintf("c-%d", i),
			SourceScore:  score(i),
			Sources:      []models.Source{source},
			DocumentTime: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

func BenchmarkCombine(b *testing.B) {
	vec := benchResults(100, models.SourceVector, func(i int) float64 { return float64(i) / 100 })
	meta := benchResults(100, models.SourceMetadata, func(i int) float64 { return float64(100-i) / 100 })
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = search.Combine(vec, meta, 0.7, 0.3, 20)
	}
}

func BenchmarkMemoryIndexSearch(b *testing.B) {
	idx, _ := vector.NewMemoryIndex(384)
	ctx := context.Background()
	vecs := make([][]float32, 1000)
	ids := make([]string, 1000)
	for i := 0; i < 1000; i++ {
		vecs[i] = make([]float32, 384)
		vecs[i][0] = float32(i+1) / 1000
		vecs[i][i%384] += 0.5
		ids[i] = fmt.Sprintf("hash-%d", i)
	}
	_ = idx.Add(ctx, ids, vecs)
	query := make([]float32, 384)
	query[0] = 1.0
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.Search(ctx, query, 10)
	}
}

func BenchmarkMockEmbedder_Embed(b *testing.B) {
	e := embedding.NewMockEmbedder(384)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "Complaint Type: Noise - Residential. Description: Loud Music Party")
	}
}
