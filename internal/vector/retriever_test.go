package vector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hyperjump/civicrag/internal/apperrors"
	"github.com/hyperjump/civicrag/internal/embedding"
	"github.com/hyperjump/civicrag/internal/models"
	"github.com/hyperjump/civicrag/internal/storage"
)

type failingEmbedder struct{ err error }

func (f failingEmbedder) Embed(context.Context, string) ([]float32, error) { return nil, f.err }
func (f failingEmbedder) Model() string                                  { return "mock" }

func setupRetriever(t *testing.T) (*Retriever, *storage.SQLiteStorage, *MemoryIndex) {
	t.Helper()
	repo, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { repo.Close() })

	provider := embedding.NewMockEmbedder(64)
	idx, _ := NewMemoryIndex(64)
	store := embedding.NewStore(repo, provider, embedding.WithIndex(idx))

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	docs := []embedding.Document{
		{ID: "c1", Content: "Noise complaint: loud music", Time: base,
			Metadata: map[string]string{models.MetaBorough: "MANHATTAN", models.MetaComplaintType: "Noise - Residential"}},
		{ID: "c2", Content: "noise complaint:  LOUD music", Time: base.Add(time.Hour),
			Metadata: map[string]string{models.MetaBorough: "BROOKLYN", models.MetaComplaintType: "Noise - Residential"}},
		{ID: "c3", Content: "water main break", Time: base,
			Metadata: map[string]string{models.MetaBorough: "QUEENS", models.MetaComplaintType: "Water System"}},
	}
	for _, d := range docs {
		d.Type = models.DocumentComplaint
		if _, err := store.PutDocument(context.Background(), d); err != nil {
			t.Fatal(err)
		}
	}
	cached, err := embedding.NewCachedProvider(provider, 16)
	if err != nil {
		t.Fatal(err)
	}
	return NewRetriever(idx, repo, cached, WithTopK(10)), repo, idx
}

func resultIDs(rs []*models.SearchResult) []string {
	ids := make([]string, len(rs))
	for i, r := range rs {
		ids[i] = r.DocumentID
	}
	return ids
}

func TestRetriever_SearchText(t *testing.T) {
	r, _, _ := setupRetriever(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		query VectorQuery
		want  []string
	}{
		{"shared hash newest first", VectorQuery{Threshold: 0.9}, []string{"c2", "c1"}},
		{"limit", VectorQuery{Threshold: 0.9, Limit: 1}, []string{"c2"}},
		{"borough filter", VectorQuery{Threshold: 0.9, Filters: models.Filters{Borough: models.Borough("MANHATTAN")}}, []string{"c1"}},
		{"type filter excludes", VectorQuery{Threshold: 0.9, DocumentType: models.DocumentQuestion}, []string{}},
		{"category filter excludes", VectorQuery{Threshold: 0.9, Filters: models.Filters{ComplaintType: "water"}}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.SearchText(ctx, "Noise complaint: loud music", tt.query)
			if out.Degraded {
				t.Fatalf("unexpected degradation: %s", out.Reason)
			}
			got := resultIDs(out.Results)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
			for _, res := range out.Results {
				if res.SourceScore < 0.9 || res.SourceScore > 1 {
					t.Errorf("score %.4f outside threshold range", res.SourceScore)
				}
				if res.Content != "Noise complaint: loud music" {
					t.Errorf("Content = %q", res.Content)
				}
				if len(res.Sources) != 1 || res.Sources[0] != models.SourceVector {
					t.Errorf("Sources = %v", res.Sources)
				}
			}
		})
	}
}

func TestRetriever_ThresholdDropsDissimilar(t *testing.T) {
	r, _, _ := setupRetriever(t)
	out := r.SearchText(context.Background(), "water main break", VectorQuery{Threshold: 0.9})
	if got := resultIDs(out.Results); len(got) != 1 || got[0] != "c3" {
		t.Errorf("got %v, want [c3]", got)
	}
}

func TestRetriever_DegradesOnProviderFailure(t *testing.T) {
	_, repo, idx := setupRetriever(t)
	tests := []struct {
		name string
		err  error
	}{
		{"unavailable", apperrors.NewProviderUnavailable("mock", apperrors.FailureTimeout, context.DeadlineExceeded)},
		{"malformed", apperrors.NewMalformedResponse("mock", "bad", nil)},
		{"untyped", errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRetriever(idx, repo, failingEmbedder{err: tt.err})
			out := r.SearchText(context.Background(), "noise", VectorQuery{Threshold: 0.5})
			if !out.Degraded || out.Reason == "" || len(out.Results) != 0 {
				t.Errorf("outcome = %+v, want degraded and empty", out)
			}
		})
	}
}

func TestRetriever_DegradesOnIndexFailure(t *testing.T) {
	_, repo, _ := setupRetriever(t)
	wrongDims, _ := NewMemoryIndex(8)
	r := NewRetriever(wrongDims, repo, embedding.NewMockEmbedder(64))
	out := r.SearchText(context.Background(), "noise", VectorQuery{})
	if !out.Degraded {
		t.Error("expected degraded outcome for index error")
	}
}
