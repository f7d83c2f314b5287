// Package integration provides end-to-end tests (requires real storage and indices).
package integration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/civicrag/internal/analysis"
	"github.com/hyperjump/civicrag/internal/assistant"
	"github.com/hyperjump/civicrag/internal/config"
	"github.com/hyperjump/civicrag/internal/embedding"
	"github.com/hyperjump/civicrag/internal/indexer"
	"github.com/hyperjump/civicrag/internal/intent"
	"github.com/hyperjump/civicrag/internal/keyword"
	"github.com/hyperjump/civicrag/internal/metadata"
	"github.com/hyperjump/civicrag/internal/models"
	"github.com/hyperjump/civicrag/internal/search"
	"github.com/hyperjump/civicrag/internal/storage"
	"github.com/hyperjump/civicrag/internal/vector"
)

const dims = 32

type stack struct {
	store     *storage.SQLiteStorage
	engine    *search.Engine
	indexer   *indexer.Indexer
	pipeline  *indexer.Pipeline
	assistant *assistant.Assistant
}

func newStack(t *testing.T) *stack {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Storage: config.StorageConfig{
			DatabasePath:     filepath.Join(dir, "db.sqlite"),
			KeywordIndexPath: filepath.Join(dir, "bleve"),
		},
		Search: config.SearchConfig{
			VectorWeight: 0.7, MetadataWeight: 0.3, SimilarityThreshold: 0.5,
			DefaultLimit: 10, MaxLimit: 50, QueryTimeout: 5 * time.Second,
			TopKCandidates: 20, MetadataCandidates: 500, RelaxedCandidates: 100,
		},
		Pipeline: config.PipelineConfig{BatchSize: 2},
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	embedder := embedding.NewMockEmbedder(dims)
	vecIndex, err := vector.NewMemoryIndex(dims)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { vecIndex.Close() })

	kwIndex, err := keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { kwIndex.Close() })

	embeddings := embedding.NewStore(store, embedder, embedding.WithIndex(vecIndex))
	vectors := vector.NewRetriever(vecIndex, store, embedder, vector.WithTopK(cfg.Search.TopKCandidates))
	meta := metadata.NewRetriever(store,
		metadata.WithKeywordIndex(kwIndex),
		metadata.WithCandidates(cfg.Search.MetadataCandidates),
		metadata.WithRelaxedCandidates(cfg.Search.RelaxedCandidates),
	)
	engine := search.NewEngine(vectors, meta, store, cfg.Search, nil)

	return &stack{
		store:     store,
		engine:    engine,
		indexer:   indexer.NewIndexer(store, embeddings, kwIndex),
		pipeline:  indexer.NewPipeline(embeddings, store, cfg.Pipeline, indexer.WithLimiter(nil)),
		assistant: assistant.New(intent.NewClassifier(), engine, analysis.NewAnalyzer(store)),
	}
}

func complaints() []*models.Complaint {
	now := time.Now().UTC()
	high, low := 0.9, 0.2
	return []*models.Complaint{
		{ID: "c1", ComplaintType: "Noise - Residential", Descriptor: "Loud Music/Party", Borough: "BROOKLYN", Agency: "NYPD", Status: "Open", RiskScore: &low, SubmittedAt: now.Add(-2 * time.Hour)},
		{ID: "c2", ComplaintType: "Noise - Street/Sidewalk", Descriptor: "Loud Music/Party", Borough: "QUEENS", Agency: "NYPD", Status: "Closed", RiskScore: &low, SubmittedAt: now.Add(-4 * time.Hour)},
		{ID: "c3", ComplaintType: "HEAT/HOT WATER", Descriptor: "Entire Building", Borough: "BRONX", Agency: "HPD", Status: "Open", RiskScore: &high, SubmittedAt: now.Add(-6 * time.Hour)},
		{ID: "c4", ComplaintType: "Water System", Descriptor: "Hydrant Running", Borough: "MANHATTAN", Agency: "DEP", Status: "Open", RiskScore: &low, SubmittedAt: now.Add(-8 * time.Hour)},
		{ID: "c5", ComplaintType: "Noise - Residential", Descriptor: "Banging/Pounding", Borough: "BROOKLYN", Agency: "NYPD", Status: "Open", RiskScore: &low, SubmittedAt: now.Add(-10 * time.Hour)},
	}
}

func index(t *testing.T, ctx context.Context, s *stack) {
	t.Helper()
	for _, c := range complaints() {
		if err := s.indexer.IndexComplaint(ctx, c); err != nil {
			t.Fatal(err)
		}
	}
}

func TestIntegration_Search(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	index(t, ctx, s)

	resp, err := s.engine.Search(ctx, "loud music", models.Filters{}, models.SearchOptions{Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Metadata.TotalResults < 2 {
		t.Fatalf("expected at least 2 results, got %d", resp.Metadata.TotalResults)
	}
	for _, r := range resp.Results[:2] {
		if r.DocumentID != "c1" && r.DocumentID != "c2" {
			t.Errorf("expected loud music complaints first, got %s", r.DocumentID)
		}
		if r.Complaint == nil {
			t.Errorf("result %s not hydrated", r.DocumentID)
		}
	}
}

func TestIntegration_SearchFilters(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	index(t, ctx, s)

	resp, err := s.engine.Search(ctx, "noise", models.Filters{Borough: models.BoroughBrooklyn}, models.SearchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 Brooklyn noise complaints, got %d", len(resp.Results))
	}
	for _, r := range resp.Results {
		if r.Complaint.Borough != "BROOKLYN" {
			t.Errorf("result %s in %s escaped the borough filter", r.DocumentID, r.Complaint.Borough)
		}
	}
}

func TestIntegration_SearchFallback(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	index(t, ctx, s)

	filters := models.Filters{Borough: models.BoroughStatenIsland}
	resp, err := s.engine.Search(ctx, "loud music", filters, models.SearchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 0 || resp.Metadata.SearchMode != models.SearchModeNormal {
		t.Fatalf("without fallback expected no results in normal mode, got %d (%s)", len(resp.Results), resp.Metadata.SearchMode)
	}

	resp, err = s.engine.Search(ctx, "loud music", filters, models.SearchOptions{IncludeFallback: true})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Metadata.SearchMode != models.SearchModeFallbackMetadataOnly {
		t.Errorf("search mode = %s, want %s", resp.Metadata.SearchMode, models.SearchModeFallbackMetadataOnly)
	}
	if len(resp.Results) == 0 {
		t.Fatal("relaxed fallback should find the loud music complaints")
	}
}

func TestIntegration_BackfillEnablesVectorSearch(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	all := complaints()
	for _, c := range all {
		if err := s.store.UpsertComplaint(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	query := indexer.FormatComplaint(all[2])
	resp, err := s.engine.Search(ctx, query, models.Filters{}, models.SearchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Metadata.VectorResultCount != 0 {
		t.Fatalf("vector results before backfill = %d", resp.Metadata.VectorResultCount)
	}

	report, err := s.pipeline.Backfill(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if report.Succeeded != len(all) || report.Failed != 0 {
		t.Fatalf("backfill report = %+v", report)
	}
	again, err := s.pipeline.Backfill(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if again.Processed != 0 {
		t.Errorf("second backfill processed %d complaints", again.Processed)
	}

	resp, err = s.engine.Search(ctx, query, models.Filters{}, models.SearchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) == 0 || resp.Results[0].DocumentID != "c3" {
		t.Fatalf("expected c3 first after backfill, got %+v", resp.Results)
	}
	if !resp.Results[0].HasSource(models.SourceVector) {
		t.Errorf("expected a vector hit, sources = %v", resp.Results[0].Sources)
	}
}

func TestIntegration_Assistant(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	index(t, ctx, s)

	stats, err := s.assistant.Ask(ctx, "How many noise complaints were filed in Brooklyn last month?", assistant.AskOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if stats.Intent.Kind != models.IntentStatisticalAnalysis || stats.Stats == nil {
		t.Fatalf("expected statistics, got %+v", stats)
	}
	if stats.Stats.Total != 2 {
		t.Errorf("Brooklyn noise total = %d, want 2", stats.Stats.Total)
	}

	found, err := s.assistant.Ask(ctx, "Show me urgent heating complaints in the Bronx", assistant.AskOptions{Limit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if found.Intent.Kind != models.IntentSearchComplaints || found.Search == nil {
		t.Fatalf("expected a search, got %+v", found)
	}
	if found.Search.Metadata.SearchMode == models.SearchModeNormal {
		for _, r := range found.Search.Results {
			if r.Complaint.Borough != "BRONX" {
				t.Errorf("result %s outside the Bronx", r.DocumentID)
			}
		}
	}

	hello, err := s.assistant.Ask(ctx, "Hello there", assistant.AskOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if hello.Message != assistant.HelpMessage {
		t.Errorf("message = %q", hello.Message)
	}
}
