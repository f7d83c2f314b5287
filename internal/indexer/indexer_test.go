package indexer

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/civicrag/internal/apperrors"
	"github.com/hyperjump/civicrag/internal/embedding"
	"github.com/hyperjump/civicrag/internal/keyword"
	"github.com/hyperjump/civicrag/internal/models"
	"github.com/hyperjump/civicrag/internal/storage"
)

// switchProvider fails while down is set.
type switchProvider struct {
	inner *embedding.MockEmbedder
	down  atomic.Bool
	calls atomic.Int64
}

func newSwitchProvider() *switchProvider {
	return &switchProvider{inner: embedding.NewMockEmbedder(16)}
}

func (p *switchProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.calls.Add(1)
	if p.down.Load() {
		return nil, apperrors.NewProviderUnavailable("mock", apperrors.FailureUnavailable, errors.New("connection refused"))
	}
	return p.inner.Embed(ctx, text)
}

func (p *switchProvider) Dimensions() int { return p.inner.Dimensions() }
func (p *switchProvider) Model() string   { return p.inner.Model() }
func (p *switchProvider) Close() error    { return nil }

type fixture struct {
	store    *storage.SQLiteStorage
	kw       *keyword.BleveIndex
	provider *switchProvider
	embed    *embedding.Store
	idx      *Indexer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	kw, err := keyword.NewBleveIndex(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = kw.Close() })

	provider := newSwitchProvider()
	embed := embedding.NewStore(store, provider)
	return &fixture{
		store:    store,
		kw:       kw,
		provider: provider,
		embed:    embed,
		idx:      NewIndexer(store, embed, kw),
	}
}

func risk(v float64) *float64 { return &v }

func TestFormatComplaint(t *testing.T) {
	tests := []struct {
		name string
		in   models.Complaint
		want string
	}{
		{
			name: "full",
			in: models.Complaint{
				ComplaintType: "Noise - Residential", Descriptor: "Loud Music/Party",
				Borough: "manhattan", IncidentAddress: "12 Main St",
				Agency: "NYPD", AgencyName: "New York City Police Department", Status: "Open",
			},
			want: "Complaint Type: Noise - Residential. Description: Loud Music/Party. Location: MANHATTAN, 12 Main St. " +
				"Responsible Agency: NYPD (New York City Police Department). Status: Open",
		},
		{
			name: "missing fields",
			in:   models.Complaint{ComplaintType: "Water System", Borough: "BROOKLYN"},
			want: "Complaint Type: Water System. Location: BROOKLYN",
		},
		{
			name: "agency name only",
			in:   models.Complaint{Descriptor: "pipe   leak", AgencyName: "Department of Environmental Protection"},
			want: "Description: pipe leak. Responsible Agency: Department of Environmental Protection",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatComplaint(&tt.in); got != tt.want {
				t.Errorf("FormatComplaint() =\n%q\nwant\n%q", got, tt.want)
			}
		})
	}
}

func TestIndexer_IndexComplaint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := &models.Complaint{
		ID: "c1", ComplaintType: "Noise", Descriptor: "loud music", Borough: "MANHATTAN",
		Status: "Open", RiskScore: risk(0.8), SubmittedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := f.idx.IndexComplaint(ctx, c); err != nil {
		t.Fatal(err)
	}

	got, err := f.store.GetComplaint(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Descriptor != "loud music" {
		t.Errorf("stored descriptor = %q", got.Descriptor)
	}
	hits, err := f.kw.Search(ctx, "music", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != "c1" {
		t.Errorf("keyword hits = %v", hits)
	}
	backlog, err := f.store.ListComplaintsWithoutEmbedding(ctx, f.embed.Model(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(backlog) != 0 {
		t.Errorf("complaint should be embedded, backlog = %d", len(backlog))
	}
}

func TestIndexer_IndexComplaint_Defaults(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2024, 7, 4, 12, 0, 0, 0, time.UTC)
	f.idx.now = func() time.Time { return now }

	c := &models.Complaint{ComplaintType: "Heat"}
	if err := f.idx.IndexComplaint(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	if c.ID == "" {
		t.Error("expected a generated id")
	}
	if !c.SubmittedAt.Equal(now) {
		t.Errorf("submitted_at = %v, want %v", c.SubmittedAt, now)
	}
}

func TestIndexer_IndexComplaint_Validation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		c    *models.Complaint
	}{
		{"nil", nil},
		{"no type or descriptor", &models.Complaint{ID: "x", Borough: "QUEENS"}},
		{"risk out of range", &models.Complaint{ID: "x", ComplaintType: "Noise", RiskScore: risk(1.5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.idx.IndexComplaint(context.Background(), tt.c)
			if !errors.Is(err, apperrors.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestIndexer_EmbeddingFailureLeavesComplaintStored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.provider.down.Store(true)

	err := f.idx.IndexComplaint(ctx, &models.Complaint{ID: "c1", ComplaintType: "Noise", Descriptor: "loud music"})
	if !errors.Is(err, apperrors.ErrProviderUnavailable) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if _, err := f.store.GetComplaint(ctx, "c1"); err != nil {
		t.Fatalf("complaint should be stored: %v", err)
	}

	p := NewPipeline(f.embed, f.store, pipelineConfig())
	f.provider.down.Store(false)
	report, err := p.Backfill(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if report.Processed != 1 || report.Succeeded != 1 {
		t.Errorf("backfill report = %+v", report)
	}
	backlog, _ := f.store.ListComplaintsWithoutEmbedding(ctx, f.embed.Model(), 0)
	if len(backlog) != 0 {
		t.Errorf("backlog after backfill = %d", len(backlog))
	}
}

func TestIndexer_DeleteComplaint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.idx.IndexComplaint(ctx, &models.Complaint{ID: "c1", ComplaintType: "Noise", Descriptor: "loud music"}); err != nil {
		t.Fatal(err)
	}
	if err := f.idx.DeleteComplaint(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.GetComplaint(ctx, "c1"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if n, _ := f.kw.DocCount(); n != 0 {
		t.Errorf("keyword index still holds %d docs", n)
	}
	if err := f.idx.DeleteComplaint(ctx, "c1"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("second delete: expected not found, got %v", err)
	}
}

func TestIndexer_Import(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"json lines", `{"id":"a","complaint_type":"Noise","descriptor":"loud music","borough":"MANHATTAN"}

{"id":"b","complaint_type":"Water System","descriptor":"pipe leak","borough":"BROOKLYN"}
`},
		{"json array", `  [
  {"id":"a","complaint_type":"Noise","descriptor":"loud music"},
  {"id":"b","complaint_type":"Water System","descriptor":"pipe leak"}
]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			res, err := f.idx.Import(context.Background(), strings.NewReader(tt.input))
			if err != nil {
				t.Fatal(err)
			}
			if res.Stored != 2 || res.Pending != 0 {
				t.Errorf("result = %+v", res)
			}
			n, _ := f.store.CountAllComplaints(context.Background())
			if n != 2 {
				t.Errorf("stored %d complaints", n)
			}
		})
	}
}

func TestIndexer_ImportPendingAndErrors(t *testing.T) {
	f := newFixture(t)
	f.provider.down.Store(true)
	res, err := f.idx.Import(context.Background(), strings.NewReader(`{"id":"a","complaint_type":"Noise"}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.Stored != 1 || res.Pending != 1 {
		t.Errorf("result = %+v", res)
	}

	if _, err := f.idx.Import(context.Background(), strings.NewReader("{not json}\n")); err == nil {
		t.Error("expected decode error")
	}
	if res, err := f.idx.Import(context.Background(), strings.NewReader("   \n")); err != nil || res.Stored != 0 {
		t.Errorf("empty input: %+v, %v", res, err)
	}
}

type stubAssessor struct {
	analysis *models.ComplaintAnalysis
	err      error
	calls    int
}

func (s *stubAssessor) Assess(ctx context.Context, c *models.Complaint) (*models.ComplaintAnalysis, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	a := *s.analysis
	return &a, nil
}

func TestIndexer_IndexComplaint_Assesses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	assessor := &stubAssessor{analysis: &models.ComplaintAnalysis{
		RiskScore: 0.9, Category: "Public Safety", Summary: "Gas odor.", Tags: []string{"gas"}, Method: models.AnalysisMethodLLM,
	}}
	idx := NewIndexer(f.store, f.embed, f.kw, WithAssessor(assessor, f.store))

	c := &models.Complaint{ID: "c1", ComplaintType: "Gas Leak", Descriptor: "gas odor", Borough: "BROOKLYN"}
	if err := idx.IndexComplaint(ctx, c); err != nil {
		t.Fatal(err)
	}

	got, err := f.store.GetComplaint(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.RiskScore == nil || *got.RiskScore != 0.9 {
		t.Errorf("stored risk = %v, want 0.9", got.RiskScore)
	}
	saved, err := f.store.GetAnalysis(ctx, "c1")
	if err != nil {
		t.Fatalf("analysis not saved: %v", err)
	}
	if saved.Category != "Public Safety" || saved.ComplaintID != "c1" {
		t.Errorf("saved analysis = %+v", saved)
	}

	hash := embedding.ContentHash(embedding.Normalize(saved.Text()))
	refs, err := f.store.DocumentsForHashes(ctx, f.embed.Model(), []string{hash})
	if err != nil {
		t.Fatal(err)
	}
	if len(refs[hash]) != 1 || refs[hash][0].DocumentType != models.DocumentAnalysis || refs[hash][0].DocumentID != "c1" {
		t.Errorf("analysis document refs = %+v", refs[hash])
	}
}

func TestIndexer_IndexComplaint_SkipsAssessment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("already scored", func(t *testing.T) {
		assessor := &stubAssessor{analysis: &models.ComplaintAnalysis{RiskScore: 0.9}}
		idx := NewIndexer(f.store, f.embed, f.kw, WithAssessor(assessor, f.store))
		if err := idx.IndexComplaint(ctx, &models.Complaint{ID: "s1", ComplaintType: "Noise", RiskScore: risk(0.2)}); err != nil {
			t.Fatal(err)
		}
		if assessor.calls != 0 {
			t.Errorf("assessor called %d times for a scored complaint", assessor.calls)
		}
	})

	t.Run("assessment fails", func(t *testing.T) {
		assessor := &stubAssessor{err: apperrors.NewProviderUnavailable("fake", apperrors.FailureTimeout, context.DeadlineExceeded)}
		idx := NewIndexer(f.store, f.embed, f.kw, WithAssessor(assessor, f.store))
		if err := idx.IndexComplaint(ctx, &models.Complaint{ID: "s2", ComplaintType: "Noise"}); err != nil {
			t.Fatalf("analysis failure should not fail indexing: %v", err)
		}
		got, err := f.store.GetComplaint(ctx, "s2")
		if err != nil {
			t.Fatal(err)
		}
		if got.RiskScore != nil {
			t.Errorf("risk = %v, want unscored", *got.RiskScore)
		}
		if _, err := f.store.GetAnalysis(ctx, "s2"); !errors.Is(err, apperrors.ErrNotFound) {
			t.Errorf("GetAnalysis() error = %v, want not found", err)
		}
	})
}
