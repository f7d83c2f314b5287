package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/civicrag/internal/apperrors"
	"github.com/hyperjump/civicrag/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func risk(v float64) *float64 { return &v }

func seedComplaints(t *testing.T, store *SQLiteStorage) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	complaints := []*models.Complaint{
		{ID: "c1", ComplaintType: "Noise - Residential", Descriptor: "Loud Music/Party", Borough: "manhattan", Agency: "NYPD", Status: "Open", RiskScore: risk(0.2), SubmittedAt: base},
		{ID: "c2", ComplaintType: "Water System", Descriptor: "pipe leak", Borough: "BROOKLYN", Agency: "DEP", Status: "Closed", RiskScore: risk(0.75), SubmittedAt: base.AddDate(0, 0, 5)},
		{ID: "c3", ComplaintType: "Noise - Street/Sidewalk", Descriptor: "Loud Talking", Borough: "QUEENS", Agency: "NYPD", Status: "Open", RiskScore: risk(0.5), SubmittedAt: base.AddDate(0, 0, 10)},
		{ID: "c4", ComplaintType: "HEAT/HOT WATER", Descriptor: "ENTIRE BUILDING", Borough: "BRONX", Agency: "HPD", Status: "Open", SubmittedAt: base.AddDate(0, 1, 0)},
	}
	for _, c := range complaints {
		if err := store.UpsertComplaint(ctx, c); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSQLiteStorage_ComplaintCRUD(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	c := &models.Complaint{ID: "c1", ComplaintType: "Noise", Descriptor: "loud music", Borough: "manhattan", RiskScore: risk(0.4)}
	if err := store.UpsertComplaint(ctx, c); err != nil {
		t.Fatal(err)
	}
	if c.CreatedAt.IsZero() || c.SubmittedAt.IsZero() {
		t.Error("timestamps should be set")
	}

	got, err := store.GetComplaint(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Borough != "MANHATTAN" || got.Descriptor != "loud music" {
		t.Errorf("got %+v", got)
	}
	if got.RiskScore == nil || *got.RiskScore != 0.4 {
		t.Errorf("risk score = %v", got.RiskScore)
	}
	if got.Latitude != nil {
		t.Error("latitude should stay nil")
	}

	c.Descriptor = "very loud music"
	if err := store.UpsertComplaint(ctx, c); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetComplaint(ctx, "c1")
	if got.Descriptor != "very loud music" {
		t.Errorf("expected update, got %q", got.Descriptor)
	}

	list, err := store.ListComplaints(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 complaint, got %d", len(list))
	}

	if err := store.DeleteComplaint(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetComplaint(ctx, "c1"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected NotFound after delete, got %v", err)
	}
	if err := store.DeleteComplaint(ctx, "c1"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected NotFound deleting twice, got %v", err)
	}
}

func TestSQLiteStorage_UpsertRequiresID(t *testing.T) {
	store := newTestStorage(t)
	err := store.UpsertComplaint(context.Background(), &models.Complaint{ComplaintType: "Noise"})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestSQLiteStorage_FetchByID(t *testing.T) {
	store := newTestStorage(t)
	seedComplaints(t, store)
	ctx := context.Background()

	if _, err := store.FetchByID(ctx, models.DocumentComplaint, "c2"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.FetchByID(ctx, models.DocumentComplaint, "missing"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
	if _, err := store.FetchByID(ctx, models.DocumentQuestion, "c2"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected NotFound for non-complaint type, got %v", err)
	}
}

func TestSQLiteStorage_FindComplaints(t *testing.T) {
	store := newTestStorage(t)
	seedComplaints(t, store)
	ctx := context.Background()
	from := time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		filters models.Filters
		want    []string
	}{
		{"no filters newest first", models.Filters{}, []string{"c4", "c3", "c2", "c1"}},
		{"type substring", models.Filters{ComplaintType: "noise"}, []string{"c3", "c1"}},
		{"borough", models.Filters{Borough: models.BoroughBrooklyn}, []string{"c2"}},
		{"status case-insensitive", models.Filters{Status: "open"}, []string{"c4", "c3", "c1"}},
		{"agency", models.Filters{Agency: "nypd"}, []string{"c3", "c1"}},
		{"date range", models.Filters{From: &from, To: &to}, []string{"c3", "c2"}},
		{"risk high", models.Filters{RiskLevel: models.RiskHigh}, []string{"c2"}},
		{"risk medium", models.Filters{RiskLevel: models.RiskMedium}, []string{"c3"}},
		{"risk low excludes unscored", models.Filters{RiskLevel: models.RiskLow}, []string{"c1"}},
		{"and of filters", models.Filters{ComplaintType: "noise", Borough: models.BoroughBrooklyn}, nil},
		{"like wildcards are literal", models.Filters{ComplaintType: "%"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.FindComplaints(ctx, tt.filters, 0)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d complaints, want %v", len(got), tt.want)
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("position %d: got %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}

	limited, err := store.FindComplaints(ctx, models.Filters{}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("limit: got %d", len(limited))
	}
}

func TestSQLiteStorage_FindComplaintsMatching(t *testing.T) {
	store := newTestStorage(t)
	seedComplaints(t, store)
	ctx := context.Background()

	tests := []struct {
		name    string
		filters models.Filters
		terms   []string
		want    []string
	}{
		{"no terms is FindComplaints", models.Filters{}, nil, []string{"c4", "c3", "c2", "c1"}},
		{"category", models.Filters{}, []string{"noise"}, []string{"c3", "c1"}},
		{"descriptor case-insensitive", models.Filters{}, []string{"LOUD"}, []string{"c3", "c1"}},
		{"location", models.Filters{}, []string{"bronx"}, []string{"c4"}},
		{"agency", models.Filters{}, []string{"dep"}, []string{"c2"}},
		{"any term matches", models.Filters{}, []string{"leak", "building"}, []string{"c4", "c2"}},
		{"filters still apply", models.Filters{Borough: models.BoroughQueens}, []string{"noise"}, []string{"c3"}},
		{"wildcards are literal", models.Filters{}, []string{"%"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.FindComplaintsMatching(ctx, tt.filters, tt.terms, 0)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d complaints, want %v", len(got), tt.want)
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("position %d: got %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestSQLiteStorage_FindComplaintsMatching_AppliesTextBeforeLimit(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := store.UpsertComplaint(ctx, &models.Complaint{ID: "old", ComplaintType: "Rodent", SubmittedAt: base}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		c := &models.Complaint{ID: fmt.Sprintf("new-%02d", i), ComplaintType: "Graffiti", SubmittedAt: base.Add(time.Duration(i+1) * time.Hour)}
		if err := store.UpsertComplaint(ctx, c); err != nil {
			t.Fatal(err)
		}
	}
	got, err := store.FindComplaintsMatching(ctx, models.Filters{}, []string{"rodent"}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "old" {
		t.Fatalf("got %d complaints, want [old]", len(got))
	}
}

func TestSQLiteStorage_CountComplaints(t *testing.T) {
	store := newTestStorage(t)
	seedComplaints(t, store)
	ctx := context.Background()

	groups, total, err := store.CountComplaints(ctx, models.Filters{}, models.GroupByAgency)
	if err != nil {
		t.Fatal(err)
	}
	if total != 4 {
		t.Errorf("total = %d, want 4", total)
	}
	if groups[0].Key != "NYPD" || groups[0].Count != 2 {
		t.Errorf("top group = %+v, want NYPD/2", groups[0])
	}

	groups, _, err = store.CountComplaints(ctx, models.Filters{}, models.GroupByMonth)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 2 || groups[0].Key != "2024-03" || groups[0].Count != 3 {
		t.Errorf("month groups = %+v", groups)
	}

	if _, _, err := store.CountComplaints(ctx, models.Filters{}, "zip"); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestSQLiteStorage_EmbeddingsDedupAndLinks(t *testing.T) {
	store := newTestStorage(t)
	seedComplaints(t, store)
	ctx := context.Background()

	rec := &models.EmbeddingRecord{
		DocumentType: models.DocumentComplaint,
		DocumentID:   "c1",
		ContentHash:  "h1",
		Content:      "loud music",
		Vector:       []float32{0.1, -0.2, 0.3},
		Model:        "m",
		Metadata:     map[string]string{"borough": "MANHATTAN"},
	}
	inserted, err := store.InsertEmbedding(ctx, rec)
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}
	dup := *rec
	dup.DocumentID = "c3"
	dup.Vector = []float32{9, 9, 9}
	inserted, err = store.InsertEmbedding(ctx, &dup)
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Error("duplicate insert should be a no-op")
	}

	got, err := store.GetEmbedding(ctx, "m", "h1")
	if err != nil {
		t.Fatal(err)
	}
	if got.DocumentID != "c1" || len(got.Vector) != 3 || got.Vector[1] != -0.2 {
		t.Errorf("first writer should win, got %+v", got)
	}
	if _, err := store.GetEmbedding(ctx, "other-model", "h1"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected NotFound for other model, got %v", err)
	}

	for _, id := range []string{"c1", "c3"} {
		if err := store.LinkDocument(ctx, models.DocumentRef{
			DocumentType: models.DocumentComplaint, DocumentID: id, Model: "m", ContentHash: "h1",
			Metadata: map[string]string{"id": id}, DocumentTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		}); err != nil {
			t.Fatal(err)
		}
	}
	refs, err := store.DocumentsForHashes(ctx, "m", []string{"h1", "unknown"})
	if err != nil {
		t.Fatal(err)
	}
	if len(refs["h1"]) != 2 {
		t.Fatalf("expected 2 documents sharing h1, got %d", len(refs["h1"]))
	}
	if refs["h1"][0].DocumentTime.IsZero() || refs["h1"][0].Metadata["id"] == "" {
		t.Errorf("link fields not round-tripped: %+v", refs["h1"][0])
	}

	backlog, err := store.ListComplaintsWithoutEmbedding(ctx, "m", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(backlog) != 2 || backlog[0].ID != "c2" || backlog[1].ID != "c4" {
		t.Errorf("backlog = %v", complaintIDs(backlog))
	}

	stats, err := store.EmbeddingStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Embeddings != 1 || stats.Links != 2 || stats.ByModel["m"] != 1 {
		t.Errorf("stats = %+v", stats)
	}

	var listed int
	if err := store.ListEmbeddings(ctx, "m", func(*models.EmbeddingRecord) error { listed++; return nil }); err != nil {
		t.Fatal(err)
	}
	if listed != 1 {
		t.Errorf("listed %d records", listed)
	}

	// Re-ingesting a complaint drops its link so it re-enters the backlog.
	c1, _ := store.GetComplaint(ctx, "c1")
	c1.Descriptor = "changed"
	if err := store.UpsertComplaint(ctx, c1); err != nil {
		t.Fatal(err)
	}
	backlog, _ = store.ListComplaintsWithoutEmbedding(ctx, "m", 0)
	if len(backlog) != 3 {
		t.Errorf("expected c1 back in backlog, got %v", complaintIDs(backlog))
	}
}

func TestVectorCodec(t *testing.T) {
	v := []float32{1.5, -2.25, 0}
	got, err := DecodeVector(EncodeVector(v))
	if err != nil {
		t.Fatal(err)
	}
	for i := range v {
		if got[i] != v[i] {
			t.Fatalf("got %v, want %v", got, v)
		}
	}
	if _, err := DecodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}

func complaintIDs(cs []*models.Complaint) []string {
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.ID
	}
	return ids
}
