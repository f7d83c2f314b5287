package keyword

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"

	"github.com/hyperjump/civicrag/internal/models"
)

func seedIndex(t *testing.T, idx *BleveIndex) {
	t.Helper()
	ctx := context.Background()
	complaints := []*models.Complaint{
		{ID: "c1", ComplaintType: "Noise - Residential", Descriptor: "Loud Music/Party", Borough: "BROOKLYN", Agency: "NYPD"},
		{ID: "c2", ComplaintType: "Water System", Descriptor: "Hydrant Running", Borough: "QUEENS", IncidentAddress: "12 Noise Lane", Agency: "DEP"},
		{ID: "c3", ComplaintType: "HEAT/HOT WATER", Descriptor: "ENTIRE BUILDING", Borough: "BRONX", Agency: "HPD"},
	}
	for _, c := range complaints {
		if err := idx.Index(ctx, c); err != nil {
			t.Fatalf("Index %s: %v", c.ID, err)
		}
	}
}

func TestBleveIndex_CategoryOutranksLocation(t *testing.T) {
	idx, err := NewBleveIndex("")
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	defer idx.Close()
	seedIndex(t, idx)

	results, err := idx.Search(context.Background(), "noise", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "c1" {
		t.Errorf("first result = %q, want c1 (category match)", results[0].ID)
	}
}

func TestBleveIndex_FuzzyAndExtraTerms(t *testing.T) {
	idx, err := NewBleveIndex(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	seedIndex(t, idx)
	ctx := context.Background()

	exact, err := idx.Search(ctx, "hydrnt", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(exact) != 0 {
		t.Errorf("misspelling should not match without fuzzy, got %d", len(exact))
	}

	fuzzy, err := idx.Search(ctx, "hydrnt", 10, &SearchOptions{FuzzyEnabled: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(fuzzy) == 0 || fuzzy[0].ID != "c2" {
		t.Errorf("fuzzy search should find c2, got %+v", fuzzy)
	}

	expanded, err := idx.Search(ctx, "sound", 10, &SearchOptions{ExtraTerms: []string{"loud", "music"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(expanded) == 0 || expanded[0].ID != "c1" {
		t.Errorf("expansion should find c1, got %+v", expanded)
	}
}

func TestBleveIndex_DeleteAndPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bleve")
	idx, err := NewBleveIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	seedIndex(t, idx)
	ctx := context.Background()

	if err := idx.Delete(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if n, _ := idx.DocCount(); n != 2 {
		t.Errorf("DocCount = %d, want 2", n)
	}
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewBleveIndex(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if n, _ := reopened.DocCount(); n != 2 {
		t.Errorf("DocCount after reopen = %d, want 2", n)
	}
	results, _ := reopened.Search(ctx, "music", 10, nil)
	if len(results) != 0 {
		t.Errorf("deleted complaint still matches: %+v", results)
	}
}

func TestBleveIndex_EmptyQuery(t *testing.T) {
	idx, _ := NewBleveIndex("")
	defer idx.Close()
	results, err := idx.Search(context.Background(), " ?! ", 10, nil)
	if err != nil || results != nil {
		t.Errorf("got %v, %v; want no results", results, err)
	}
}

func TestBuildMapping(t *testing.T) {
	im := buildMapping()
	if err := im.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if im.DefaultType != "complaint" {
		t.Errorf("DefaultType = %q, want complaint", im.DefaultType)
	}
	for field := range fieldBoosts {
		prop, ok := im.DefaultMapping.Properties[field]
		if !ok || len(prop.Fields) == 0 {
			t.Fatalf("no mapping for %s", field)
		}
		if prop.Fields[0].Analyzer != standard.Name {
			t.Errorf("%s analyzer = %q, want %q", field, prop.Fields[0].Analyzer, standard.Name)
		}
	}
}
