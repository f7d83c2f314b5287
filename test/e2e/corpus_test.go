package e2e

import (
	"testing"

	"github.com/hyperjump/civicrag/internal/models"
)

func TestBuildCorpus_Returns100Complaints(t *testing.T) {
	c := BuildCorpus()
	if c.TotalDocs != 100 {
		t.Errorf("expected 100 complaints, got %d", c.TotalDocs)
	}
	if len(c.Complaints) != 100 {
		t.Errorf("expected len(Complaints)=100, got %d", len(c.Complaints))
	}
	seen := make(map[string]bool)
	for _, cm := range c.Complaints {
		if seen[cm.ID] {
			t.Errorf("duplicate complaint ID %q", cm.ID)
		}
		seen[cm.ID] = true
		if cm.ComplaintType == "" || cm.Borough == "" || cm.SubmittedAt.IsZero() {
			t.Errorf("complaint %q missing required fields: %+v", cm.ID, cm)
		}
	}
}

func TestBuildCorpus_QueryTestCasesExist(t *testing.T) {
	c := BuildCorpus()
	if c.TotalQueries == 0 {
		t.Fatal("expected at least one query test case")
	}
	for i, tc := range c.TestCases {
		if tc.Query == "" {
			t.Errorf("test case %d: empty query", i)
		}
		if len(tc.ExpectedIDs) == 0 {
			t.Errorf("test case %d: no expected complaint IDs", i)
		}
	}
}

func TestBuildCorpus_ExpectedComplaintsMatchQueryAndFilters(t *testing.T) {
	c := BuildCorpus()
	byID := make(map[string]*models.Complaint)
	for _, cm := range c.Complaints {
		byID[cm.ID] = cm
	}
	for _, tc := range c.TestCases {
		for _, id := range tc.ExpectedIDs {
			cm, ok := byID[id]
			if !ok {
				t.Errorf("expected complaint ID %q not in corpus", id)
				continue
			}
			if !containsPhrase(cm, tc.Query) {
				t.Errorf("complaint %q (descriptor=%q) does not contain query phrase %q", id, cm.Descriptor, tc.Query)
			}
			if tc.Filters.Borough != "" && cm.Borough != string(tc.Filters.Borough) {
				t.Errorf("complaint %q borough %s does not match filter %s", id, cm.Borough, tc.Filters.Borough)
			}
		}
	}
}

func TestBuildCorpus_BoroughsEvenlySpread(t *testing.T) {
	counts := make(map[string]int)
	for _, cm := range BuildCorpus().Complaints {
		counts[cm.Borough]++
	}
	for _, b := range models.Boroughs {
		if counts[string(b)] != 20 {
			t.Errorf("borough %s has %d complaints, want 20", b, counts[string(b)])
		}
	}
}

func TestContainsPhrase(t *testing.T) {
	tests := []struct {
		c       *models.Complaint
		phrase  string
		contain bool
	}{
		{&models.Complaint{ComplaintType: "Rodent", Descriptor: "Rat Sighting"}, "rat sighting", true},
		{&models.Complaint{ComplaintType: "Rodent", Descriptor: "Rat Sighting"}, "pothole", false},
		{&models.Complaint{ComplaintType: "Noise - Residential", Descriptor: "Loud Music Party"}, "noise", true},
	}
	for i, tt := range tests {
		got := containsPhrase(tt.c, tt.phrase)
		if got != tt.contain {
			t.Errorf("test %d: containsPhrase(%q) = %v, want %v", i, tt.phrase, got, tt.contain)
		}
	}
}
