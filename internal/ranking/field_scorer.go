package ranking

import (
	"math"
	"strings"

	"github.com/hyperjump/civicrag/internal/models"
)

// FieldScorer computes complaint relevance as a weighted sum of per-field substring matches,
// capped at 1.0. Each field contributes its weight at most once.
type FieldScorer struct {
	weights FieldWeights
}

// NewFieldScorer creates a FieldScorer. Zero weights fall back to DefaultFieldWeights.
func NewFieldScorer(weights FieldWeights) *FieldScorer {
	if weights == (FieldWeights{}) {
		weights = DefaultFieldWeights()
	}
	return &FieldScorer{weights: weights}
}

// Score returns the relevance of c to q. A complaint containing a negated term scores 0.
func (fs *FieldScorer) Score(q *AnalyzedQuery, c *models.Complaint) Score {
	fields := []struct {
		field Field
		text  string
	}{
		{FieldCategory, c.ComplaintType},
		{FieldDescription, c.Descriptor},
		{FieldLocation, c.Location()},
		{FieldOrganization, organizationText(c)},
	}

	if len(q.NegatedTerms) > 0 {
		for _, f := range fields {
			if CountMatchingTerms(q.NegatedTerms, f.text) > 0 {
				return Score{}
			}
		}
	}

	tokens := q.MatchTokens()
	var s Score
	for _, f := range fields {
		text := strings.ToLower(f.text)
		if text == "" {
			continue
		}
		for _, tok := range tokens {
			if strings.Contains(text, tok) {
				w := fs.weights.Weight(f.field)
				s.Value += w
				s.Matches = append(s.Matches, FieldMatch{Field: f.field, Token: tok, Weight: w})
				break
			}
		}
	}
	s.Value = math.Min(1.0, s.Value)
	return s
}

// organizationText covers both the agency code and its display name.
func organizationText(c *models.Complaint) string {
	if c.AgencyName != "" && c.Agency != "" && !strings.EqualFold(c.AgencyName, c.Agency) {
		return c.Agency + " " + c.AgencyName
	}
	return c.Organization()
}
