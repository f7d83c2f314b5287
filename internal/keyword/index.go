// Package keyword provides the full-text complaint index used by the relaxed metadata search.
package keyword

import (
	"context"

	"github.com/hyperjump/civicrag/internal/models"
)

// Indexed fields and their boosts. The boosts follow the field weights of ranking.FieldScorer
// so category matches outrank description, location and agency matches.
const (
	FieldCategory     = "complaint_type"
	FieldDescription  = "descriptor"
	FieldLocation     = "location"
	FieldOrganization = "organization"
)

var fieldBoosts = map[string]float64{
	FieldCategory:     4,
	FieldDescription:  3,
	FieldLocation:     2,
	FieldOrganization: 1,
}

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// FuzzyEnabled enables fuzzy matching for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum Levenshtein edit distance for fuzzy matching (1 or 2).
	// Default is 1 when FuzzyEnabled is true. Terms shorter than four runes are matched exactly.
	Fuzziness int
	// ExtraTerms are added to the query terms, e.g. synonym expansions.
	ExtraTerms []string
}

// KeywordIndex defines keyword search operations over complaints.
type KeywordIndex interface {
	Index(ctx context.Context, c *models.Complaint) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	Delete(ctx context.Context, id string) error
	// DocCount returns the total number of complaints in the index.
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit. Score is the raw engine score.
type KeywordResult struct {
	ID    string
	Score float64
}
