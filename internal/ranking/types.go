// Package ranking scores complaints against free-text queries by weighted field matches and
// reranks fused results.
package ranking

import (
	"time"

	"github.com/hyperjump/civicrag/internal/models"
)

// Field identifies a scored complaint field.
type Field int

const (
	// FieldCategory is the complaint type.
	FieldCategory Field = iota
	// FieldDescription is the free-text descriptor.
	FieldDescription
	// FieldLocation is borough, address and city.
	FieldLocation
	// FieldOrganization is the responsible agency.
	FieldOrganization
)

// String returns a string representation of the field.
func (f Field) String() string {
	switch f {
	case FieldCategory:
		return "category"
	case FieldDescription:
		return "description"
	case FieldLocation:
		return "location"
	case FieldOrganization:
		return "organization"
	default:
		return "unknown"
	}
}

// QueryType represents the type of search query.
type QueryType int

const (
	// QueryTypeEmpty has no usable terms.
	QueryTypeEmpty QueryType = iota
	// QueryTypeSingleWord is a single key term.
	QueryTypeSingleWord
	// QueryTypeMultiWord is several key terms without quotes.
	QueryTypeMultiWord
	// QueryTypePhrase contains a quoted phrase.
	QueryTypePhrase
	// QueryTypeBoolean contains negated terms.
	QueryTypeBoolean
)

// String returns a string representation of the query type.
func (q QueryType) String() string {
	switch q {
	case QueryTypeEmpty:
		return "empty"
	case QueryTypeSingleWord:
		return "single_word"
	case QueryTypeMultiWord:
		return "multi_word"
	case QueryTypePhrase:
		return "phrase"
	case QueryTypeBoolean:
		return "boolean"
	default:
		return "unknown"
	}
}

// AnalyzedQuery holds the parsed and analyzed form of a search query.
type AnalyzedQuery struct {
	// Original is the original query string.
	Original string
	// Normalized is the lowercased query with quotes removed and whitespace collapsed.
	Normalized string
	// Terms are the key terms: lowercased tokens longer than two runes, minus stopwords.
	Terms []string
	// Phrases are quoted phrases, lowercased.
	Phrases []string
	// NegatedTerms are terms prefixed with "-"; a field containing one disqualifies the document.
	NegatedTerms []string
	// Expansions are domain synonyms of the key terms, used by relaxed search only.
	Expansions []string
	// QueryType classifies the query.
	QueryType QueryType
}

// IsEmpty reports whether the query has nothing to match on.
func (q *AnalyzedQuery) IsEmpty() bool {
	return q.Normalized == "" && len(q.Terms) == 0 && len(q.Phrases) == 0
}

// Expanded returns a copy whose terms include the expansions.
func (q *AnalyzedQuery) Expanded() *AnalyzedQuery {
	cp := *q
	cp.Terms = append(append([]string{}, q.Terms...), q.Expansions...)
	cp.Expansions = nil
	return &cp
}

// FieldMatch records one field that matched the query and what matched it.
type FieldMatch struct {
	Field  Field   `json:"field"`
	Token  string  `json:"token"`
	Weight float64 `json:"weight"`
}

// Score is a field-weighted relevance in [0,1] with the matches that produced it.
type Score struct {
	Value   float64      `json:"value"`
	Matches []FieldMatch `json:"matches,omitempty"`
}

// ScoringContext provides everything a multiplier needs to adjust one fused result.
type ScoringContext struct {
	// Query is the analyzed query.
	Query *AnalyzedQuery
	// Result is the fused result being reranked.
	Result *models.RankedResult
	// Complaint is the hydrated complaint, nil for other document types.
	Complaint *models.Complaint
	// Now is the reference time for recency.
	Now time.Time
}

// NewScoringContext creates a ScoringContext for a fused result.
func NewScoringContext(query *AnalyzedQuery, result *models.RankedResult, now time.Time) *ScoringContext {
	return &ScoringContext{
		Query:     query,
		Result:    result,
		Complaint: result.Complaint,
		Now:       now,
	}
}

// Multiplier transforms a fused score during reranking.
type Multiplier interface {
	// Multiply returns the adjusted score.
	Multiply(ctx *ScoringContext, baseScore float64) float64
	// Name returns the name of the multiplier for debugging/logging.
	Name() string
}

// ScoreBreakdown provides detailed reranking information for debugging.
type ScoreBreakdown struct {
	// BaseScore is the fused score before reranking.
	BaseScore float64 `json:"base_score"`
	// FinalScore is the score after every multiplier.
	FinalScore float64 `json:"final_score"`
	// Multipliers holds the change each multiplier made, keyed by name.
	Multipliers map[string]float64 `json:"multipliers"`
}
