package models

import "time"

// SearchOptions tunes a single hybrid search. Nil weights fall back to configured defaults,
// so an explicit 0 disables that retriever.
type SearchOptions struct {
	Limit           int           `json:"limit,omitempty"`
	VectorWeight    *float64      `json:"vector_weight,omitempty"`
	MetadataWeight  *float64      `json:"metadata_weight,omitempty"`
	Threshold       *float64      `json:"threshold,omitempty"`
	IncludeFallback bool          `json:"include_fallback,omitempty"`
	Timeout         time.Duration `json:"timeout,omitempty"`
	DocumentType    DocumentType  `json:"document_type,omitempty"`
}

// Normalize clamps the limit into [1, maxLimit], using defaultLimit when unset,
// and defaults the document type to complaints.
func (o *SearchOptions) Normalize(defaultLimit, maxLimit int) {
	if o.Limit <= 0 {
		o.Limit = defaultLimit
	}
	if maxLimit > 0 && o.Limit > maxLimit {
		o.Limit = maxLimit
	}
	if o.DocumentType == "" {
		o.DocumentType = DocumentComplaint
	}
}

// Float returns a pointer to v, for optional option fields.
func Float(v float64) *float64 {
	return &v
}
