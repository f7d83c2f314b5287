package models

import "time"

// Source names the retriever that produced a candidate.
type Source string

const (
	SourceVector   Source = "vector"
	SourceMetadata Source = "metadata"
)

// SearchResult is a candidate from one retriever, before fusion. SourceScore is in [0, 1].
type SearchResult struct {
	DocumentType DocumentType      `json:"document_type"`
	DocumentID   string            `json:"document_id"`
	Content      string            `json:"content"`
	SourceScore  float64           `json:"source_score"`
	Sources      []Source          `json:"sources"`
	Origin       map[string]string `json:"origin,omitempty"`
	DocumentTime time.Time         `json:"document_time,omitempty"`
}

// Key identifies the document a result refers to.
func (r *SearchResult) Key() DocumentKey {
	return DocumentKey{Type: r.DocumentType, ID: r.DocumentID}
}

// DocumentKey is the fusion key.
type DocumentKey struct {
	Type DocumentType
	ID   string
}

// RankedResult is a fused result. CombinedScore may exceed 1 when several sources agree or
// reranking adds bonuses; RerankAdjustment is the part reranking added.
type RankedResult struct {
	DocumentType     DocumentType      `json:"document_type"`
	DocumentID       string            `json:"document_id"`
	Content          string            `json:"content"`
	CombinedScore    float64           `json:"combined_score"`
	VectorScore      float64           `json:"vector_score,omitempty"`
	MetadataScore    float64           `json:"metadata_score,omitempty"`
	RerankAdjustment float64           `json:"rerank_adjustment,omitempty"`
	Sources          []Source          `json:"sources"`
	Origin           map[string]string `json:"origin,omitempty"`
	Complaint        *Complaint        `json:"complaint,omitempty"`
	Rank             int               `json:"rank"`
}

// HasSource reports whether s contributed to the result.
func (r *RankedResult) HasSource(s Source) bool {
	for _, got := range r.Sources {
		if got == s {
			return true
		}
	}
	return false
}

// SearchMode tells callers which retrieval paths produced the results.
type SearchMode string

const (
	SearchModeNormal               SearchMode = "normal"
	SearchModeFallbackMetadataOnly SearchMode = "fallback_metadata_only"
)

// SearchMetadata describes how a search was served.
type SearchMetadata struct {
	Query               string     `json:"query"`
	TotalResults        int        `json:"total_results"`
	VectorResultCount   int        `json:"vector_result_count"`
	MetadataResultCount int        `json:"metadata_result_count"`
	DurationMs          int64      `json:"duration_ms"`
	SearchMode          SearchMode `json:"search_mode"`
	Degraded            bool       `json:"degraded,omitempty"`
	DegradedReason      string     `json:"degraded_reason,omitempty"`
	HydrationDropped    int        `json:"hydration_dropped,omitempty"`
	Reranked            bool       `json:"reranked,omitempty"`
}

// SearchResponse is the response for a hybrid search.
type SearchResponse struct {
	Results  []*RankedResult `json:"results"`
	Metadata SearchMetadata  `json:"metadata"`
}

// GroupCount is one row of a grouped complaint count.
type GroupCount struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// StatsResult answers a statistical question.
type StatsResult struct {
	GroupBy GroupBy      `json:"group_by"`
	Groups  []GroupCount `json:"groups"`
	Total   int          `json:"total"`
	Filters Filters      `json:"filters"`
}
