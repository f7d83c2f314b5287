package models

import "time"

// DocumentType identifies the kind of document an embedding belongs to.
type DocumentType string

const (
	DocumentComplaint DocumentType = "complaint"
	DocumentQuestion  DocumentType = "question"
	DocumentAnalysis  DocumentType = "analysis"
	DocumentOther     DocumentType = "other"
)

// ParseDocumentType validates s. Empty input yields "" and true (no filter).
func ParseDocumentType(s string) (DocumentType, bool) {
	switch t := DocumentType(s); t {
	case "", DocumentComplaint, DocumentQuestion, DocumentAnalysis, DocumentOther:
		return t, true
	}
	return "", false
}

// EmbeddingRecord is one cached vector for a piece of normalized text.
// (Model, ContentHash) is unique; records are never mutated.
type EmbeddingRecord struct {
	DocumentType DocumentType      `json:"document_type"`
	DocumentID   string            `json:"document_id"`
	ContentHash  string            `json:"content_hash"`
	Content      string            `json:"content"`
	Vector       []float32         `json:"-"`
	Model        string            `json:"model"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// DocumentRef links a document to the embedding that represents it.
type DocumentRef struct {
	DocumentType DocumentType      `json:"document_type"`
	DocumentID   string            `json:"document_id"`
	Model        string            `json:"model"`
	ContentHash  string            `json:"content_hash"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	DocumentTime time.Time         `json:"document_time"`
}
