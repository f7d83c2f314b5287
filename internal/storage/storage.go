// Package storage defines the persistence interfaces for complaints and embeddings.
package storage

import (
	"context"

	"github.com/hyperjump/civicrag/internal/models"
)

// ComplaintStore is the document store the retrieval engine reads complaints from.
type ComplaintStore interface {
	UpsertComplaint(ctx context.Context, c *models.Complaint) error
	GetComplaint(ctx context.Context, id string) (*models.Complaint, error)
	// FetchByID hydrates a ranked result. Missing documents return apperrors.ErrNotFound.
	FetchByID(ctx context.Context, docType models.DocumentType, id string) (*models.Complaint, error)
	DeleteComplaint(ctx context.Context, id string) error
	ListComplaints(ctx context.Context, offset, limit int) ([]*models.Complaint, error)

	// FindComplaints returns complaints passing every filter, newest first.
	FindComplaints(ctx context.Context, filters models.Filters, limit int) ([]*models.Complaint, error)
	// FindComplaintsMatching also requires one of terms in a scored text column, before the limit.
	FindComplaintsMatching(ctx context.Context, filters models.Filters, terms []string, limit int) ([]*models.Complaint, error)
	// CountComplaints groups the complaints passing filters. Groups are sorted by count descending.
	CountComplaints(ctx context.Context, filters models.Filters, groupBy models.GroupBy) ([]models.GroupCount, int, error)
	ListComplaintsWithoutEmbedding(ctx context.Context, model string, limit int) ([]*models.Complaint, error)
	CountAllComplaints(ctx context.Context) (int64, error)
}

// EmbeddingRepository persists embedding records and the links from documents to them.
type EmbeddingRepository interface {
	GetEmbedding(ctx context.Context, model, contentHash string) (*models.EmbeddingRecord, error)
	// InsertEmbedding stores rec unless (model, content_hash) already exists.
	// inserted is false for the idempotent duplicate case.
	InsertEmbedding(ctx context.Context, rec *models.EmbeddingRecord) (inserted bool, err error)
	LinkDocument(ctx context.Context, ref models.DocumentRef) error
	DocumentsForHashes(ctx context.Context, model string, hashes []string) (map[string][]models.DocumentRef, error)
	ListEmbeddings(ctx context.Context, model string, fn func(*models.EmbeddingRecord) error) error
	EmbeddingStats(ctx context.Context) (EmbeddingStats, error)
}

// AnalysisStore persists LLM complaint analyses, one per complaint.
type AnalysisStore interface {
	SaveAnalysis(ctx context.Context, a *models.ComplaintAnalysis) error
	GetAnalysis(ctx context.Context, complaintID string) (*models.ComplaintAnalysis, error)
}

// EmbeddingStats summarizes the embedding tables.
type EmbeddingStats struct {
	Embeddings int64            `json:"embeddings"`
	Links      int64            `json:"links"`
	ByModel    map[string]int64 `json:"by_model"`
}

// Storage combines the repositories over one database.
type Storage interface {
	ComplaintStore
	EmbeddingRepository
	AnalysisStore
	Close() error
}
