// Package indexer ingests complaints into storage, the keyword index and the embedding store,
// and runs the batch embedding pipeline.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/civicrag/internal/apperrors"
	"github.com/hyperjump/civicrag/internal/embedding"
	"github.com/hyperjump/civicrag/internal/keyword"
	"github.com/hyperjump/civicrag/internal/models"
	"github.com/hyperjump/civicrag/internal/storage"
	"github.com/hyperjump/civicrag/pkg/utils"
)

// Embedder is the part of embedding.Store the indexer and pipeline use.
type Embedder interface {
	PutDocument(ctx context.Context, doc embedding.Document) (*models.EmbeddingRecord, error)
	Get(ctx context.Context, model, hash string) (*models.EmbeddingRecord, error)
	Model() string
}

// Assessor scores a complaint for risk. analysis.Assessor implements it.
type Assessor interface {
	Assess(ctx context.Context, c *models.Complaint) (*models.ComplaintAnalysis, error)
}

// Indexer indexes complaints into storage, the keyword index and the embedding store.
type Indexer struct {
	complaints   storage.ComplaintStore
	embeddings   Embedder
	keywordIndex keyword.KeywordIndex
	assessor     Assessor
	analyses     storage.AnalysisStore
	now          func() time.Time
	logger       *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (complaint indexed, complaint deleted, etc.).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = utils.LoggerOrNop(l) }
}

// WithAssessor analyzes complaints that arrive without a risk score. The analysis is saved to
// analyses and embedded as an analysis document next to the complaint.
func WithAssessor(a Assessor, analyses storage.AnalysisStore) IndexerOption {
	return func(idx *Indexer) {
		idx.assessor = a
		idx.analyses = analyses
	}
}

// NewIndexer creates an indexer. keywordIndex and embeddings may be nil; the matching step is skipped.
func NewIndexer(complaints storage.ComplaintStore, embeddings Embedder, keywordIndex keyword.KeywordIndex, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		complaints:   complaints,
		embeddings:   embeddings,
		keywordIndex: keywordIndex,
		now:          time.Now,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// IndexComplaint stores c, indexes its fields for keyword search and embeds its formatted text.
// When embedding fails the complaint stays stored and the returned error wraps the provider
// error; Pipeline.Backfill picks the complaint up later. With an assessor configured, an unscored
// complaint takes its risk score from the LLM analysis. A failed analysis is logged and the
// complaint is indexed unscored.
func (idx *Indexer) IndexComplaint(ctx context.Context, c *models.Complaint) error {
	if c == nil {
		return apperrors.NewValidationError("complaint", "is required")
	}
	if strings.TrimSpace(c.ComplaintType) == "" && strings.TrimSpace(c.Descriptor) == "" {
		return apperrors.NewValidationError("complaint_type", "complaint type or descriptor is required")
	}
	if c.RiskScore != nil && (*c.RiskScore < 0 || *c.RiskScore > 1) {
		return apperrors.NewValidationError("risk_score", "must be between 0 and 1")
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.SubmittedAt.IsZero() {
		c.SubmittedAt = idx.now().UTC()
	}
	analysis := idx.assess(ctx, c)

	if err := idx.complaints.UpsertComplaint(ctx, c); err != nil {
		return fmt.Errorf("failed to store complaint: %w", err)
	}
	if idx.keywordIndex != nil {
		if err := idx.keywordIndex.Index(ctx, c); err != nil {
			return fmt.Errorf("failed to index keywords: %w", err)
		}
	}
	if idx.embeddings != nil {
		if _, err := idx.embeddings.PutDocument(ctx, ComplaintDocument(c)); err != nil {
			return fmt.Errorf("embedding pending for complaint %s: %w", c.ID, err)
		}
	}
	if analysis != nil {
		if err := idx.storeAnalysis(ctx, c, analysis); err != nil {
			return err
		}
	}
	idx.logger.Debug("indexer complaint indexed", zap.String("id", c.ID))
	return nil
}

// assess returns nil when no assessor is set, the complaint is already scored or the LLM failed.
func (idx *Indexer) assess(ctx context.Context, c *models.Complaint) *models.ComplaintAnalysis {
	if idx.assessor == nil || c.RiskScore != nil {
		return nil
	}
	analysis, err := idx.assessor.Assess(ctx, c)
	if err != nil {
		idx.logger.Warn("indexer complaint analysis failed",
			zap.String("id", c.ID), zap.Error(err))
		return nil
	}
	analysis.ComplaintID = c.ID
	score := analysis.RiskScore
	c.RiskScore = &score
	return analysis
}

func (idx *Indexer) storeAnalysis(ctx context.Context, c *models.Complaint, a *models.ComplaintAnalysis) error {
	if idx.analyses != nil {
		if err := idx.analyses.SaveAnalysis(ctx, a); err != nil {
			return fmt.Errorf("failed to store analysis: %w", err)
		}
	}
	if idx.embeddings != nil {
		if _, err := idx.embeddings.PutDocument(ctx, AnalysisDocument(c, a)); err != nil {
			return fmt.Errorf("embedding pending for analysis %s: %w", c.ID, err)
		}
	}
	return nil
}

// DeleteComplaint removes a complaint from storage and the keyword index.
// Shared embeddings stay cached for other documents with the same text.
func (idx *Indexer) DeleteComplaint(ctx context.Context, id string) error {
	idx.logger.Debug("indexer deleting complaint", zap.String("id", id))
	if err := idx.complaints.DeleteComplaint(ctx, id); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete complaint: %w", err)
	}
	if idx.keywordIndex != nil {
		if err := idx.keywordIndex.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete from keyword index: %w", err)
		}
	}
	return nil
}

// ComplaintDocument builds the embedding request for a complaint.
func ComplaintDocument(c *models.Complaint) embedding.Document {
	return embedding.Document{
		Type:     models.DocumentComplaint,
		ID:       c.ID,
		Content:  FormatComplaint(c),
		Metadata: c.Metadata(),
		Time:     c.SubmittedAt,
	}
}

// AnalysisDocument builds the embedding request for a complaint's LLM analysis. It carries the
// complaint's metadata so filters apply to it the same way.
func AnalysisDocument(c *models.Complaint, a *models.ComplaintAnalysis) embedding.Document {
	return embedding.Document{
		Type:     models.DocumentAnalysis,
		ID:       c.ID,
		Content:  a.Text(),
		Metadata: c.Metadata(),
		Time:     c.SubmittedAt,
	}
}

// FormatComplaint renders the text that is embedded for a complaint, e.g.
// "Complaint Type: Noise. Description: loud music. Location: MANHATTAN, 12 Main St.
// Responsible Agency: NYPD (New York City Police Department). Status: Open".
// Empty fields are left out.
func FormatComplaint(c *models.Complaint) string {
	parts := make([]string, 0, 5)
	add := func(label, value string) {
		if value = utils.CollapseWhitespace(value); value != "" {
			parts = append(parts, label+": "+value)
		}
	}
	add("Complaint Type", c.ComplaintType)
	add("Description", c.Descriptor)

	var loc []string
	for _, p := range []string{strings.ToUpper(strings.TrimSpace(c.Borough)), strings.TrimSpace(c.IncidentAddress)} {
		if p != "" {
			loc = append(loc, p)
		}
	}
	add("Location", strings.Join(loc, ", "))

	agency := c.Agency
	if c.AgencyName != "" && c.AgencyName != c.Agency {
		if agency != "" {
			agency += " (" + c.AgencyName + ")"
		} else {
			agency = c.AgencyName
		}
	}
	add("Responsible Agency", agency)
	add("Status", c.Status)
	return strings.Join(parts, ". ")
}
