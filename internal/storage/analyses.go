package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hyperjump/civicrag/internal/apperrors"
	"github.com/hyperjump/civicrag/internal/models"
)

// SaveAnalysis stores a, replacing any earlier analysis of the same complaint.
func (s *SQLiteStorage) SaveAnalysis(ctx context.Context, a *models.ComplaintAnalysis) error {
	if a.ComplaintID == "" {
		return apperrors.NewValidationError("complaint_id", "is required")
	}
	tags, err := json.Marshal(a.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO complaint_analyses (complaint_id, risk_score, category, summary, tags, method, model, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(complaint_id) DO UPDATE SET
			risk_score = excluded.risk_score, category = excluded.category, summary = excluded.summary,
			tags = excluded.tags, method = excluded.method, model = excluded.model,
			created_at = excluded.created_at`,
		a.ComplaintID, a.RiskScore, a.Category, a.Summary, string(tags), a.Method, a.Model, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

// GetAnalysis returns the stored analysis of a complaint, or apperrors.ErrNotFound.
func (s *SQLiteStorage) GetAnalysis(ctx context.Context, complaintID string) (*models.ComplaintAnalysis, error) {
	var a models.ComplaintAnalysis
	var tags string
	err := s.db.QueryRowContext(ctx,
		`SELECT complaint_id, risk_score, category, summary, tags, method, model, created_at
		 FROM complaint_analyses WHERE complaint_id = ?`, complaintID,
	).Scan(&a.ComplaintID, &a.RiskScore, &a.Category, &a.Summary, &tags, &a.Method, &a.Model, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("analysis", complaintID)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &a.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	return &a, nil
}
