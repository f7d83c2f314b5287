package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/hyperjump/civicrag/internal/apperrors"
	"github.com/hyperjump/civicrag/internal/models"
)

// GetEmbedding returns the record for (model, contentHash), or apperrors.ErrNotFound.
func (s *SQLiteStorage) GetEmbedding(ctx context.Context, model, contentHash string) (*models.EmbeddingRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT model, content_hash, document_type, document_id, content, vector, metadata, created_at
		 FROM embeddings WHERE model = ? AND content_hash = ?`, model, contentHash)
	rec, err := scanEmbedding(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("embedding", contentHash)
	}
	return rec, err
}

// InsertEmbedding stores rec. A row with the same (model, content_hash) wins and the call is a no-op.
func (s *SQLiteStorage) InsertEmbedding(ctx context.Context, rec *models.EmbeddingRecord) (bool, error) {
	if len(rec.Vector) == 0 {
		return false, apperrors.NewValidationError("vector", "embedding record has no vector")
	}
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return false, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO embeddings
		 (model, content_hash, document_type, document_id, content, vector, dimensions, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Model, rec.ContentHash, rec.DocumentType, rec.DocumentID, rec.Content,
		EncodeVector(rec.Vector), len(rec.Vector), string(meta), rec.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert embedding: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// LinkDocument points a document at an embedding, replacing any previous link for the same model.
func (s *SQLiteStorage) LinkDocument(ctx context.Context, ref models.DocumentRef) error {
	meta, err := json.Marshal(ref.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	var docTime any
	if !ref.DocumentTime.IsZero() {
		docTime = ref.DocumentTime.UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO document_embeddings (document_type, document_id, model, content_hash, metadata, document_time, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(document_type, document_id, model) DO UPDATE SET
			content_hash = excluded.content_hash, metadata = excluded.metadata,
			document_time = excluded.document_time`,
		ref.DocumentType, ref.DocumentID, ref.Model, ref.ContentHash, string(meta), docTime, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to link document: %w", err)
	}
	return nil
}

// DocumentsForHashes returns the documents linked to each hash under model.
func (s *SQLiteStorage) DocumentsForHashes(ctx context.Context, model string, hashes []string) (map[string][]models.DocumentRef, error) {
	out := make(map[string][]models.DocumentRef, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(hashes)), ",")
	args := make([]any, 0, len(hashes)+1)
	args = append(args, model)
	for _, h := range hashes {
		args = append(args, h)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_type, document_id, model, content_hash, metadata, document_time
		 FROM document_embeddings WHERE model = ? AND content_hash IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load document links: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ref models.DocumentRef
		var meta sql.NullString
		var docTime sql.NullTime
		if err := rows.Scan(&ref.DocumentType, &ref.DocumentID, &ref.Model, &ref.ContentHash, &meta, &docTime); err != nil {
			return nil, err
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &ref.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal link metadata: %w", err)
			}
		}
		if docTime.Valid {
			ref.DocumentTime = docTime.Time
		}
		out[ref.ContentHash] = append(out[ref.ContentHash], ref)
	}
	return out, rows.Err()
}

// ListEmbeddings streams every record for model to fn, oldest first.
func (s *SQLiteStorage) ListEmbeddings(ctx context.Context, model string, fn func(*models.EmbeddingRecord) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT model, content_hash, document_type, document_id, content, vector, metadata, created_at
		 FROM embeddings WHERE model = ? ORDER BY created_at, content_hash`, model)
	if err != nil {
		return fmt.Errorf("failed to list embeddings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		rec, err := scanEmbedding(rows)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// EmbeddingStats counts records, links and records per model.
func (s *SQLiteStorage) EmbeddingStats(ctx context.Context) (EmbeddingStats, error) {
	stats := EmbeddingStats{ByModel: make(map[string]int64)}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_embeddings`).Scan(&stats.Links); err != nil {
		return stats, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT model, COUNT(*) FROM embeddings GROUP BY model`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var model string
		var n int64
		if err := rows.Scan(&model, &n); err != nil {
			return stats, err
		}
		stats.ByModel[model] = n
		stats.Embeddings += n
	}
	return stats, rows.Err()
}

func scanEmbedding(row rowScanner) (*models.EmbeddingRecord, error) {
	var rec models.EmbeddingRecord
	var blob []byte
	var meta sql.NullString
	if err := row.Scan(&rec.Model, &rec.ContentHash, &rec.DocumentType, &rec.DocumentID, &rec.Content,
		&blob, &meta, &rec.CreatedAt); err != nil {
		return nil, err
	}
	vec, err := DecodeVector(blob)
	if err != nil {
		return nil, err
	}
	rec.Vector = vec
	if meta.Valid && meta.String != "" && meta.String != "null" {
		if err := json.Unmarshal([]byte(meta.String), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &rec, nil
}

// EncodeVector packs v as little-endian float32s.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector unpacks a blob written by EncodeVector.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}
