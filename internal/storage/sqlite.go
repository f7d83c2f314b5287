// Package storage provides the SQLite implementation of Storage.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/civicrag/internal/apperrors"
	"github.com/hyperjump/civicrag/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS complaints (
		id TEXT PRIMARY KEY,
		complaint_type TEXT NOT NULL,
		descriptor TEXT NOT NULL DEFAULT '',
		borough TEXT NOT NULL DEFAULT '',
		incident_address TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT '',
		agency TEXT NOT NULL DEFAULT '',
		agency_name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		risk_score REAL,
		latitude REAL,
		longitude REAL,
		submitted_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_complaints_submitted_at ON complaints(submitted_at);
	CREATE INDEX IF NOT EXISTS idx_complaints_borough ON complaints(borough);
	CREATE INDEX IF NOT EXISTS idx_complaints_type ON complaints(complaint_type);

	CREATE TABLE IF NOT EXISTS embeddings (
		model TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		document_type TEXT NOT NULL,
		document_id TEXT NOT NULL,
		content TEXT NOT NULL,
		vector BLOB NOT NULL,
		dimensions INTEGER NOT NULL,
		metadata TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (model, content_hash)
	);

	CREATE TABLE IF NOT EXISTS document_embeddings (
		document_type TEXT NOT NULL,
		document_id TEXT NOT NULL,
		model TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		metadata TEXT,
		document_time TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (document_type, document_id, model),
		FOREIGN KEY (model, content_hash) REFERENCES embeddings(model, content_hash)
	);

	CREATE INDEX IF NOT EXISTS idx_document_embeddings_hash ON document_embeddings(model, content_hash);

	CREATE TABLE IF NOT EXISTS complaint_analyses (
		complaint_id TEXT PRIMARY KEY,
		risk_score REAL NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',
		method TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

const complaintColumns = `id, complaint_type, descriptor, borough, incident_address, city, agency, agency_name,
	status, risk_score, latitude, longitude, submitted_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComplaint(row rowScanner) (*models.Complaint, error) {
	var c models.Complaint
	var risk, lat, lng sql.NullFloat64
	if err := row.Scan(&c.ID, &c.ComplaintType, &c.Descriptor, &c.Borough, &c.IncidentAddress, &c.City,
		&c.Agency, &c.AgencyName, &c.Status, &risk, &lat, &lng, &c.SubmittedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.RiskScore = nullableFloat(risk)
	c.Latitude = nullableFloat(lat)
	c.Longitude = nullableFloat(lng)
	return &c, nil
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func floatArg(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// UpsertComplaint inserts or replaces a complaint. Replacing drops its embedding links so the
// next ingest or backfill re-embeds the new text.
func (s *SQLiteStorage) UpsertComplaint(ctx context.Context, c *models.Complaint) error {
	if c.ID == "" {
		return apperrors.NewValidationError("id", "complaint id is required")
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.SubmittedAt.IsZero() {
		c.SubmittedAt = now
	}
	c.SubmittedAt = c.SubmittedAt.UTC().Truncate(time.Second)
	c.Borough = strings.ToUpper(strings.TrimSpace(c.Borough))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM document_embeddings WHERE document_type = ? AND document_id = ?`,
		models.DocumentComplaint, c.ID); err != nil {
		return fmt.Errorf("failed to clear embedding links: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO complaints (`+complaintColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			complaint_type = excluded.complaint_type, descriptor = excluded.descriptor,
			borough = excluded.borough, incident_address = excluded.incident_address,
			city = excluded.city, agency = excluded.agency, agency_name = excluded.agency_name,
			status = excluded.status, risk_score = excluded.risk_score,
			latitude = excluded.latitude, longitude = excluded.longitude,
			submitted_at = excluded.submitted_at, updated_at = excluded.updated_at`,
		c.ID, c.ComplaintType, c.Descriptor, c.Borough, c.IncidentAddress, c.City, c.Agency, c.AgencyName,
		c.Status, floatArg(c.RiskScore), floatArg(c.Latitude), floatArg(c.Longitude),
		c.SubmittedAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert complaint: %w", err)
	}
	return tx.Commit()
}

// GetComplaint returns a complaint by ID.
func (s *SQLiteStorage) GetComplaint(ctx context.Context, id string) (*models.Complaint, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+complaintColumns+` FROM complaints WHERE id = ?`, id)
	c, err := scanComplaint(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound("complaint", id)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FetchByID returns the complaint behind a ranked result.
func (s *SQLiteStorage) FetchByID(ctx context.Context, docType models.DocumentType, id string) (*models.Complaint, error) {
	if docType != models.DocumentComplaint {
		return nil, apperrors.NewNotFound(string(docType), id)
	}
	return s.GetComplaint(ctx, id)
}

// DeleteComplaint removes a complaint, its analysis and their embedding links. Shared
// embeddings stay cached.
func (s *SQLiteStorage) DeleteComplaint(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM complaints WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFound("complaint", id)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM document_embeddings WHERE document_type IN (?, ?) AND document_id = ?`,
		models.DocumentComplaint, models.DocumentAnalysis, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM complaint_analyses WHERE complaint_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// ListComplaints returns complaints with offset and limit, newest first.
func (s *SQLiteStorage) ListComplaints(ctx context.Context, offset, limit int) ([]*models.Complaint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+complaintColumns+` FROM complaints ORDER BY submitted_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	return collectComplaints(rows)
}

// FindComplaints returns complaints passing every filter, newest first.
func (s *SQLiteStorage) FindComplaints(ctx context.Context, filters models.Filters, limit int) ([]*models.Complaint, error) {
	where, args := filterClause(filters)
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+complaintColumns+` FROM complaints`+where+` ORDER BY submitted_at DESC, id LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query complaints: %w", err)
	}
	return collectComplaints(rows)
}

// textColumns are the columns the field scorer reads. A term matching any of them keeps the row.
var textColumns = []string{"complaint_type", "descriptor", "borough", "incident_address", "city", "agency", "agency_name"}

// FindComplaintsMatching is FindComplaints narrowed to rows where at least one term is a
// case-insensitive substring of a scored text column. The text predicate is applied before the
// limit, so old matches are not crowded out by newer non-matching rows. No terms means no text
// predicate.
func (s *SQLiteStorage) FindComplaintsMatching(ctx context.Context, filters models.Filters, terms []string, limit int) ([]*models.Complaint, error) {
	where, args := filterClause(filters)
	if text, textArgs := textClause(terms); text != "" {
		if where == "" {
			where = " WHERE " + text
		} else {
			where += " AND " + text
		}
		args = append(args, textArgs...)
	}
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+complaintColumns+` FROM complaints`+where+` ORDER BY submitted_at DESC, id LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query matching complaints: %w", err)
	}
	return collectComplaints(rows)
}

func textClause(terms []string) (string, []any) {
	var conds []string
	var args []any
	seen := make(map[string]bool, len(terms))
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" || seen[term] {
			continue
		}
		seen[term] = true
		pattern := "%" + escapeLike(term) + "%"
		for _, col := range textColumns {
			conds = append(conds, `LOWER(`+col+`) LIKE ? ESCAPE '\'`)
			args = append(args, pattern)
		}
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "(" + strings.Join(conds, " OR ") + ")", args
}

// CountComplaints groups matching complaints by groupBy.
func (s *SQLiteStorage) CountComplaints(ctx context.Context, filters models.Filters, groupBy models.GroupBy) ([]models.GroupCount, int, error) {
	expr, ok := groupExpressions[groupBy]
	if !ok {
		return nil, 0, apperrors.NewValidationError("group_by", fmt.Sprintf("cannot group by %q", groupBy))
	}
	where, args := filterClause(filters)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+expr+` AS grp, COUNT(*) AS n FROM complaints`+where+
			` GROUP BY grp ORDER BY n DESC, grp`,
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count complaints: %w", err)
	}
	defer rows.Close()

	var groups []models.GroupCount
	total := 0
	for rows.Next() {
		var g models.GroupCount
		var key sql.NullString
		if err := rows.Scan(&key, &g.Count); err != nil {
			return nil, 0, err
		}
		g.Key = key.String
		if g.Key == "" {
			g.Key = "Unspecified"
		}
		total += g.Count
		groups = append(groups, g)
	}
	return groups, total, rows.Err()
}

var groupExpressions = map[models.GroupBy]string{
	models.GroupByBorough:       "borough",
	models.GroupByComplaintType: "complaint_type",
	models.GroupByAgency:        "agency",
	models.GroupByStatus:        "status",
	models.GroupByMonth:         "substr(submitted_at, 1, 7)",
}

// ListComplaintsWithoutEmbedding returns complaints that have no embedding link for model, oldest first.
func (s *SQLiteStorage) ListComplaintsWithoutEmbedding(ctx context.Context, model string, limit int) ([]*models.Complaint, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+complaintColumns+` FROM complaints c
		 WHERE NOT EXISTS (
			SELECT 1 FROM document_embeddings d
			WHERE d.document_type = ? AND d.document_id = c.id AND d.model = ?
		 )
		 ORDER BY submitted_at, id LIMIT ?`,
		models.DocumentComplaint, model, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list backlog: %w", err)
	}
	return collectComplaints(rows)
}

// CountAllComplaints returns the total number of complaints.
func (s *SQLiteStorage) CountAllComplaints(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM complaints`).Scan(&count)
	return count, err
}

func collectComplaints(rows *sql.Rows) ([]*models.Complaint, error) {
	defer rows.Close()
	var out []*models.Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// filterClause renders filters as a WHERE clause. Unset fields add nothing.
func filterClause(f models.Filters) (string, []any) {
	var conds []string
	var args []any
	if f.ComplaintType != "" {
		conds = append(conds, `LOWER(complaint_type) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(f.ComplaintType))+"%")
	}
	if f.Borough != "" {
		conds = append(conds, `borough = ?`)
		args = append(args, strings.ToUpper(string(f.Borough)))
	}
	if f.Status != "" {
		conds = append(conds, `LOWER(status) = LOWER(?)`)
		args = append(args, f.Status)
	}
	if f.Agency != "" {
		conds = append(conds, `LOWER(agency) = LOWER(?)`)
		args = append(args, f.Agency)
	}
	if f.From != nil {
		conds = append(conds, `submitted_at >= ?`)
		args = append(args, f.From.UTC())
	}
	if f.To != nil {
		conds = append(conds, `submitted_at < ?`)
		args = append(args, f.To.UTC())
	}
	if f.RiskLevel != "" {
		lo, hi := f.RiskLevel.Bounds()
		conds = append(conds, `risk_score IS NOT NULL AND risk_score >= ?`)
		args = append(args, lo)
		if hi > 0 {
			conds = append(conds, `risk_score < ?`)
			args = append(args, hi)
		}
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
