package vector

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

const defaultPGTable = "complaint_vectors"

var tableNameRE = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// PGVectorIndex keeps vectors in a Postgres table with an HNSW cosine index.
type PGVectorIndex struct {
	db         *sql.DB
	table      string
	dimensions int
}

// NewPGVectorIndex connects to dsn and creates the vector table if needed.
func NewPGVectorIndex(ctx context.Context, dsn, table string, dimensions int) (*PGVectorIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if table == "" {
		table = defaultPGTable
	}
	if !tableNameRE.MatchString(table) {
		return nil, fmt.Errorf("invalid table name: %q", table)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	idx := &PGVectorIndex{db: db, table: table, dimensions: dimensions}
	if err := idx.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

func (p *PGVectorIndex) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			content_hash TEXT PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, p.table, p.dimensions),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_hnsw ON %s USING hnsw (embedding vector_cosine_ops)`, p.table, p.table),
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("pgvector migrate: %w", err)
		}
	}
	return nil
}

// Type returns the index type identifier.
func (p *PGVectorIndex) Type() string { return IndexTypePGVector }

// Add upserts vectors keyed by content hash.
func (p *PGVectorIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgvector add: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (content_hash, embedding, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (content_hash) DO UPDATE SET embedding = EXCLUDED.embedding, updated_at = now()`, p.table))
	if err != nil {
		return fmt.Errorf("pgvector add: %w", err)
	}
	defer stmt.Close()

	for i, id := range ids {
		if len(vectors[i]) != p.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), p.dimensions)
		}
		if _, err := stmt.ExecContext(ctx, id, pgvector.NewVector(vectors[i])); err != nil {
			return fmt.Errorf("pgvector add %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgvector add: %w", err)
	}
	return nil
}

// Search returns the k nearest hashes; score = 1 - cosine distance, clipped to [0,1].
func (p *PGVectorIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != p.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), p.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}
	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT content_hash, 1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`, p.table), pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	defer rows.Close()

	var results []*VectorResult
	for rows.Next() {
		var r VectorResult
		var score sql.NullFloat64
		if err := rows.Scan(&r.ID, &score); err != nil {
			return nil, fmt.Errorf("pgvector scan: %w", err)
		}
		r.Score = clip01(score.Float64)
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector rows: %w", err)
	}
	return results, nil
}

// Remove deletes vectors by hash.
func (p *PGVectorIndex) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE content_hash = ANY($1)`, p.table), pq.Array(ids))
	if err != nil {
		return fmt.Errorf("pgvector remove: %w", err)
	}
	return nil
}

// Save is a no-op; Postgres persists every write.
func (p *PGVectorIndex) Save(string) error { return nil }

// Load is a no-op; Postgres persists every write.
func (p *PGVectorIndex) Load(string) error { return nil }

// Size returns the row count, or 0 if the database cannot be reached.
func (p *PGVectorIndex) Size() int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var n int
	if err := p.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, p.table)).Scan(&n); err != nil {
		return 0
	}
	return n
}

// Close closes the database pool.
func (p *PGVectorIndex) Close() error {
	return p.db.Close()
}
