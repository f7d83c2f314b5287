// Package vector provides vector indexes keyed by embedding content hash and the vector retriever.
package vector

import "context"

// VectorIndex stores one vector per content hash and answers cosine similarity queries.
// Adding an existing id replaces its vector.
type VectorIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Remove(ctx context.Context, ids []string) error
	Save(path string) error
	Load(path string) error
	Size() int
	Close() error
}

// VectorResult is a single vector search hit. ID is the content hash.
type VectorResult struct {
	ID    string
	Score float64 // cosine similarity clipped to [0,1]
}
