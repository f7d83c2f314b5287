package vector

import (
	"context"
	"fmt"

	"github.com/hyperjump/civicrag/internal/config"
)

// Index type identifiers.
const (
	// IndexTypeMemory uses in-process brute-force search. Good for small datasets (<50k vectors).
	IndexTypeMemory = config.IndexMemory
	// IndexTypePGVector stores vectors in Postgres with an HNSW cosine index.
	IndexTypePGVector = config.IndexPGVector
	// IndexTypeQdrant stores vectors in a Qdrant collection.
	IndexTypeQdrant = config.IndexQdrant
)

// NewVectorIndex creates the index selected by cfg.IndexType. An empty type means memory.
func NewVectorIndex(ctx context.Context, cfg config.VectorConfig, dimensions int) (VectorIndex, error) {
	switch cfg.IndexType {
	case IndexTypeMemory, "":
		return NewMemoryIndex(dimensions)
	case IndexTypePGVector:
		return NewPGVectorIndex(ctx, cfg.PostgresDSN, "", dimensions)
	case IndexTypeQdrant:
		return NewQdrantIndex(ctx, cfg.QdrantAddr, cfg.QdrantCollection, dimensions)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, pgvector, qdrant)", cfg.IndexType)
	}
}
