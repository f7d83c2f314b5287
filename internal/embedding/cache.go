package embedding

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedProvider memoizes query embeddings in an LRU keyed by normalized text.
// Query text is not persisted; documents go through Store instead.
type CachedProvider struct {
	Provider
	cache *lru.Cache[string, []float32]
}

// NewCachedProvider wraps p with an LRU of the given capacity.
func NewCachedProvider(p Provider, capacity int) (*CachedProvider, error) {
	if capacity <= 0 {
		capacity = 1000
	}
	cache, err := lru.New[string, []float32](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}
	return &CachedProvider{Provider: p, cache: cache}, nil
}

// Embed returns the cached vector for text, calling the wrapped provider on a miss.
// Failures are not cached.
func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := Normalize(text)
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}
	v, err := c.Provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, v)
	return v, nil
}

// Len returns the number of cached queries.
func (c *CachedProvider) Len() int {
	return c.cache.Len()
}
