package embedding

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

// countingProvider wraps MockEmbedder and counts Embed calls.
type countingProvider struct {
	*MockEmbedder
	calls atomic.Int64
	err   error
	vec   []float32
}

func newCountingProvider(dims int) *countingProvider {
	return &countingProvider{MockEmbedder: NewMockEmbedder(dims)}
}

func (p *countingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	if p.vec != nil {
		return p.vec, nil
	}
	return p.MockEmbedder.Embed(ctx, text)
}

func TestCachedProvider_HitsOnNormalizedText(t *testing.T) {
	inner := newCountingProvider(8)
	c, err := NewCachedProvider(inner, 2)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	a, err := c.Embed(ctx, "Noise  complaint")
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Embed(ctx, "noise complaint ")
	if err != nil {
		t.Fatal(err)
	}
	if inner.calls.Load() != 1 {
		t.Errorf("provider calls = %d, want 1", inner.calls.Load())
	}
	if len(a) != 8 || a[0] != b[0] {
		t.Errorf("cached vector differs: %v vs %v", a, b)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestCachedProvider_Evicts(t *testing.T) {
	inner := newCountingProvider(4)
	c, err := NewCachedProvider(inner, 2)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for _, q := range []string{"a", "b", "c", "a"} {
		if _, err := c.Embed(ctx, q); err != nil {
			t.Fatal(err)
		}
	}
	// "a" was evicted by "c" and had to be embedded again.
	if inner.calls.Load() != 4 {
		t.Errorf("provider calls = %d, want 4", inner.calls.Load())
	}
}

func TestCachedProvider_DoesNotCacheFailures(t *testing.T) {
	inner := newCountingProvider(4)
	inner.err = errors.New("boom")
	c, err := NewCachedProvider(inner, 10)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if _, err := c.Embed(ctx, "q"); err == nil {
		t.Fatal("expected error")
	}
	inner.err = nil
	if _, err := c.Embed(ctx, "q"); err != nil {
		t.Fatal(err)
	}
	if inner.calls.Load() != 2 {
		t.Errorf("provider calls = %d, want 2", inner.calls.Load())
	}
}
