package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hyperjump/civicrag/internal/apperrors"
)

// scriptedProvider fails with the queued errors before succeeding.
type scriptedProvider struct {
	*MockEmbedder
	errs  []error
	calls int
	block bool
}

func (p *scriptedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.calls++
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		return nil, err
	}
	return p.MockEmbedder.Embed(ctx, text)
}

func unavailable() error {
	return apperrors.NewProviderUnavailable("mock", apperrors.FailureUnavailable, errors.New("503"))
}

func TestResilientProvider_RetriesTransientFailures(t *testing.T) {
	inner := &scriptedProvider{MockEmbedder: NewMockEmbedder(4), errs: []error{unavailable(), unavailable()}}
	p := NewResilientProvider(inner, WithRetries(3, time.Millisecond))

	v, err := p.Embed(context.Background(), "text")
	if err != nil {
		t.Fatal(err)
	}
	if len(v) != 4 || inner.calls != 3 {
		t.Errorf("len=%d calls=%d, want 4 and 3", len(v), inner.calls)
	}
}

func TestResilientProvider_DoesNotRetryMalformed(t *testing.T) {
	inner := &scriptedProvider{
		MockEmbedder: NewMockEmbedder(4),
		errs:         []error{apperrors.NewMalformedResponse("mock", "bad json", nil)},
	}
	p := NewResilientProvider(inner, WithRetries(3, time.Millisecond))

	_, err := p.Embed(context.Background(), "text")
	if !errors.Is(err, apperrors.ErrMalformedResponse) {
		t.Fatalf("err = %v, want ErrMalformedResponse", err)
	}
	if inner.calls != 1 {
		t.Errorf("calls = %d, want 1", inner.calls)
	}
}

func TestResilientProvider_Timeout(t *testing.T) {
	inner := &scriptedProvider{MockEmbedder: NewMockEmbedder(4), block: true}
	p := NewResilientProvider(inner, WithTimeout(10*time.Millisecond), WithRetries(0, 0))

	_, err := p.Embed(context.Background(), "text")
	var pe *apperrors.ProviderUnavailableError
	if !errors.As(err, &pe) || pe.Failure != apperrors.FailureTimeout {
		t.Fatalf("err = %v, want timeout failure", err)
	}
}

func TestResilientProvider_BreakerOpens(t *testing.T) {
	inner := &scriptedProvider{
		MockEmbedder: NewMockEmbedder(4),
		errs:         []error{unavailable(), unavailable(), unavailable()},
	}
	p := NewResilientProvider(inner, WithRetries(0, 0), WithBreaker(NewBreaker(2, time.Hour)))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := p.Embed(ctx, "text"); err == nil {
			t.Fatal("expected failure")
		}
	}
	if p.BreakerState() != BreakerOpen {
		t.Fatalf("state = %v, want open", p.BreakerState())
	}

	_, err := p.Embed(ctx, "text")
	var pe *apperrors.ProviderUnavailableError
	if !errors.As(err, &pe) || pe.Failure != apperrors.FailureCircuitOpen {
		t.Fatalf("err = %v, want circuit_open", err)
	}
	if inner.calls != 2 {
		t.Errorf("calls = %d, want 2 (open breaker must not call through)", inner.calls)
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBreaker(1, time.Minute)
	b.now = func() time.Time { return now }
	ctx := context.Background()
	fail := func(context.Context) error { return errors.New("fail") }
	ok := func(context.Context) error { return nil }

	_ = b.Call(ctx, fail)
	if b.State() != BreakerOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	if err := b.Call(ctx, ok); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}

	now = now.Add(time.Minute)
	if b.State() != BreakerHalfOpen {
		t.Fatalf("state = %v, want half-open", b.State())
	}
	if err := b.Call(ctx, ok); err != nil {
		t.Fatal(err)
	}
	if b.State() != BreakerClosed {
		t.Errorf("state = %v, want closed", b.State())
	}

	_ = b.Call(ctx, fail)
	now = now.Add(time.Minute)
	_ = b.Call(ctx, fail)
	if b.State() != BreakerOpen {
		t.Errorf("failed trial call should reopen, got %v", b.State())
	}
}
