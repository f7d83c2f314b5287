package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/civicrag/internal/apperrors"
)

// ResilientProvider wraps a Provider with a per-call timeout, a rate limit, retries with
// exponential backoff and a circuit breaker.
type ResilientProvider struct {
	next           Provider
	timeout        time.Duration
	maxRetries     int
	initialBackoff time.Duration
	limiter        *rate.Limiter
	breaker        *Breaker
	logger         *zap.Logger
}

// ResilientOption configures a ResilientProvider.
type ResilientOption func(*ResilientProvider)

// WithTimeout bounds each provider call.
func WithTimeout(d time.Duration) ResilientOption {
	return func(r *ResilientProvider) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithRetries sets how many times a retryable failure is retried and the first backoff interval.
func WithRetries(n int, initial time.Duration) ResilientOption {
	return func(r *ResilientProvider) {
		r.maxRetries = n
		if initial > 0 {
			r.initialBackoff = initial
		}
	}
}

// WithRateLimit caps calls per second. rps <= 0 disables limiting.
func WithRateLimit(rps float64) ResilientOption {
	return func(r *ResilientProvider) {
		if rps > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithBreaker sets the circuit breaker.
func WithBreaker(b *Breaker) ResilientOption {
	return func(r *ResilientProvider) {
		if b != nil {
			r.breaker = b
		}
	}
}

// WithResilienceLogger sets the logger used for retry diagnostics.
func WithResilienceLogger(l *zap.Logger) ResilientOption {
	return func(r *ResilientProvider) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResilientProvider wraps next.
func NewResilientProvider(next Provider, opts ...ResilientOption) *ResilientProvider {
	r := &ResilientProvider{
		next:           next,
		timeout:        30 * time.Second,
		maxRetries:     3,
		initialBackoff: 500 * time.Millisecond,
		breaker:        NewBreaker(5, 30*time.Second),
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Embed calls the wrapped provider. Every failure is returned as a typed provider error.
func (r *ResilientProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	attempt := 0
	op := func() error {
		attempt++
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(apperrors.NewProviderUnavailable(r.Model(), apperrors.FailureTimeout, err))
			}
		}
		err := r.breaker.Call(ctx, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			v, err := r.next.Embed(callCtx, text)
			if err != nil {
				return err
			}
			out = v
			return nil
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrCircuitOpen) {
			return backoff.Permanent(apperrors.NewProviderUnavailable(r.Model(), apperrors.FailureCircuitOpen, err))
		}
		err = classifyProviderError(r.Model(), err)
		var unavailable *apperrors.ProviderUnavailableError
		if errors.As(err, &unavailable) && unavailable.Retryable() && ctx.Err() == nil {
			r.logger.Debug("embedding call failed, retrying",
				zap.String("model", r.Model()), zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.initialBackoff
	policy.MaxElapsedTime = 0
	var b backoff.BackOff = backoff.WithMaxRetries(policy, uint64(max(r.maxRetries, 0)))
	b = backoff.WithContext(b, ctx)

	if err := backoff.Retry(op, b); err != nil {
		return nil, classifyProviderError(r.Model(), err)
	}
	return out, nil
}

// Dimensions returns the wrapped provider's dimension.
func (r *ResilientProvider) Dimensions() int { return r.next.Dimensions() }

// Model returns the wrapped provider's model.
func (r *ResilientProvider) Model() string { return r.next.Model() }

// Close closes the wrapped provider.
func (r *ResilientProvider) Close() error { return r.next.Close() }

// BreakerState exposes the breaker for status reporting.
func (r *ResilientProvider) BreakerState() BreakerState { return r.breaker.State() }

// classifyProviderError maps untyped failures onto the provider error taxonomy.
func classifyProviderError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, apperrors.ErrProviderUnavailable) || errors.Is(err, apperrors.ErrMalformedResponse) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.NewProviderUnavailable(provider, apperrors.FailureTimeout, err)
	}
	return apperrors.NewProviderUnavailable(provider, apperrors.FailureUnavailable, fmt.Errorf("embed: %w", err))
}
