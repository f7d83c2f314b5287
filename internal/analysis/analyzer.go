// Package analysis answers statistical questions about stored complaints and assesses
// individual complaints for risk with an LLM.
package analysis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/civicrag/internal/models"
	"github.com/hyperjump/civicrag/pkg/utils"
)

// Counter groups complaints. storage.SQLiteStorage implements it.
type Counter interface {
	CountComplaints(ctx context.Context, filters models.Filters, groupBy models.GroupBy) ([]models.GroupCount, int, error)
}

// Analyzer turns intent parameters into grouped complaint counts.
type Analyzer struct {
	counter Counter
	now     func() time.Time
	logger  *zap.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Analyzer) { a.logger = utils.LoggerOrNop(l) }
}

// WithClock overrides the clock used to resolve relative time filters.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAnalyzer creates an Analyzer that counts through counter.
func NewAnalyzer(counter Counter, opts ...Option) *Analyzer {
	a := &Analyzer{counter: counter, now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze counts the complaints matching params, grouped by params.GroupBy
// (complaint type when unset).
func (a *Analyzer) Analyze(ctx context.Context, params models.IntentParameters) (*models.StatsResult, error) {
	groupBy := params.GroupBy
	if groupBy == "" {
		groupBy = models.GroupByComplaintType
	}
	filters := params.Filters(a.now())

	start := time.Now()
	groups, total, err := a.counter.CountComplaints(ctx, filters, groupBy)
	if err != nil {
		return nil, fmt.Errorf("failed to count complaints: %w", err)
	}
	if groups == nil {
		groups = []models.GroupCount{}
	}
	a.logger.Debug("analysis done",
		zap.String("group_by", string(groupBy)),
		zap.Int("groups", len(groups)),
		zap.Int("total", total),
		zap.Duration("took", time.Since(start)))

	return &models.StatsResult{
		GroupBy: groupBy,
		Groups:  groups,
		Total:   total,
		Filters: filters,
	}, nil
}
