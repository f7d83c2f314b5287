package intent

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/civicrag/internal/models"
	"github.com/hyperjump/civicrag/pkg/utils"
)

// Rule-path confidences. They stay below typical LLM confidence so callers can tell the paths apart.
const (
	confidenceNegative    = 0.6
	confidenceStatistical = 0.55
	confidenceSearch      = 0.5
	confidenceDefault     = 0.3

	defaultTimeout = 15 * time.Second
)

// Classifier maps a question to a QueryIntent.
type Classifier struct {
	llm     LLM
	rules   atomic.Pointer[RuleSet]
	timeout time.Duration
	logger  *zap.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLLM enables the LLM path. A nil LLM leaves the classifier rule-only.
func WithLLM(llm LLM) Option {
	return func(c *Classifier) { c.llm = llm }
}

// WithTimeout bounds each LLM call.
func WithTimeout(d time.Duration) Option {
	return func(c *Classifier) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRules replaces the default rule set.
func WithRules(r *RuleSet) Option {
	return func(c *Classifier) {
		if r != nil {
			c.rules.Store(r)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Classifier) { c.logger = utils.LoggerOrNop(l) }
}

// NewClassifier creates a classifier using DefaultRules unless WithRules is given.
func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{timeout: defaultTimeout, logger: zap.NewNop()}
	c.rules.Store(DefaultRules())
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Rules returns the active rule set.
func (c *Classifier) Rules() *RuleSet {
	return c.rules.Load()
}

// SetRules swaps the active rule set. In-flight classifications finish with the old one.
func (c *Classifier) SetRules(r *RuleSet) {
	if r != nil {
		c.rules.Store(r)
	}
}

// Classify never fails. LLM errors and malformed answers fall back to the rules.
func (c *Classifier) Classify(ctx context.Context, question string) models.QueryIntent {
	rules := c.Rules()
	text := words(question)

	if p, ok := firstPhrase(text, rules.NegativePatterns); ok {
		return models.QueryIntent{
			Kind:       models.IntentGeneralConversation,
			Confidence: confidenceNegative,
			Reasoning:  fmt.Sprintf("matched negative pattern %q", p),
			Source:     models.IntentSourceRules,
		}
	}

	if c.llm != nil {
		got, err := c.classifyLLM(ctx, question)
		if err == nil {
			return got
		}
		c.logger.Warn("llm classification failed, using rules",
			zap.String("provider", c.llm.Name()), zap.Error(err))
	}
	return rules.classify(text)
}

func (c *Classifier) classifyLLM(ctx context.Context, question string) (models.QueryIntent, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	raw, err := c.llm.Complete(ctx, systemPrompt, question)
	if err != nil {
		return models.QueryIntent{}, err
	}
	return parseAnswer(c.llm.Name(), raw)
}

// classify runs the rule path on already-split words. Negative patterns are checked by the caller.
func (r *RuleSet) classify(text []string) models.QueryIntent {
	params := r.extract(text)

	if p, ok := firstPhrase(text, r.StatisticalPhrases); ok {
		_, domain := firstPhrase(text, r.DomainVocabulary)
		if domain || params.Borough != "" || params.ComplaintType != "" {
			return models.QueryIntent{
				Kind:       models.IntentStatisticalAnalysis,
				Parameters: params,
				Confidence: confidenceStatistical,
				Reasoning:  fmt.Sprintf("statistical phrasing %q about complaint data", p),
				Source:     models.IntentSourceRules,
			}
		}
	}
	if p, ok := firstPhrase(text, r.SearchPhrases); ok {
		return models.QueryIntent{
			Kind:       models.IntentSearchComplaints,
			Parameters: params,
			Confidence: confidenceSearch,
			Reasoning:  fmt.Sprintf("search phrasing %q", p),
			Source:     models.IntentSourceRules,
		}
	}
	return models.QueryIntent{
		Kind:       models.IntentGeneralConversation,
		Confidence: confidenceDefault,
		Reasoning:  "no rule matched",
		Source:     models.IntentSourceRules,
	}
}
