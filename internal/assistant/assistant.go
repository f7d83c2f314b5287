// Package assistant answers free-form questions by classifying them and routing
// to hybrid search, statistical analysis or a help message.
package assistant

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/civicrag/internal/apperrors"
	"github.com/hyperjump/civicrag/internal/models"
	"github.com/hyperjump/civicrag/pkg/utils"
)

// Classifier detects the intent of a question. intent.Classifier implements it.
type Classifier interface {
	Classify(ctx context.Context, question string) models.QueryIntent
}

// Searcher runs hybrid search. search.Engine implements it.
type Searcher interface {
	Search(ctx context.Context, query string, filters models.Filters, opts models.SearchOptions) (*models.SearchResponse, error)
}

// Analyzer answers statistical questions. analysis.Analyzer implements it.
type Analyzer interface {
	Analyze(ctx context.Context, params models.IntentParameters) (*models.StatsResult, error)
}

// HelpMessage is returned for general conversation.
const HelpMessage = `I can search and summarize NYC 311 service complaints. Try asking:
- "Show me noise complaints in Brooklyn"
- "Find urgent heating complaints in the Bronx from last week"
- "Which borough has the most complaints?"
- "How many water complaints were filed this month?"`

// AskOptions tunes one question.
type AskOptions struct {
	Limit int `json:"limit,omitempty"`
	// Filters set here override the ones extracted from the question.
	Filters models.Filters `json:"filters,omitempty"`
}

// AskResponse carries the intent and exactly one of Search, Stats or Message. Answer is set
// next to Search when an answerer is configured and the LLM replied.
type AskResponse struct {
	Question   string                 `json:"question"`
	Intent     models.QueryIntent     `json:"intent"`
	Search     *models.SearchResponse `json:"search,omitempty"`
	Answer     string                 `json:"answer,omitempty"`
	Stats      *models.StatsResult    `json:"stats,omitempty"`
	Message    string                 `json:"message,omitempty"`
	DurationMs int64                  `json:"duration_ms"`
}

// Assistant routes questions to search, statistics or help.
type Assistant struct {
	classifier    Classifier
	search        Searcher
	analyzer      Analyzer
	answerer      LLM
	answerTimeout time.Duration
	now           func() time.Time
	logger        *zap.Logger
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Assistant) { a.logger = utils.LoggerOrNop(l) }
}

// WithClock sets the reference time for relative date filters.
func WithClock(now func() time.Time) Option {
	return func(a *Assistant) {
		if now != nil {
			a.now = now
		}
	}
}

// New creates an Assistant. Without WithAnswerer, search answers carry results only.
func New(classifier Classifier, search Searcher, analyzer Analyzer, opts ...Option) *Assistant {
	a := &Assistant{
		classifier:    classifier,
		search:        search,
		analyzer:      analyzer,
		answerTimeout: defaultAnswerTimeout,
		now:           time.Now,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ask classifies question and answers it on the matching path.
func (a *Assistant) Ask(ctx context.Context, question string, opts AskOptions) (*AskResponse, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperrors.NewValidationError("question", "question is required")
	}
	start := time.Now()
	intent := a.classifier.Classify(ctx, question)
	resp := &AskResponse{Question: question, Intent: intent}

	a.logger.Debug("assistant routing",
		zap.String("intent", string(intent.Kind)),
		zap.String("source", string(intent.Source)),
		zap.Float64("confidence", intent.Confidence))

	switch intent.Kind {
	case models.IntentSearchComplaints:
		filters := merge(intent.Parameters.Filters(a.now()), opts.Filters)
		res, err := a.search.Search(ctx, question, filters, models.SearchOptions{
			Limit:           opts.Limit,
			IncludeFallback: true,
		})
		if err != nil {
			return nil, err
		}
		resp.Search = res
		resp.Answer = a.answer(ctx, question, res.Results)
	case models.IntentStatisticalAnalysis:
		stats, err := a.analyzer.Analyze(ctx, intent.Parameters)
		if err != nil {
			return nil, err
		}
		resp.Stats = stats
	default:
		resp.Message = HelpMessage
	}
	resp.DurationMs = time.Since(start).Milliseconds()
	return resp, nil
}

// merge overlays the non-empty fields of override on base.
func merge(base, override models.Filters) models.Filters {
	if override.ComplaintType != "" {
		base.ComplaintType = override.ComplaintType
	}
	if override.Borough != "" {
		base.Borough = override.Borough
	}
	if override.Status != "" {
		base.Status = override.Status
	}
	if override.Agency != "" {
		base.Agency = override.Agency
	}
	if override.From != nil {
		base.From = override.From
	}
	if override.To != nil {
		base.To = override.To
	}
	if override.RiskLevel != "" {
		base.RiskLevel = override.RiskLevel
	}
	if override.DocumentType != "" {
		base.DocumentType = override.DocumentType
	}
	return base
}
