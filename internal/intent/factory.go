package intent

import (
	"go.uber.org/zap"

	"github.com/hyperjump/civicrag/internal/apperrors"
	"github.com/hyperjump/civicrag/internal/config"
)

// NewLLM returns the client selected by cfg.Provider, or nil for the none provider.
func NewLLM(cfg config.ClassifierConfig) (LLM, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		return NewAnthropicLLM(cfg.APIKey, cfg.Model, cfg.MaxTokens), nil
	case config.ProviderOpenAI:
		return NewOpenAILLM(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.MaxTokens), nil
	case config.ProviderNone, "":
		return nil, nil
	}
	return nil, apperrors.NewConfigurationError("classifier.provider", "unknown provider "+cfg.Provider)
}

// NewFromConfig builds a classifier with the configured LLM and rule file.
func NewFromConfig(cfg config.ClassifierConfig, logger *zap.Logger) (*Classifier, error) {
	llm, err := NewLLM(cfg)
	if err != nil {
		return nil, err
	}
	rules := DefaultRules()
	if cfg.RulesPath != "" {
		if rules, err = LoadRules(cfg.RulesPath); err != nil {
			return nil, err
		}
	}
	return NewClassifier(
		WithLLM(llm),
		WithRules(rules),
		WithTimeout(cfg.Timeout),
		WithLogger(logger),
	), nil
}
