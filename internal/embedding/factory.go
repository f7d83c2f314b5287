package embedding

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/civicrag/internal/config"
)

// NewProvider builds the configured provider wrapped with timeout, retry, rate limit and breaker.
func NewProvider(cfg config.EmbeddingConfig, logger *zap.Logger) (*ResilientProvider, error) {
	var base Provider
	switch cfg.Provider {
	case config.ProviderOpenAI:
		base = NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimensions)
	case config.ProviderOllama:
		base = NewOllamaProvider(cfg.BaseURL, cfg.Model, cfg.Dimensions)
	case config.ProviderMock:
		base = NewMockEmbedder(cfg.Dimensions).WithModel(cfg.Model)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %q", cfg.Provider)
	}
	return NewResilientProvider(base,
		WithTimeout(cfg.Timeout),
		WithRetries(cfg.MaxRetries, 0),
		WithRateLimit(cfg.RequestsPerSecond),
		WithBreaker(NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown)),
		WithResilienceLogger(logger),
	), nil
}
