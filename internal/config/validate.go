package config

import (
	"fmt"

	"github.com/hyperjump/civicrag/internal/apperrors"
	"github.com/hyperjump/civicrag/internal/ranking"
)

// Validate checks cfg for values the engine cannot run with.
// The first problem found is returned as a *apperrors.ConfigurationError.
func Validate(cfg *Config) error {
	s := cfg.Search
	if s.VectorWeight < 0 {
		return apperrors.NewConfigurationError("search.vector_weight", "must be >= 0")
	}
	if s.MetadataWeight < 0 {
		return apperrors.NewConfigurationError("search.metadata_weight", "must be >= 0")
	}
	if s.VectorWeight == 0 && s.MetadataWeight == 0 {
		return apperrors.NewConfigurationError("search", "vector_weight and metadata_weight cannot both be 0")
	}
	if s.SimilarityThreshold < 0 || s.SimilarityThreshold > 1 {
		return apperrors.NewConfigurationError("search.similarity_threshold", fmt.Sprintf("%v is outside [0, 1]", s.SimilarityThreshold))
	}
	if s.DefaultLimit <= 0 || s.MaxLimit <= 0 || s.DefaultLimit > s.MaxLimit {
		return apperrors.NewConfigurationError("search.default_limit", "must be positive and not above max_limit")
	}
	if s.QueryTimeout < 0 {
		return apperrors.NewConfigurationError("search.query_timeout", "must not be negative")
	}
	if err := validateRerank(s.Rerank); err != nil {
		return err
	}

	e := cfg.Embedding
	switch e.Provider {
	case ProviderOpenAI:
		if e.APIKey == "" {
			return apperrors.NewConfigurationError("embedding.api_key", "required for the openai provider (or set OPENAI_API_KEY)")
		}
	case ProviderOllama, ProviderMock:
	default:
		return apperrors.NewConfigurationError("embedding.provider", fmt.Sprintf("unknown provider %q", e.Provider))
	}
	if e.Dimensions <= 0 {
		return apperrors.NewConfigurationError("embedding.dimensions", "must be > 0")
	}
	if e.Model == "" {
		return apperrors.NewConfigurationError("embedding.model", "is required")
	}
	if e.RequestsPerSecond < 0 {
		return apperrors.NewConfigurationError("embedding.requests_per_second", "must not be negative")
	}

	c := cfg.Classifier
	switch c.Provider {
	case ProviderAnthropic, ProviderOpenAI:
		if c.APIKey == "" {
			return apperrors.NewConfigurationError("classifier.api_key", fmt.Sprintf("required for the %s provider", c.Provider))
		}
	case ProviderNone:
	default:
		return apperrors.NewConfigurationError("classifier.provider", fmt.Sprintf("unknown provider %q", c.Provider))
	}

	v := cfg.Vector
	switch v.IndexType {
	case IndexMemory:
	case IndexPGVector:
		if v.PostgresDSN == "" {
			return apperrors.NewConfigurationError("vector.postgres_dsn", "required for the pgvector index")
		}
	case IndexQdrant:
		if v.QdrantAddr == "" {
			return apperrors.NewConfigurationError("vector.qdrant_addr", "required for the qdrant index")
		}
	default:
		return apperrors.NewConfigurationError("vector.index_type", fmt.Sprintf("unknown index type %q", v.IndexType))
	}

	if cfg.Pipeline.BatchSize <= 0 {
		return apperrors.NewConfigurationError("pipeline.batch_size", "must be > 0")
	}
	if cfg.Pipeline.ChunkDelay < 0 {
		return apperrors.NewConfigurationError("pipeline.chunk_delay", "must not be negative")
	}
	return nil
}

func validateRerank(r ranking.RerankConfig) error {
	if r.CategoryBonus < 0 {
		return apperrors.NewConfigurationError("search.rerank.category_bonus", "must be >= 0")
	}
	if r.HighRiskBonus < 0 {
		return apperrors.NewConfigurationError("search.rerank.high_risk_bonus", "must be >= 0")
	}
	if r.HighRiskThreshold < 0 || r.HighRiskThreshold > 1 {
		return apperrors.NewConfigurationError("search.rerank.high_risk_threshold", fmt.Sprintf("%v is outside [0, 1]", r.HighRiskThreshold))
	}
	if r.DiversityThreshold < 0 || r.DiversityThreshold > 1 {
		return apperrors.NewConfigurationError("search.rerank.diversity_threshold", fmt.Sprintf("%v is outside [0, 1]", r.DiversityThreshold))
	}
	return nil
}
