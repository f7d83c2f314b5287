package config

import (
	"os"
	"time"
)

// Provider and index names accepted in the config file.
const (
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderMock      = "mock"
	ProviderAnthropic = "anthropic"
	ProviderNone      = "none"

	IndexMemory   = "memory"
	IndexPGVector = "pgvector"
	IndexQdrant   = "qdrant"
)

// DefaultSimilarityThreshold is the vector similarity cutoff used when the config file omits
// search.similarity_threshold. Zero is a valid threshold, so Load seeds it before parsing
// instead of ApplyDefaults filling a zero value.
const DefaultSimilarityThreshold = 0.5

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/civicrag/data/db/complaints.db"
	}
	if cfg.Storage.KeywordIndexPath == "" {
		cfg.Storage.KeywordIndexPath = "/usr/local/var/civicrag/data/indices/bleve"
	}

	applyEmbeddingDefaults(&cfg.Embedding)
	applyClassifierDefaults(&cfg.Classifier)

	// Both weights unset means the stock 0.7/0.3 split; a single explicit zero is kept.
	if cfg.Search.VectorWeight == 0 && cfg.Search.MetadataWeight == 0 {
		cfg.Search.VectorWeight = 0.7
		cfg.Search.MetadataWeight = 0.3
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.QueryTimeout == 0 {
		cfg.Search.QueryTimeout = 30 * time.Second
	}
	if cfg.Search.TopKCandidates == 0 {
		cfg.Search.TopKCandidates = 100
	}
	if cfg.Search.MetadataCandidates == 0 {
		cfg.Search.MetadataCandidates = 1000
	}
	if cfg.Search.RelaxedCandidates == 0 {
		cfg.Search.RelaxedCandidates = 200
	}

	if cfg.Vector.IndexType == "" {
		cfg.Vector.IndexType = IndexMemory
	}
	if cfg.Vector.QdrantCollection == "" {
		cfg.Vector.QdrantCollection = "complaint_embeddings"
	}

	if cfg.Pipeline.BatchSize == 0 {
		cfg.Pipeline.BatchSize = 50
	}
	if cfg.Pipeline.ChunkDelay == 0 {
		cfg.Pipeline.ChunkDelay = 500 * time.Millisecond
	}

	if cfg.Messaging.IngestSubject == "" {
		cfg.Messaging.IngestSubject = "complaints.ingest"
	}
	if cfg.Messaging.EventsSubject == "" {
		cfg.Messaging.EventsSubject = "embeddings.created"
	}
}

func applyEmbeddingDefaults(e *EmbeddingConfig) {
	if e.Provider == "" {
		e.Provider = ProviderOpenAI
	}
	switch e.Provider {
	case ProviderOpenAI:
		if e.Model == "" {
			e.Model = "text-embedding-3-small"
		}
		if e.Dimensions == 0 {
			e.Dimensions = 1536
		}
		if e.APIKey == "" {
			e.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	case ProviderOllama:
		if e.Model == "" {
			e.Model = "nomic-embed-text"
		}
		if e.Dimensions == 0 {
			e.Dimensions = 768
		}
		if e.BaseURL == "" {
			e.BaseURL = "http://localhost:11434"
		}
	case ProviderMock:
		if e.Model == "" {
			e.Model = "mock"
		}
		if e.Dimensions == 0 {
			e.Dimensions = 384
		}
	}
	if e.Timeout == 0 {
		e.Timeout = 30 * time.Second
	}
	if e.MaxRetries == 0 {
		e.MaxRetries = 3
	}
	if e.BreakerThreshold == 0 {
		e.BreakerThreshold = 5
	}
	if e.BreakerCooldown == 0 {
		e.BreakerCooldown = 30 * time.Second
	}
	if e.QueryCacheSize == 0 {
		e.QueryCacheSize = 1000
	}
}

func applyClassifierDefaults(c *ClassifierConfig) {
	if c.Provider == "" {
		c.Provider = ProviderNone
	}
	switch c.Provider {
	case ProviderAnthropic:
		if c.Model == "" {
			c.Model = "claude-3-5-haiku-latest"
		}
		if c.APIKey == "" {
			c.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	case ProviderOpenAI:
		if c.Model == "" {
			c.Model = "gpt-4o-mini"
		}
		if c.APIKey == "" {
			c.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if c.Timeout == 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 512
	}
}
