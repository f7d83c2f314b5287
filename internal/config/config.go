// Package config provides configuration loading and structs for the civicrag services.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/civicrag/internal/ranking"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Search     SearchConfig     `yaml:"search"`
	Vector     VectorConfig     `yaml:"vector"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Messaging  MessagingConfig  `yaml:"messaging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the complaint database and the keyword index.
type StorageConfig struct {
	DatabasePath     string `yaml:"database_path"`
	KeywordIndexPath string `yaml:"keyword_index_path"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	Dimensions        int           `yaml:"dimensions"`
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	BreakerThreshold  int           `yaml:"breaker_threshold"`
	BreakerCooldown   time.Duration `yaml:"breaker_cooldown"`
	QueryCacheSize    int           `yaml:"query_cache_size"`
}

// ClassifierConfig holds settings for the intent classifier and its LLM. The same LLM
// optionally analyzes ingested complaints and writes answers over search results.
type ClassifierConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	APIKey            string        `yaml:"api_key"`
	BaseURL           string        `yaml:"base_url"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxTokens         int           `yaml:"max_tokens"`
	RulesPath         string        `yaml:"rules_path"`
	WatchRules        bool          `yaml:"watch_rules"`
	AnalyzeComplaints bool          `yaml:"analyze_complaints"`
	GenerateAnswers   bool          `yaml:"generate_answers"`
}

// SearchConfig holds hybrid search defaults.
type SearchConfig struct {
	VectorWeight        float64       `yaml:"vector_weight"`
	MetadataWeight      float64       `yaml:"metadata_weight"`
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	DefaultLimit        int           `yaml:"default_limit"`
	MaxLimit            int           `yaml:"max_limit"`
	QueryTimeout        time.Duration `yaml:"query_timeout"`
	TopKCandidates      int           `yaml:"top_k_candidates"`
	MetadataCandidates  int           `yaml:"metadata_candidates"`
	RelaxedCandidates   int           `yaml:"relaxed_candidates"`

	Rerank ranking.RerankConfig `yaml:"rerank"`
}

// VectorConfig selects the vector index backend.
type VectorConfig struct {
	IndexType        string `yaml:"index_type"`
	IndexPath        string `yaml:"index_path"`
	PostgresDSN      string `yaml:"postgres_dsn"`
	QdrantAddr       string `yaml:"qdrant_addr"`
	QdrantCollection string `yaml:"qdrant_collection"`
}

// PipelineConfig tunes the batch embedding pipeline.
type PipelineConfig struct {
	BatchSize         int           `yaml:"batch_size"`
	ChunkDelay        time.Duration `yaml:"chunk_delay"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// MessagingConfig holds the optional NATS connection. An empty URL disables messaging.
type MessagingConfig struct {
	NATSURL       string `yaml:"nats_url"`
	IngestSubject string `yaml:"ingest_subject"`
	EventsSubject string `yaml:"events_subject"`
}

// Load reads and parses the config file at path, applies defaults, expands paths and validates.
// Returns an error if the file cannot be read or parsed, or a *apperrors.ConfigurationError
// if a value is invalid.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Config{Search: SearchConfig{
		SimilarityThreshold: DefaultSimilarityThreshold,
		Rerank:              ranking.DefaultRerankConfig(),
	}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.KeywordIndexPath = expandPath(cfg.Storage.KeywordIndexPath, configDir)
	if cfg.Vector.IndexPath != "" {
		cfg.Vector.IndexPath = expandPath(cfg.Vector.IndexPath, configDir)
	}
	if cfg.Classifier.RulesPath != "" {
		cfg.Classifier.RulesPath = expandPath(cfg.Classifier.RulesPath, configDir)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// "~/" and other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	path = strings.TrimPrefix(path, "~/")
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
