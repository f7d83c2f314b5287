package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/hyperjump/civicrag/internal/analysis"
	"github.com/hyperjump/civicrag/internal/assistant"
	"github.com/hyperjump/civicrag/internal/config"
	"github.com/hyperjump/civicrag/internal/embedding"
	"github.com/hyperjump/civicrag/internal/indexer"
	"github.com/hyperjump/civicrag/internal/intent"
	"github.com/hyperjump/civicrag/internal/keyword"
	"github.com/hyperjump/civicrag/internal/messaging"
	"github.com/hyperjump/civicrag/internal/metadata"
	"github.com/hyperjump/civicrag/internal/ranking"
	"github.com/hyperjump/civicrag/internal/search"
	"github.com/hyperjump/civicrag/internal/server"
	"github.com/hyperjump/civicrag/internal/storage"
	"github.com/hyperjump/civicrag/internal/vector"
	"github.com/hyperjump/civicrag/pkg/utils"
)

// Components holds initialized services.
type Components struct {
	Config       *config.Config
	Storage      storage.Storage
	Provider     embedding.Provider
	VectorIndex  vector.VectorIndex
	KeywordIndex keyword.KeywordIndex
	Embeddings   *embedding.Store
	Engine       *search.Engine
	Classifier   *intent.Classifier
	Analyzer     *analysis.Analyzer
	Assistant    *assistant.Assistant
	Indexer      *indexer.Indexer
	Pipeline     *indexer.Pipeline
	NATS         *nats.Conn

	logger *zap.Logger
}

// componentOptions selects the optional parts of initializeComponents.
type componentOptions struct {
	// messaging connects to NATS (when configured) and publishes embedding events.
	messaging bool
}

// Deps returns the HTTP server dependencies.
func (c *Components) Deps() server.Deps {
	return server.Deps{
		Engine:     c.Engine,
		Assistant:  c.Assistant,
		Classifier: c.Classifier,
		Indexer:    c.Indexer,
		Pipeline:   c.Pipeline,
		Storage:    c.Storage,
		Embeddings: c.Embeddings,
		Keywords:   c.KeywordIndex,
		Vectors:    c.VectorIndex,
	}
}

// SaveVectorIndex persists the in-process vector index when a path is configured.
// External indexes persist on their own.
func (c *Components) SaveVectorIndex() {
	path := c.Config.Vector.IndexPath
	if path == "" || c.Config.Vector.IndexType != vector.IndexTypeMemory || c.VectorIndex == nil {
		return
	}
	if err := c.VectorIndex.Save(path); err != nil {
		c.logger.Warn("vector index save failed", zap.String("path", path), zap.Error(err))
	}
}

func (c *Components) Close() {
	if c.NATS != nil {
		_ = c.NATS.Drain()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Provider != nil {
		_ = c.Provider.Close()
	}
	if c.VectorIndex != nil {
		_ = c.VectorIndex.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts componentOptions) (_ *Components, err error) {
	logger = utils.LoggerOrNop(logger)
	c := &Components{Config: cfg, logger: logger}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	provider, err := embedding.NewProvider(cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	c.Provider = provider
	queryEmbedder, err := embedding.NewCachedProvider(provider, cfg.Embedding.QueryCacheSize)
	if err != nil {
		return nil, err
	}

	vectorIndex, err := vector.NewVectorIndex(ctx, cfg.Vector, cfg.Embedding.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	c.VectorIndex = vectorIndex
	loaded := false
	if cfg.Vector.IndexType == vector.IndexTypeMemory && cfg.Vector.IndexPath != "" {
		if loadErr := c.VectorIndex.Load(cfg.Vector.IndexPath); loadErr != nil {
			logger.Warn("vector index load skipped, rebuilding from storage",
				zap.String("path", cfg.Vector.IndexPath), zap.Error(loadErr))
		} else {
			loaded = c.VectorIndex.Size() > 0
		}
	}
	logger.Info("vector index initialized",
		zap.String("type", cfg.Vector.IndexType),
		zap.Int("size", c.VectorIndex.Size()))

	keywordIndex, err := keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}
	c.KeywordIndex = keywordIndex

	storeOpts := []embedding.StoreOption{
		embedding.WithIndex(c.VectorIndex),
		embedding.WithLogger(logger),
		// A shared miss may retry, so it gets every attempt's budget.
		embedding.WithFlightTimeout(cfg.Embedding.Timeout * time.Duration(cfg.Embedding.MaxRetries+1)),
	}
	if opts.messaging && cfg.Messaging.NATSURL != "" {
		nc, err := messaging.Connect(cfg.Messaging, logger)
		if err != nil {
			return nil, err
		}
		c.NATS = nc
		events := messaging.NewEventPublisher(c.NATS, cfg.Messaging.EventsSubject, logger)
		storeOpts = append(storeOpts, embedding.WithOnCreate(events.OnEmbeddingCreated))
	}
	c.Embeddings = embedding.NewStore(c.Storage, provider, storeOpts...)

	// The memory index starts empty unless a snapshot was loaded.
	if cfg.Vector.IndexType == vector.IndexTypeMemory && !loaded {
		if _, err := c.Embeddings.RebuildIndex(ctx); err != nil {
			return nil, fmt.Errorf("failed to rebuild vector index: %w", err)
		}
	}

	vectors := vector.NewRetriever(c.VectorIndex, c.Storage, queryEmbedder,
		vector.WithTopK(cfg.Search.TopKCandidates),
		vector.WithModel(provider.Model()),
		vector.WithLogger(logger),
	)
	meta := metadata.NewRetriever(c.Storage,
		metadata.WithKeywordIndex(c.KeywordIndex),
		metadata.WithCandidates(cfg.Search.MetadataCandidates),
		metadata.WithRelaxedCandidates(cfg.Search.RelaxedCandidates),
		metadata.WithLogger(logger),
	)
	c.Engine = search.NewEngine(vectors, meta, c.Storage, cfg.Search, logger)
	if cfg.Search.Rerank.Enabled {
		c.Engine.WithRanker(ranking.NewRanker(&cfg.Search.Rerank))
	}

	if c.Classifier, err = intent.NewFromConfig(cfg.Classifier, logger); err != nil {
		return nil, fmt.Errorf("failed to initialize intent classifier: %w", err)
	}
	llm, err := intent.NewLLM(cfg.Classifier)
	if err != nil {
		return nil, err
	}
	c.Analyzer = analysis.NewAnalyzer(c.Storage, analysis.WithLogger(logger))
	assistantOpts := []assistant.Option{assistant.WithLogger(logger)}
	if llm != nil && cfg.Classifier.GenerateAnswers {
		assistantOpts = append(assistantOpts,
			assistant.WithAnswerer(llm),
			assistant.WithAnswerTimeout(cfg.Classifier.Timeout))
	}
	c.Assistant = assistant.New(c.Classifier, c.Engine, c.Analyzer, assistantOpts...)

	indexerOpts := []indexer.IndexerOption{indexer.WithLogger(logger)}
	if llm != nil && cfg.Classifier.AnalyzeComplaints {
		assessor := analysis.NewAssessor(llm,
			analysis.WithAssessTimeout(cfg.Classifier.Timeout),
			analysis.WithAssessorLogger(logger))
		indexerOpts = append(indexerOpts, indexer.WithAssessor(assessor, c.Storage))
	}
	c.Indexer = indexer.NewIndexer(c.Storage, c.Embeddings, c.KeywordIndex, indexerOpts...)
	c.Pipeline = indexer.NewPipeline(c.Embeddings, c.Storage, cfg.Pipeline, indexer.WithPipelineLogger(logger))
	return c, nil
}
