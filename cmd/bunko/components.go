package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/bunko/internal/assistant"
	"github.com/hyperjump/bunko/internal/config"
	"github.com/hyperjump/bunko/internal/history"
	"github.com/hyperjump/bunko/internal/indexer"
	"github.com/hyperjump/bunko/internal/keyword"
	"github.com/hyperjump/bunko/internal/lexical"
	"github.com/hyperjump/bunko/internal/library"
	"github.com/hyperjump/bunko/internal/llm"
	"github.com/hyperjump/bunko/internal/storage"
	"github.com/hyperjump/bunko/internal/summarize"
)

// Components holds initialized services.
type Components struct {
	Storage    storage.Storage
	Catalog    keyword.Catalog
	Library    *library.Library
	Generator  llm.Generator
	Summarizer *summarize.Summarizer
	History    history.Store
	Indexer    *indexer.Indexer
	Assistant  *assistant.Assistant

	closers []func() error
}

// Close releases storage, the catalog index, and the history backend.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	for _, p := range []string{cfg.Storage.DatabasePath, cfg.Storage.BleveIndexPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store
	c.closers = append(c.closers, store.Close)

	catalog, err := keyword.NewBleveCatalog(cfg.Storage.BleveIndexPath, keyword.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize catalog index: %w", err)
	}
	c.Catalog = catalog
	c.closers = append(c.closers, catalog.Close)

	gen, err := newGenerator(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	c.Generator = gen

	c.Summarizer = summarize.New(gen, summarize.Config{
		MapChunkChars:   cfg.Summary.MapChunkChars,
		BatchSize:       cfg.Summary.BatchSize,
		Concurrency:     cfg.Summary.Concurrency,
		CacheTTL:        cfg.Summary.CacheTTL,
		CacheMaxEntries: cfg.Summary.CacheMaxEntries,
		MaxSelected:     cfg.Summary.MaxSelected,
		MapMaxTokens:    cfg.Summary.MapMaxTokens,
		ReduceMaxTokens: cfg.Summary.MaxTokens,
		CitationChars:   cfg.Retrieval.CitationChars,
	}, summarize.WithLogger(logger))

	sum := c.Summarizer
	c.Library = library.New(store,
		library.WithLogger(logger),
		library.OnInvalidate(func(docID string) { sum.Forget(docID) }),
	)

	hist, closeHist, err := newHistoryStore(ctx, cfg.History)
	if err != nil {
		return nil, err
	}
	c.History = hist
	c.closers = append(c.closers, closeHist)

	c.Indexer = indexer.NewIndexer(store, c.Library, indexer.Config{
		ChunkTargetChars:  cfg.Ingest.ChunkTargetChars,
		ChunkOverlapChars: cfg.Ingest.ChunkOverlapChars,
		MaxPages:          cfg.Ingest.MaxPages,
		Extensions:        cfg.Ingest.Extensions,
	}, indexer.WithCatalog(catalog), indexer.WithLogger(logger))

	c.Assistant = assistant.New(c.Library, gen, c.Summarizer, assistantConfig(cfg),
		assistant.WithLogger(logger),
		assistant.WithHistory(hist),
	)

	ok = true
	return c, nil
}

func assistantConfig(cfg *config.Config) assistant.Config {
	ac := assistant.DefaultConfig()
	ac.Retrieval = lexical.Options{
		TopK:          cfg.Retrieval.TopK,
		MinScore:      cfg.Retrieval.MinScore,
		MaxChunkChars: cfg.Retrieval.MaxChunkChars,
		MaxTotalChars: cfg.Retrieval.MaxTotalChars,
	}
	ac.CompareMaxChunkChars = cfg.Retrieval.CompareMaxChunkChars
	ac.CitationChars = cfg.Retrieval.CitationChars
	ac.MaxTokens = cfg.LLM.MaxTokens
	ac.RetryMaxTokens = cfg.LLM.RetryMaxTokens
	ac.CompareMaxTokens = cfg.LLM.CompareMaxTokens
	return ac
}

// newGenerator returns the configured generation backend. Without an API key the
// deterministic mock is used so ingestion and retrieval still work offline.
func newGenerator(cfg config.LLMConfig, logger *zap.Logger) (llm.Generator, error) {
	switch cfg.Provider {
	case "mock":
		return llm.NewMockGenerator("mock"), nil
	case "openai", "":
		if cfg.APIKey == "" {
			logger.Warn("no LLM API key configured; using the offline mock generator",
				zap.String("env", config.EnvAPIKey))
			return llm.NewMockGenerator("mock"), nil
		}
		gen, err := llm.NewClient(llm.Config{
			APIKey:            cfg.APIKey,
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}, llm.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
		}
		return gen, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

func newHistoryStore(ctx context.Context, cfg config.HistoryConfig) (history.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case "memory", "":
		return history.NewMemoryStore(cfg.MaxMessages, cfg.MaxConversations, cfg.TTL), noop, nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, nil, errors.New("history backend redis requires redis_addr")
		}
		client, err := history.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return history.NewRedisStore(client, cfg.MaxMessages, cfg.TTL), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}

func catalogOptions(fuzzy bool) *keyword.SearchOptions {
	opts := keyword.DefaultSearchOptions()
	if fuzzy {
		opts.FuzzyEnabled = true
		opts.Fuzziness = 1
	}
	return opts
}
