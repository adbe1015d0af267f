package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Divas-Gupta30/ragflow/internal/chat"
	"github.com/Divas-Gupta30/ragflow/internal/config"
	"github.com/Divas-Gupta30/ragflow/internal/graph"
	"github.com/Divas-Gupta30/ragflow/internal/ingestion"
	"github.com/Divas-Gupta30/ragflow/internal/ingestion/ocr"
	"github.com/Divas-Gupta30/ragflow/internal/llm"
	"github.com/Divas-Gupta30/ragflow/internal/logging"
	"github.com/Divas-Gupta30/ragflow/internal/metrics"
	"github.com/Divas-Gupta30/ragflow/internal/processing"
	"github.com/Divas-Gupta30/ragflow/internal/search"
	"github.com/Divas-Gupta30/ragflow/internal/storage"
	"github.com/Divas-Gupta30/ragflow/internal/workflow"
)

// app is the wired object graph shared by every subcommand.
type app struct {
	cfg      *config.Config
	log      *logging.Logger
	store    storage.Store
	vectors  storage.VectorStore
	ingester *ingestion.Ingester
	chat     *chat.Service
	machine  *workflow.Machine
	pings    []func(ctx context.Context) error
	closers  []func()
}

// openStores connects the relational and vector stores and runs migrations.
func openStores(ctx context.Context, a *app, memory bool) error {
	if memory {
		a.store = storage.NewMemoryStore()
		a.vectors = storage.NewMemoryVectorStore()
		a.log.Warn("using in-memory stores; data is lost on exit")
		return nil
	}

	db, err := storage.OpenDB(ctx, a.cfg.Database.URL)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() { db.Close() })
	pg := storage.NewPostgresStore(db)
	if err := pg.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate relational store: %w", err)
	}
	a.store = pg
	a.pings = append(a.pings, pg.Ping)

	pool, err := storage.OpenPool(ctx, a.cfg.Vector.URL)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, pool.Close)
	vec, err := storage.NewPgVectorStore(pool, a.cfg.Vector.Namespace, a.cfg.Vector.Dimension)
	if err != nil {
		return err
	}
	if err := vec.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate vector store: %w", err)
	}
	a.vectors = vec
	a.pings = append(a.pings, pool.Ping)
	return nil
}

func newRedis(cfg *config.Config) (*redis.Client, error) {
	addr := cfg.Redis.Addr
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opts, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}), nil
}

func buildApp(ctx context.Context, cfg *config.Config, log *logging.Logger, memory bool) (*app, error) {
	a := &app{cfg: cfg, log: log}
	if err := openStores(ctx, a, memory); err != nil {
		a.close()
		return nil, err
	}

	gemini, err := llm.NewGemini(ctx, llm.GeminiOptions{
		APIKey:     cfg.Gemini.APIKey,
		Endpoint:   cfg.Gemini.Endpoint,
		Timeout:    cfg.Gemini.Timeout,
		MaxRetries: cfg.Gemini.MaxRetries,
		Dimension:  cfg.Vector.Dimension,
	}, log.With("component", "gemini"))
	if err != nil {
		a.close()
		return nil, err
	}

	var searcher search.Searcher
	if cfg.Search.APIKey != "" {
		var cache search.Cache
		if cfg.Redis.Addr != "" {
			rdb, err := newRedis(cfg)
			if err != nil {
				a.close()
				return nil, err
			}
			a.closers = append(a.closers, func() { rdb.Close() })
			if err := rdb.Ping(ctx).Err(); err != nil {
				log.Warn("redis unavailable, search results will not be cached", "error", err)
			}
			cache = search.NewRedisCache(rdb)
		}
		searcher = search.NewClient(search.Options{
			BaseURL:      cfg.Search.BaseURL,
			APIKey:       cfg.Search.APIKey,
			Location:     cfg.Search.Location,
			Language:     cfg.Search.Language,
			Country:      cfg.Search.Country,
			GoogleDomain: cfg.Search.GoogleDomain,
			Timeout:      cfg.Search.Timeout,
			CacheTTL:     cfg.Redis.CacheTTL,
		}, cache, log.With("component", "search"))
	} else {
		log.Warn("search.api_key not set, web search is disabled")
	}

	splitter, err := processing.NewSplitter(cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap)
	if err != nil {
		a.close()
		return nil, err
	}
	loader := &ingestion.Loader{}
	if cfg.Ingestion.OCR {
		loader.OCR = ocr.New(cfg.Ingestion.TempDir, "eng")
	}
	a.ingester = ingestion.NewIngester(ingestion.Config{
		Documents:  a.store,
		Vectors:    a.vectors,
		Namespace:  cfg.Vector.Namespace,
		Embedder:   gemini,
		Fetcher:    ingestion.NewFetcher(cfg.Ingestion.TempDir, cfg.Ingestion.Timeout),
		Loader:     loader,
		Splitter:   splitter,
		EmbedBatch: cfg.Ingestion.EmbedBatch,
		Dimension:  cfg.Vector.Dimension,
		Log:        log.With("component", "ingestion"),
	})

	pipeline := &graph.Pipeline{
		Retriever: &graph.Retriever{
			Vectors:      a.vectors,
			Embedder:     gemini,
			Namespace:    cfg.Vector.Namespace,
			TopK:         cfg.Models.TopK,
			DefaultModel: cfg.Models.DefaultEmbedding,
			Dimension:    cfg.Vector.Dimension,
		},
		Search:    searcher,
		Generator: &graph.Generator{Model: gemini},
	}
	a.chat = chat.NewService(a.store, pipeline, chat.Defaults{
		LLMModel:       cfg.Models.DefaultLLM,
		EmbeddingModel: cfg.Models.DefaultEmbedding,
		Temperature:    cfg.Models.DefaultTemperature,
	}, log.With("component", "chat"))
	a.machine = workflow.NewMachine(a.store, a.ingester, a.chat, cfg.Models.DefaultEmbedding, log.With("component", "workflow"))
	return a, nil
}

func (a *app) health(ctx context.Context) error {
	for _, ping := range a.pings {
		if err := ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// updateMetrics refreshes the stored-workflow gauge until ctx ends.
func (a *app) updateMetrics(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		_, total, err := a.store.ListWorkflows(ctx, storage.Page{Limit: 1})
		if err == nil {
			metrics.WorkflowsStored.Set(float64(total))
		} else if ctx.Err() == nil {
			a.log.Warn("failed to count workflows", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
