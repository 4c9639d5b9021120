// Package app assembles the engine from configuration: it creates the
// configured adapters, the post-processing pipeline and the RAG service.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/azad25/erp-ai-copilot-sub000/internal/adapters/driven/ai"
	cachemem "github.com/azad25/erp-ai-copilot-sub000/internal/adapters/driven/cache/memory"
	cacheredis "github.com/azad25/erp-ai-copilot-sub000/internal/adapters/driven/cache/redis"
	busmem "github.com/azad25/erp-ai-copilot-sub000/internal/adapters/driven/eventbus/memory"
	busredis "github.com/azad25/erp-ai-copilot-sub000/internal/adapters/driven/eventbus/redis"
	"github.com/azad25/erp-ai-copilot-sub000/internal/adapters/driven/metrics/prometheus"
	"github.com/azad25/erp-ai-copilot-sub000/internal/adapters/driven/storage/memory"
	"github.com/azad25/erp-ai-copilot-sub000/internal/adapters/driven/storage/sqlite"
	"github.com/azad25/erp-ai-copilot-sub000/internal/config"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driven"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/services"
	"github.com/azad25/erp-ai-copilot-sub000/internal/logger"
	"github.com/azad25/erp-ai-copilot-sub000/internal/postprocessors"
	"github.com/azad25/erp-ai-copilot-sub000/internal/postprocessors/metadata"
)

// App holds the wired engine and everything it owns.
type App struct {
	Config   *config.Config
	Service  *services.RAGService
	Health   *services.HealthChecker
	Metrics  *prometheus.Recorder
	Store    driven.DocumentStore
	Index    driven.VectorIndex
	Embedder driven.EmbeddingService
	Cache    driven.KeyValueCache
	Events   driven.EventBus

	closers []func() error
}

// New builds the engine described by cfg and ensures its collections exist.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}
	if err := a.build(ctx); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) (err error) {
	cfg := a.Config
	logger.Section("Starting engine")

	if a.Store, err = createStore(cfg); err != nil {
		return err
	}
	a.closers = append(a.closers, a.Store.Close)
	logger.Debug("document store: %s", cfg.Store.Backend)

	aiRes, err := ai.Init(ctx, cfg)
	if err != nil {
		return err
	}
	a.Embedder, a.Index = aiRes.EmbeddingService, aiRes.VectorIndex
	a.closers = append(a.closers, a.Embedder.Close, a.Index.Close)
	logger.Debug("embedding: %s (%s, %d dims), vector index: %s",
		cfg.Embedding.Provider, a.Embedder.ModelName(), a.Embedder.Dimensions(), cfg.Vector.Backend)

	processor, err := newProcessor(cfg)
	if err != nil {
		return err
	}
	a.Service = services.NewRAGService(a.Store, a.Index, a.Embedder, processor, Options(cfg))

	a.Metrics = prometheus.New()
	a.Service.SetMetrics(a.Metrics)

	if cfg.Cache.Enabled {
		if a.Cache, err = createCache(ctx, cfg); err != nil {
			return err
		}
		a.closers = append(a.closers, a.Cache.Close)
		a.Service.SetCache(a.Cache)
		logger.Debug("cache: %s", cfg.Cache.Backend)
	}

	if cfg.Events.Enabled {
		if a.Events, err = createEventBus(ctx, cfg); err != nil {
			return err
		}
		a.closers = append(a.closers, a.Events.Close)
		a.Service.SetEventBus(a.Events)
		logger.Debug("events: %s", cfg.Events.Backend)
	}

	a.Health = services.NewHealthChecker(a.Store, a.Embedder, a.Cache)

	return a.Service.Start(ctx)
}

// Reload applies the tunable settings of cfg to the running service.
// Backend settings need a restart and are ignored.
func (a *App) Reload(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	processor, err := newProcessor(cfg)
	if err != nil {
		return err
	}
	a.Service.Tune(services.Tuning{
		MaxResults:          cfg.Search.MaxResults,
		SimilarityThreshold: cfg.Search.SimilarityThreshold,
		AsyncThreshold:      cfg.Ingest.AsyncThreshold,
		Processor:           processor,
	})

	next := *a.Config
	next.Chunking = cfg.Chunking
	next.Search = cfg.Search
	next.Ingest.AsyncThreshold = cfg.Ingest.AsyncThreshold
	a.Config = &next
	return nil
}

func newProcessor(cfg *config.Config) (*services.DocumentProcessor, error) {
	pipeline, err := postprocessors.DefaultPipeline(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	return services.NewDocumentProcessor(pipeline, metadata.DerivedKeys...), nil
}

// Options maps configuration onto service options.
func Options(cfg *config.Config) services.Options {
	return services.Options{
		CollectionPrefix:    cfg.Vector.CollectionPrefix,
		MaxResults:          cfg.Search.MaxResults,
		SimilarityThreshold: cfg.Search.SimilarityThreshold,
		AsyncThreshold:      cfg.Ingest.AsyncThreshold,
		Workers:             cfg.Ingest.Workers,
		Timeout:             cfg.Ingest.Timeout,
		DocumentCacheTTL:    cfg.Cache.DocumentTTL,
		SearchCacheTTL:      cfg.Cache.SearchTTL,
		Topics:              cfg.Events.Topics,
	}
}

// Close drains the service and releases every backend in reverse order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Service != nil {
		if err := a.Service.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain service: %w", err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func createStore(cfg *config.Config) (driven.DocumentStore, error) {
	switch cfg.Store.Backend {
	case domain.BackendSQLite, "":
		store, err := sqlite.NewStore(cfg.DataDir)
		if err != nil {
			return nil, domain.NewBackendError(domain.ErrDocumentStoreUnavailable, "open", err)
		}
		return store, nil
	case domain.BackendMemory:
		return memory.NewDocumentStore(), nil
	default:
		return nil, fmt.Errorf("unsupported document store backend: %s", cfg.Store.Backend)
	}
}

func createCache(ctx context.Context, cfg *config.Config) (driven.KeyValueCache, error) {
	switch cfg.Cache.Backend {
	case domain.BackendMemory, "":
		return cachemem.New(0), nil
	case domain.BackendRedis:
		return cacheredis.New(ctx, cacheredis.Config{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Cache.Backend)
	}
}

func createEventBus(ctx context.Context, cfg *config.Config) (driven.EventBus, error) {
	switch cfg.Events.Backend {
	case domain.BackendMemory, "":
		return busmem.New(0), nil
	case domain.BackendRedis:
		return busredis.New(ctx, busredis.Config{
			Addr:      cfg.Redis.Addr(),
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			ClaimIdle: cfg.Events.ClaimIdle,
		})
	default:
		return nil, fmt.Errorf("unsupported event backend: %s", cfg.Events.Backend)
	}
}
