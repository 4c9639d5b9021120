// Package ai provides factory functions for the embedding and vector index
// adapters selected by configuration.
package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/azad25/erp-ai-copilot-sub000/internal/adapters/driven/embedding/hashing"
	ollamaembed "github.com/azad25/erp-ai-copilot-sub000/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/azad25/erp-ai-copilot-sub000/internal/adapters/driven/embedding/openai"
	vecmem "github.com/azad25/erp-ai-copilot-sub000/internal/adapters/driven/vectorindex/memory"
	"github.com/azad25/erp-ai-copilot-sub000/internal/adapters/driven/vectorindex/qdrant"
	"github.com/azad25/erp-ai-copilot-sub000/internal/config"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// InitResult contains the embedding and vector index adapters.
type InitResult struct {
	EmbeddingService driven.EmbeddingService
	VectorIndex      driven.VectorIndex
}

// Close releases all resources held by InitResult.
func (r *InitResult) Close() {
	if r.EmbeddingService != nil {
		r.EmbeddingService.Close()
	}
	if r.VectorIndex != nil {
		r.VectorIndex.Close()
	}
}

// Init creates and validates both adapters. On error nothing is left open.
func Init(ctx context.Context, cfg *config.Config) (*InitResult, error) {
	embedder, err := CreateAndValidateEmbeddingService(ctx, cfg.Embedding)
	if err != nil {
		return nil, err
	}
	index, err := CreateVectorIndex(cfg.Vector, cfg.Qdrant)
	if err != nil {
		embedder.Close()
		return nil, err
	}
	return &InitResult{EmbeddingService: embedder, VectorIndex: index}, nil
}

// CreateAndValidateEmbeddingService creates an embedding service and validates connectivity.
// Returns the service if successful, or an error with guidance.
func CreateAndValidateEmbeddingService(ctx context.Context, cfg config.EmbeddingConfig) (driven.EmbeddingService, error) {
	svc, err := CreateEmbeddingService(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w. Run 'ragengine config set embedding.provider <provider>' to fix",
			domain.ErrEmbeddingUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := svc.Ping(ctx); err != nil {
		svc.Close()
		return nil, fmt.Errorf("%w: %s unreachable (%w)", domain.ErrEmbeddingUnavailable, cfg.Provider, err)
	}

	return svc, nil
}

// CreateEmbeddingService creates the embedding service for the configured provider.
func CreateEmbeddingService(cfg config.EmbeddingConfig) (driven.EmbeddingService, error) {
	switch cfg.Provider {
	case domain.EmbeddingProviderHashing, "":
		return hashing.NewEmbeddingService(cfg.Dimensions), nil

	case domain.EmbeddingProviderOllama:
		return ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		}), nil

	case domain.EmbeddingProviderOpenAI:
		return openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// CreateVectorIndex creates the configured vector index.
func CreateVectorIndex(cfg config.VectorConfig, q config.QdrantConfig) (driven.VectorIndex, error) {
	switch cfg.Backend {
	case domain.BackendMemory, "":
		return vecmem.NewIndex(), nil

	case domain.BackendQdrant:
		return qdrant.New(qdrant.Config{
			Host:   q.Host,
			Port:   q.Port,
			APIKey: q.APIKey,
			UseTLS: q.UseTLS,
		})

	default:
		return nil, fmt.Errorf("unsupported vector backend: %s", cfg.Backend)
	}
}
