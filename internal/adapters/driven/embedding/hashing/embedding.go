// Package hashing provides an offline embedding service based on signed
// feature hashing of word unigrams and bigrams. It needs no network and is
// deterministic, which makes it the default for local use and tests.
package hashing

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// DefaultDimensions matches the all-MiniLM family so collections can be swapped.
const DefaultDimensions = 384

// ModelName is reported for every hashing embedder.
const ModelName = "feature-hashing"

const bigramWeight = 0.5

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

// EmbeddingService embeds text by hashing tokens into a fixed-size vector.
type EmbeddingService struct {
	dimensions int
}

// NewEmbeddingService creates a hashing embedder. dimensions <= 0 uses the default.
func NewEmbeddingService(dimensions int) *EmbeddingService {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &EmbeddingService{dimensions: dimensions}
}

// Embed returns a unit-length vector for text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, domain.NewValidationError("text", "cannot embed empty text")
	}

	vec := make([]float32, s.dimensions)
	tokens := tokenPattern.FindAllString(strings.ToLower(trimmed), -1)
	if len(tokens) == 0 {
		// Punctuation-only input still gets a stable, non-zero vector.
		tokens = []string{trimmed}
	}

	for i, tok := range tokens {
		s.add(vec, tok, 1)
		if i > 0 {
			s.add(vec, tokens[i-1]+" "+tok, bigramWeight)
		}
	}

	domain.Normalize(vec)
	for _, v := range vec {
		if v != 0 {
			return vec, nil
		}
	}
	return nil, domain.NewBackendError(domain.ErrEmbeddingUnavailable, "hashing embed",
		fmt.Errorf("features cancelled to a zero vector"))
}

// EmbedBatch embeds each text in order.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

// add hashes a feature to a bucket; one hash bit picks the sign so
// collisions cancel in expectation.
func (s *EmbeddingService) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int(sum % uint64(s.dimensions))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// Distance returns cosine.
func (s *EmbeddingService) Distance() domain.DistanceMetric {
	return domain.DistanceCosine
}

// ModelName returns the embedder name.
func (s *EmbeddingService) ModelName() string {
	return ModelName
}

// Ping always succeeds.
func (s *EmbeddingService) Ping(context.Context) error {
	return nil
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	return nil
}
