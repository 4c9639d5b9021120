package driven

import (
	"context"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
)

// VectorIndex is a collection-scoped nearest-neighbour store.
// Unreachable backends must surface as domain.BackendError wrapping
// domain.ErrVectorIndexUnavailable. An empty result is not an error.
type VectorIndex interface {
	// EnsureCollection creates the collection if it does not exist and
	// provisions payload indexes on document_id, document_type and
	// metadata.access_level. It is idempotent.
	EnsureCollection(ctx context.Context, name string, vectorSize int, metric domain.DistanceMetric) error

	// Upsert inserts or replaces a vector. An empty id is replaced by a generated one.
	// Returns the id written.
	Upsert(ctx context.Context, collection string, point VectorPoint) (string, error)

	// UpsertBatch writes several vectors in one call and returns their ids in order.
	UpsertBatch(ctx context.Context, collection string, points []VectorPoint) ([]string, error)

	// Search returns hits with score >= scoreThreshold that satisfy every filter,
	// sorted by descending score and truncated to limit.
	Search(ctx context.Context, collection string, query []float32, limit int,
		scoreThreshold float64, filters []domain.SearchFilter) ([]VectorHit, error)

	// DeleteByIDs removes vectors and returns how many existed.
	DeleteByIDs(ctx context.Context, collection string, ids []string) (int, error)

	// DeleteByDocument removes every vector whose payload document_id matches.
	DeleteByDocument(ctx context.Context, collection, documentID string) error

	// DeleteCollection drops the collection and all of its vectors.
	DeleteCollection(ctx context.Context, collection string) error

	// Close releases resources.
	Close() error
}

// VectorPoint is a vector plus its retrieval payload.
type VectorPoint struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	// ID is the vector id, equal to the chunk id.
	ID string

	// Score is the cosine similarity.
	Score float64

	// Payload is the stored copy of document_id, content and metadata.
	Payload map[string]any
}
