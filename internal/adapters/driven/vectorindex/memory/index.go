// Package memory provides an in-process VectorIndex using exact cosine search.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driven"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

type collection struct {
	size   int
	points map[string]driven.VectorPoint
}

// Index is a brute-force vector index held in memory.
type Index struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{collections: make(map[string]*collection)}
}

// EnsureCollection creates the collection if missing.
func (x *Index) EnsureCollection(_ context.Context, name string, vectorSize int, metric domain.DistanceMetric) error {
	if name == "" {
		return domain.NewValidationError("collection", "collection name is required")
	}
	if vectorSize <= 0 {
		return domain.NewValidationError("vector_size", "vector size must be positive")
	}
	if metric != domain.DistanceCosine {
		return domain.NewValidationError("distance", fmt.Sprintf("unsupported distance %q", metric))
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if c, ok := x.collections[name]; ok {
		if c.size != vectorSize {
			return domain.NewValidationError("vector_size",
				fmt.Sprintf("collection %s has size %d, requested %d", name, c.size, vectorSize))
		}
		return nil
	}
	x.collections[name] = &collection{size: vectorSize, points: make(map[string]driven.VectorPoint)}
	return nil
}

// Upsert inserts or replaces a single vector.
func (x *Index) Upsert(ctx context.Context, name string, point driven.VectorPoint) (string, error) {
	ids, err := x.UpsertBatch(ctx, name, []driven.VectorPoint{point})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// UpsertBatch inserts or replaces vectors. Either all points are written or none.
func (x *Index) UpsertBatch(_ context.Context, name string, points []driven.VectorPoint) ([]string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	c, err := x.collection(name)
	if err != nil {
		return nil, err
	}

	for i, p := range points {
		if len(p.Vector) != c.size {
			return nil, domain.NewValidationError("vector",
				fmt.Sprintf("point %d has %d dimensions, collection %s expects %d", i, len(p.Vector), name, c.size))
		}
	}

	ids := make([]string, len(points))
	for i, p := range points {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		c.points[p.ID] = driven.VectorPoint{ID: p.ID, Vector: vec, Payload: domain.CloneMetadata(p.Payload)}
		ids[i] = p.ID
	}
	return ids, nil
}

// Search scores every point in the collection.
func (x *Index) Search(_ context.Context, name string, query []float32, limit int,
	scoreThreshold float64, filters []domain.SearchFilter) ([]driven.VectorHit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	c, err := x.collection(name)
	if err != nil {
		return nil, err
	}
	if len(query) != c.size {
		return nil, domain.NewValidationError("vector",
			fmt.Sprintf("query has %d dimensions, collection %s expects %d", len(query), name, c.size))
	}

	hits := make([]driven.VectorHit, 0)
	for id, p := range c.points {
		if !domain.MatchesAll(filters, p.Payload) {
			continue
		}
		score := domain.CosineSimilarity(query, p.Vector)
		if score < scoreThreshold {
			continue
		}
		hits = append(hits, driven.VectorHit{ID: id, Score: score, Payload: domain.CloneMetadata(p.Payload)})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// DeleteByIDs removes points and reports how many existed.
func (x *Index) DeleteByIDs(_ context.Context, name string, ids []string) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	c, err := x.collection(name)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if _, ok := c.points[id]; ok {
			delete(c.points, id)
			n++
		}
	}
	return n, nil
}

// DeleteByDocument removes every point whose payload document_id matches.
func (x *Index) DeleteByDocument(_ context.Context, name, documentID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	c, err := x.collection(name)
	if err != nil {
		return err
	}
	for id, p := range c.points {
		if p.Payload["document_id"] == documentID {
			delete(c.points, id)
		}
	}
	return nil
}

// DeleteCollection drops a collection. Dropping a missing collection is not an error.
func (x *Index) DeleteCollection(_ context.Context, name string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.collections, name)
	return nil
}

// Count returns the number of points in a collection.
func (x *Index) Count(name string) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if c, ok := x.collections[name]; ok {
		return len(c.points)
	}
	return 0
}

// Close is a no-op.
func (x *Index) Close() error {
	return nil
}

// collection must be called with the lock held.
func (x *Index) collection(name string) (*collection, error) {
	c, ok := x.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", name, domain.ErrNotFound)
	}
	return c, nil
}
