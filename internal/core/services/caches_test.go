package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cachemem "github.com/azad25/erp-ai-copilot-sub000/internal/adapters/driven/cache/memory"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
)

// brokenCache fails every call.
type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, domain.ErrCacheUnavailable
}
func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return domain.ErrCacheUnavailable
}
func (brokenCache) Delete(context.Context, ...string) error { return domain.ErrCacheUnavailable }
func (brokenCache) DeletePrefix(context.Context, string) (int, error) {
	return 0, domain.ErrCacheUnavailable
}
func (brokenCache) Close() error { return nil }

// countingMetrics records cache lookups.
type countingMetrics struct {
	nopMetrics
	hits, misses int
}

func (m *countingMetrics) ObserveCache(_ string, hit bool) {
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func TestDocumentCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	metrics := &countingMetrics{}
	c := NewDocumentCache(cachemem.New(0), time.Minute, metrics)

	_, ok := c.Get(ctx, "doc-1")
	assert.False(t, ok)

	c.Set(ctx, &domain.Document{ID: "doc-1", Title: "Cached", Revision: 3})
	doc, ok := c.Get(ctx, "doc-1")
	require.True(t, ok)
	assert.Equal(t, "Cached", doc.Title)
	assert.Equal(t, int64(3), doc.Revision)

	c.Delete(ctx, "doc-1")
	_, ok = c.Get(ctx, "doc-1")
	assert.False(t, ok)

	assert.Equal(t, 1, metrics.hits)
	assert.Equal(t, 2, metrics.misses)
}

func TestDocumentCache_DisabledAndBroken(t *testing.T) {
	ctx := context.Background()
	for name, c := range map[string]*DocumentCache{
		"disabled": NewDocumentCache(nil, time.Minute, nil),
		"broken":   NewDocumentCache(brokenCache{}, time.Minute, nil),
	} {
		t.Run(name, func(t *testing.T) {
			c.Set(ctx, &domain.Document{ID: "doc-1"})
			_, ok := c.Get(ctx, "doc-1")
			assert.False(t, ok)
			c.Delete(ctx, "doc-1")
		})
	}
}

func TestDocumentCache_CorruptEntryIsDropped(t *testing.T) {
	ctx := context.Background()
	kv := cachemem.New(0)
	require.NoError(t, kv.Set(ctx, DocumentKeyPrefix+"doc-1", []byte("{not json"), time.Minute))

	c := NewDocumentCache(kv, time.Minute, nil)
	_, ok := c.Get(ctx, "doc-1")
	assert.False(t, ok)

	_, found, err := kv.Get(ctx, DocumentKeyPrefix+"doc-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSearchCache_Key(t *testing.T) {
	c := NewSearchCache(nil, time.Minute, nil)
	f1, err := domain.NewFilter("document_type", domain.OpEqual, "policy")
	require.NoError(t, err)
	f2, err := domain.NewFilter("metadata.access_level", domain.OpEqual, "public")
	require.NoError(t, err)

	base := domain.SearchQuery{Query: "Leave Policy", Filters: []domain.SearchFilter{f1, f2}, MaxResults: 10, SimilarityThreshold: domain.Float64(0.7)}
	key := c.Key(base)
	assert.True(t, len(key) > len(SearchKeyPrefix))
	assert.Equal(t, SearchKeyPrefix, key[:len(SearchKeyPrefix)])

	same := base
	same.Query = "  leave policy "
	same.Filters = []domain.SearchFilter{f2, f1}
	assert.Equal(t, key, c.Key(same))

	for name, mutate := range map[string]func(q *domain.SearchQuery){
		"query":      func(q *domain.SearchQuery) { q.Query = "sick leave" },
		"filters":    func(q *domain.SearchQuery) { q.Filters = q.Filters[:1] },
		"collection": func(q *domain.SearchQuery) { q.CollectionName = "rag_faqs" },
		"limit":      func(q *domain.SearchQuery) { q.MaxResults = 5 },
		"threshold":  func(q *domain.SearchQuery) { q.SimilarityThreshold = domain.Float64(0.5) },
	} {
		t.Run(name, func(t *testing.T) {
			q := base
			mutate(&q)
			assert.NotEqual(t, key, c.Key(q))
		})
	}
}

func TestSearchCache_GetSetInvalidate(t *testing.T) {
	ctx := context.Background()
	kv := cachemem.New(0)
	c := NewSearchCache(kv, time.Minute, nil)
	docs := NewDocumentCache(kv, time.Minute, nil)
	key := c.Key(domain.SearchQuery{Query: "q"})

	c.Set(ctx, key, &domain.SearchResponse{Query: "q", TotalResults: 0}, c.Generation())
	docs.Set(ctx, &domain.Document{ID: "doc-1"})

	resp, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.NotNil(t, resp.Results)
	assert.Equal(t, "q", resp.Query)

	c.InvalidateForDocument(ctx, "doc-1")
	_, ok = c.Get(ctx, key)
	assert.False(t, ok)

	// Document entries live under another prefix.
	_, ok = docs.Get(ctx, "doc-1")
	assert.True(t, ok)
}

func TestSearchCache_SkipsWritesFromBeforeInvalidation(t *testing.T) {
	ctx := context.Background()
	c := NewSearchCache(cachemem.New(0), time.Minute, nil)
	key := c.Key(domain.SearchQuery{Query: "q"})

	gen := c.Generation()
	c.InvalidateForDocument(ctx, "doc-1")
	c.Set(ctx, key, &domain.SearchResponse{Query: "q"}, gen)

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)

	c.Set(ctx, key, &domain.SearchResponse{Query: "q"}, c.Generation())
	_, ok = c.Get(ctx, key)
	assert.True(t, ok)
}

func TestSearchCache_BrokenBackendIsMiss(t *testing.T) {
	ctx := context.Background()
	c := NewSearchCache(brokenCache{}, time.Minute, nil)

	c.Set(ctx, "k", &domain.SearchResponse{}, c.Generation())
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	c.InvalidateForDocument(ctx, "doc-1")
}
