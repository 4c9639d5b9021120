package services

import (
	"context"
	"crypto/md5" //nolint:gosec // cache key derivation, not security
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driven"
	"github.com/azad25/erp-ai-copilot-sub000/internal/logger"
)

// Cache key namespaces.
const (
	DocumentKeyPrefix = "rag:document:"
	SearchKeyPrefix   = "rag:search:query:"
)

// DocumentCache caches documents by id. A nil backing store disables it.
// Backend failures degrade to misses and are logged.
type DocumentCache struct {
	kv      driven.KeyValueCache
	ttl     time.Duration
	metrics driven.MetricsRecorder
}

// NewDocumentCache creates a document cache. kv may be nil.
func NewDocumentCache(kv driven.KeyValueCache, ttl time.Duration, metrics driven.MetricsRecorder) *DocumentCache {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &DocumentCache{kv: kv, ttl: ttl, metrics: metrics}
}

// Get returns the cached document.
func (c *DocumentCache) Get(ctx context.Context, id string) (*domain.Document, bool) {
	if c.kv == nil {
		return nil, false
	}
	key := DocumentKeyPrefix + id
	data, ok, err := c.kv.Get(ctx, key)
	if err != nil {
		logger.Warn("document cache get %s: %v", key, err)
		return nil, false
	}
	if !ok {
		c.metrics.ObserveCache("document", false)
		return nil, false
	}

	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		logger.Warn("document cache decode %s: %v", key, err)
		c.Delete(ctx, id)
		return nil, false
	}
	c.metrics.ObserveCache("document", true)
	return &doc, true
}

// Set stores doc under its id.
func (c *DocumentCache) Set(ctx context.Context, doc *domain.Document) {
	if c.kv == nil || doc == nil {
		return
	}
	key := DocumentKeyPrefix + doc.ID
	data, err := json.Marshal(doc)
	if err != nil {
		logger.Warn("document cache encode %s: %v", key, err)
		return
	}
	if err := c.kv.Set(ctx, key, data, c.ttl); err != nil {
		logger.Warn("document cache set %s: %v", key, err)
	}
}

// Delete removes the cached document.
func (c *DocumentCache) Delete(ctx context.Context, id string) {
	if c.kv == nil {
		return
	}
	if err := c.kv.Delete(ctx, DocumentKeyPrefix+id); err != nil {
		logger.Warn("document cache delete %s: %v", DocumentKeyPrefix+id, err)
	}
}

// SearchCache caches search responses keyed by the normalised query.
// Invalidation is coarse: any document mutation clears every entry.
//
// Each invalidation bumps a generation counter. A response computed under an
// older generation is never left in the cache, so a search racing with a
// mutation cannot store results from before it.
type SearchCache struct {
	kv      driven.KeyValueCache
	ttl     time.Duration
	metrics driven.MetricsRecorder
	gen     atomic.Uint64
}

// NewSearchCache creates a search cache. kv may be nil.
func NewSearchCache(kv driven.KeyValueCache, ttl time.Duration, metrics driven.MetricsRecorder) *SearchCache {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &SearchCache{kv: kv, ttl: ttl, metrics: metrics}
}

// Key derives the cache key for a query whose limit and threshold are resolved.
// Query text is trimmed and lowercased; filter order does not matter.
func (c *SearchCache) Key(q domain.SearchQuery) string {
	filters := append([]domain.SearchFilter(nil), q.Filters...)
	sort.SliceStable(filters, func(i, j int) bool {
		a, b := filters[i], filters[j]
		if a.Field != b.Field {
			return a.Field < b.Field
		}
		if a.Operator != b.Operator {
			return a.Operator < b.Operator
		}
		return fmt.Sprint(a.Value) < fmt.Sprint(b.Value)
	})
	filterJSON, err := json.Marshal(filters)
	if err != nil {
		filterJSON = []byte(fmt.Sprint(filters))
	}

	threshold := ""
	if q.SimilarityThreshold != nil {
		threshold = strconv.FormatFloat(*q.SimilarityThreshold, 'f', -1, 64)
	}

	parts := []string{
		strings.ToLower(strings.TrimSpace(q.Query)),
		string(filterJSON),
		q.CollectionName,
		strconv.Itoa(q.MaxResults),
		threshold,
	}
	sum := md5.Sum([]byte(strings.Join(parts, "|"))) //nolint:gosec // see import
	return SearchKeyPrefix + hex.EncodeToString(sum[:])
}

// Get returns the cached response for key.
func (c *SearchCache) Get(ctx context.Context, key string) (*domain.SearchResponse, bool) {
	if c.kv == nil {
		return nil, false
	}
	data, ok, err := c.kv.Get(ctx, key)
	if err != nil {
		logger.Warn("search cache get %s: %v", key, err)
		return nil, false
	}
	if !ok {
		c.metrics.ObserveCache("search", false)
		return nil, false
	}

	var resp domain.SearchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		logger.Warn("search cache decode %s: %v", key, err)
		return nil, false
	}
	if resp.Results == nil {
		resp.Results = []domain.SearchResult{}
	}
	c.metrics.ObserveCache("search", true)
	return &resp, true
}

// Generation returns the current invalidation generation. Capture it before
// computing a response and pass it to Set.
func (c *SearchCache) Generation() uint64 {
	return c.gen.Load()
}

// Set stores resp under key unless an invalidation happened since gen.
func (c *SearchCache) Set(ctx context.Context, key string, resp *domain.SearchResponse, gen uint64) {
	if c.kv == nil || resp == nil || c.gen.Load() != gen {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		logger.Warn("search cache encode %s: %v", key, err)
		return
	}
	if err := c.kv.Set(ctx, key, data, c.ttl); err != nil {
		logger.Warn("search cache set %s: %v", key, err)
		return
	}
	// An invalidation between the check and the write may have missed it.
	if c.gen.Load() != gen {
		if err := c.kv.Delete(ctx, key); err != nil {
			logger.Warn("search cache delete stale %s: %v", key, err)
		}
	}
}

// InvalidateForDocument clears the search cache after documentID changed.
// Keys are not indexed by document, so every entry is dropped.
func (c *SearchCache) InvalidateForDocument(ctx context.Context, documentID string) {
	c.gen.Add(1)
	if c.kv == nil {
		return
	}
	n, err := c.kv.DeletePrefix(ctx, SearchKeyPrefix)
	if err != nil {
		logger.Warn("search cache invalidate for %s: %v", documentID, err)
		return
	}
	logger.Debug("search cache: dropped %d entries after change to %s", n, documentID)
}
