// Package memory provides an in-process KeyValueCache with TTL expiry and
// oldest-first eviction.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driven"
)

// Ensure Cache implements the interface.
var _ driven.KeyValueCache = (*Cache)(nil)

// DefaultMaxEntries bounds the cache when no limit is configured.
const DefaultMaxEntries = 10000

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// Cache is a TTL map. Expired entries are removed lazily.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	order      []string // insertion order for eviction
	maxEntries int
	now        func() time.Time
}

// New creates a cache holding at most maxEntries keys (<= 0 uses the default).
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		entries:    make(map[string]*entry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns a copy of the stored value.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	if c.expired(e) {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

// Set stores value under key, evicting the oldest entries when full.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	v := make([]byte, len(value))
	copy(v, value)
	e := &entry{value: v}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		for len(c.entries) >= c.maxEntries {
			c.evictOldest()
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = e
	if len(c.order) > 2*c.maxEntries {
		c.compact()
	}
	return nil
}

// Delete removes keys.
func (c *Cache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

// DeletePrefix removes every key starting with prefix.
func (c *Cache) DeletePrefix(_ context.Context, prefix string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close drops all entries.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.order = nil
	return nil
}

func (c *Cache) expired(e *entry) bool {
	return !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt)
}

// compact drops order slots for deleted keys and duplicates, keeping the
// latest slot of each live key. Must be called with mu held.
func (c *Cache) compact() {
	seen := make(map[string]struct{}, len(c.entries))
	kept := make([]string, 0, len(c.entries))
	for i := len(c.order) - 1; i >= 0; i-- {
		k := c.order[i]
		if _, live := c.entries[k]; !live {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		kept = append(kept, k)
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	c.order = kept
}

// evictOldest removes the oldest live entry. Must be called with mu held.
func (c *Cache) evictOldest() {
	for len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		if _, exists := c.entries[oldest]; exists {
			delete(c.entries, oldest)
			return
		}
	}
}
