// Package redis provides a KeyValueCache backed by Redis.
package redis

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driven"
)

// Ensure Cache implements the interface.
var _ driven.KeyValueCache = (*Cache)(nil)

// Prefix deletion tuning: SCAN COUNT hint and DEL batch size, and how many
// scan-then-delete passes run at most.
const (
	scanBatch     = 500
	maxScanPasses = 3
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Cache stores values as plain Redis strings.
type Cache struct {
	client *goredis.Client
}

// New connects to Redis and pings it.
func New(ctx context.Context, cfg Config) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, unavailable("ping", err)
	}
	return &Cache{client: client}, nil
}

// NewWithClient wraps an existing client. The cache takes ownership of it.
func NewWithClient(client *goredis.Client) *Cache {
	return &Cache{client: client}
}

// Get returns the stored bytes. redis.Nil is a miss, not an error.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("get", err)
	}
	return v, true, nil
}

// Set stores value with an optional TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

// Delete removes keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return unavailable("del", err)
	}
	return nil
}

// DeletePrefix deletes every key starting with prefix. Keys are collected
// with a full SCAN before any is deleted, since deleting during iteration
// lets SCAN skip keys. Passes repeat until one finds nothing, bounded by
// maxScanPasses for keys written concurrently.
func (c *Cache) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	match := escapeGlob(prefix) + "*"

	total := 0
	for pass := 0; pass < maxScanPasses; pass++ {
		var keys []string
		iter := c.client.Scan(ctx, 0, match, scanBatch).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return total, unavailable("scan", err)
		}
		if len(keys) == 0 {
			break
		}

		for batch := range slices.Chunk(slices.Compact(slices.Sorted(slices.Values(keys))), scanBatch) {
			n, err := c.client.Del(ctx, batch...).Result()
			if err != nil {
				return total, unavailable("del", err)
			}
			total += int(n)
		}
	}
	return total, nil
}

// Close closes the client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// escapeGlob escapes the characters SCAN MATCH treats specially.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func unavailable(op string, err error) error {
	return domain.NewBackendError(domain.ErrCacheUnavailable, "redis "+op, err)
}
