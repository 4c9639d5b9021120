package driven

import (
	"context"
	"time"
)

// KeyValueCache is the backing store shared by the document and search caches.
// A missing key is reported as (nil, false, nil), never as an error.
type KeyValueCache interface {
	// Get returns the value stored under key.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key. A ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// DeletePrefix removes every key starting with prefix and returns the count.
	DeletePrefix(ctx context.Context, prefix string) (int, error)

	// Close releases resources.
	Close() error
}
