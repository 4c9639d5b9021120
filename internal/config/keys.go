package config

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
)

// Config file keys. Nested keys are written as tables.
const (
	KeyDataDir             = "data.dir"
	KeyLogFormat           = "log.format"
	KeyChunkSize           = "chunking.size"
	KeyChunkOverlap        = "chunking.overlap"
	KeyMaxResults          = "search.max_results"
	KeySimilarityThreshold = "search.similarity_threshold"
	KeyAsyncThreshold      = "ingest.async_threshold"
	KeyIngestWorkers       = "ingest.workers"
	KeyBackendTimeout      = "backend.timeout"

	KeyEmbeddingProvider   = "embedding.provider"
	KeyEmbeddingModel      = "embedding.model"
	KeyEmbeddingDimensions = "embedding.dimensions"
	KeyEmbeddingBaseURL    = "embedding.base_url"
	KeyEmbeddingAPIKey     = "embedding.api_key"

	KeyStoreBackend     = "store.backend"
	KeyVectorBackend    = "vector.backend"
	KeyCollectionPrefix = "vector.collection_prefix"

	KeyCacheEnabled     = "cache.enabled"
	KeyCacheBackend     = "cache.backend"
	KeyDocumentCacheTTL = "cache.document_ttl"
	KeySearchCacheTTL   = "cache.search_ttl"

	KeyEventsEnabled   = "events.enabled"
	KeyEventsBackend   = "events.backend"
	KeyEventsClaimIdle = "events.claim_idle"
	KeyTopicIngested   = "events.topics.ingested"
	KeyTopicSearched   = "events.topics.searched"
	KeyTopicUpdated    = "events.topics.updated"
	KeyTopicDeleted    = "events.topics.deleted"

	KeyQdrantHost   = "qdrant.host"
	KeyQdrantPort   = "qdrant.port"
	KeyQdrantAPIKey = "qdrant.api_key"
	KeyQdrantTLS    = "qdrant.tls"

	KeyRedisHost     = "redis.host"
	KeyRedisPort     = "redis.port"
	KeyRedisPassword = "redis.password"
	KeyRedisDB       = "redis.db"

	KeyMetricsEnabled = "metrics.enabled"
	KeyMetricsAddr    = "metrics.addr"
)

// Tunables are the keys that can change while the process runs.
var Tunables = []string{
	KeyChunkSize,
	KeyChunkOverlap,
	KeyMaxResults,
	KeySimilarityThreshold,
	KeyAsyncThreshold,
}

type valueKind int

const (
	kindString valueKind = iota
	kindInt
	kindFloat
	kindBool
)

var keyKinds = map[string]valueKind{
	KeyDataDir:             kindString,
	KeyLogFormat:           kindString,
	KeyChunkSize:           kindInt,
	KeyChunkOverlap:        kindInt,
	KeyMaxResults:          kindInt,
	KeySimilarityThreshold: kindFloat,
	KeyAsyncThreshold:      kindInt,
	KeyIngestWorkers:       kindInt,
	KeyBackendTimeout:      kindFloat,

	KeyEmbeddingProvider:   kindString,
	KeyEmbeddingModel:      kindString,
	KeyEmbeddingDimensions: kindInt,
	KeyEmbeddingBaseURL:    kindString,
	KeyEmbeddingAPIKey:     kindString,

	KeyStoreBackend:     kindString,
	KeyVectorBackend:    kindString,
	KeyCollectionPrefix: kindString,

	KeyCacheEnabled:     kindBool,
	KeyCacheBackend:     kindString,
	KeyDocumentCacheTTL: kindFloat,
	KeySearchCacheTTL:   kindFloat,

	KeyEventsEnabled:   kindBool,
	KeyEventsBackend:   kindString,
	KeyEventsClaimIdle: kindFloat,
	KeyTopicIngested:   kindString,
	KeyTopicSearched:   kindString,
	KeyTopicUpdated:    kindString,
	KeyTopicDeleted:    kindString,

	KeyQdrantHost:   kindString,
	KeyQdrantPort:   kindInt,
	KeyQdrantAPIKey: kindString,
	KeyQdrantTLS:    kindBool,

	KeyRedisHost:     kindString,
	KeyRedisPort:     kindInt,
	KeyRedisPassword: kindString,
	KeyRedisDB:       kindInt,

	KeyMetricsEnabled: kindBool,
	KeyMetricsAddr:    kindString,
}

// Keys returns every recognised config key in sorted order.
func Keys() []string {
	return slices.Sorted(maps.Keys(keyKinds))
}

// IsSecret reports whether the key holds a credential.
func IsSecret(key string) bool {
	switch key {
	case KeyEmbeddingAPIKey, KeyQdrantAPIKey, KeyRedisPassword:
		return true
	default:
		return false
	}
}

// ParseValue converts a command-line value into the type stored for key.
func ParseValue(key, raw string) (any, error) {
	kind, ok := keyKinds[key]
	if !ok {
		return nil, domain.NewValidationError("key", fmt.Sprintf("unknown config key %q", key))
	}

	raw = strings.TrimSpace(raw)
	switch kind {
	case kindInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, domain.NewValidationError(key, fmt.Sprintf("expected an integer, got %q", raw))
		}
		return n, nil
	case kindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, domain.NewValidationError(key, fmt.Sprintf("expected a number, got %q", raw))
		}
		return f, nil
	case kindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, domain.NewValidationError(key, fmt.Sprintf("expected true or false, got %q", raw))
		}
		return b, nil
	default:
		return raw, nil
	}
}
