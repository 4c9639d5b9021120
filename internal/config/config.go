// Package config assembles the engine configuration from defaults, the
// config file, an optional .env file, and environment variables, in that
// order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driven"
)

// Defaults.
const (
	DefaultChunkSize           = 500
	DefaultChunkOverlap        = 50
	DefaultMaxResults          = 10
	DefaultSimilarityThreshold = 0.7
	DefaultDocumentCacheTTL    = time.Hour
	DefaultSearchCacheTTL      = 30 * time.Minute
	DefaultEventClaimIdle      = 30 * time.Second
	DefaultAsyncThreshold      = 10000
	DefaultIngestWorkers       = 4
	DefaultBackendTimeout      = 10 * time.Second
	DefaultCollectionPrefix    = "rag"
	DefaultQdrantPort          = 6334
	DefaultRedisPort           = 6379
	DefaultMetricsAddr         = ":9464"
)

// Config is the complete engine configuration.
type Config struct {
	DataDir   string
	LogFormat string

	Chunking  ChunkingConfig
	Search    SearchConfig
	Ingest    IngestConfig
	Embedding EmbeddingConfig
	Store     StoreConfig
	Vector    VectorConfig
	Cache     CacheConfig
	Events    EventsConfig
	Qdrant    QdrantConfig
	Redis     RedisConfig
	Metrics   MetricsConfig
}

// ChunkingConfig holds the default chunk window.
type ChunkingConfig struct {
	Size    int
	Overlap int
}

// SearchConfig holds search defaults.
type SearchConfig struct {
	MaxResults          int
	SimilarityThreshold float64
}

// IngestConfig controls background ingestion.
type IngestConfig struct {
	// AsyncThreshold is the content length above which ingest runs in the background.
	AsyncThreshold int
	Workers        int
	// Timeout bounds each document store and vector index call.
	Timeout time.Duration
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider   domain.EmbeddingProvider
	Model      string
	// Dimensions of zero uses the provider's default.
	Dimensions int
	BaseURL    string
	APIKey     string
}

// StoreConfig selects the document store.
type StoreConfig struct {
	Backend domain.BackendKind
}

// VectorConfig selects the vector index.
type VectorConfig struct {
	Backend          domain.BackendKind
	CollectionPrefix string
}

// CacheConfig controls the document and search caches.
type CacheConfig struct {
	Enabled     bool
	Backend     domain.BackendKind
	DocumentTTL time.Duration
	SearchTTL   time.Duration
}

// EventsConfig controls the event bus.
type EventsConfig struct {
	Enabled bool
	Backend domain.BackendKind
	Topics  domain.Topics
	// ClaimIdle is how long an unacknowledged Redis stream entry of another
	// consumer waits before this process takes it over.
	ClaimIdle time.Duration
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// RedisConfig holds Redis connection settings shared by the cache and event bus.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// MetricsConfig controls the Prometheus endpoint started by serve.
type MetricsConfig struct {
	Enabled bool
	Addr    string
}

// Default returns the built-in configuration.
func Default() *Config {
	dataDir := ""
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".ragengine", "data")
	}

	return &Config{
		DataDir:   dataDir,
		LogFormat: "text",
		Chunking:  ChunkingConfig{Size: DefaultChunkSize, Overlap: DefaultChunkOverlap},
		Search: SearchConfig{
			MaxResults:          DefaultMaxResults,
			SimilarityThreshold: DefaultSimilarityThreshold,
		},
		Ingest: IngestConfig{
			AsyncThreshold: DefaultAsyncThreshold,
			Workers:        DefaultIngestWorkers,
			Timeout:        DefaultBackendTimeout,
		},
		Embedding: EmbeddingConfig{Provider: domain.EmbeddingProviderHashing},
		Store: StoreConfig{Backend: domain.BackendSQLite},
		Vector: VectorConfig{
			Backend:          domain.BackendMemory,
			CollectionPrefix: DefaultCollectionPrefix,
		},
		Cache: CacheConfig{
			Enabled:     true,
			Backend:     domain.BackendMemory,
			DocumentTTL: DefaultDocumentCacheTTL,
			SearchTTL:   DefaultSearchCacheTTL,
		},
		Events: EventsConfig{
			Enabled:   true,
			Backend:   domain.BackendMemory,
			Topics:    domain.DefaultTopics(),
			ClaimIdle: DefaultEventClaimIdle,
		},
		Qdrant:  QdrantConfig{Host: "localhost", Port: DefaultQdrantPort},
		Redis:   RedisConfig{Host: "localhost", Port: DefaultRedisPort},
		Metrics: MetricsConfig{Addr: DefaultMetricsAddr},
	}
}

// LookupFunc reads an environment variable.
type LookupFunc func(key string) (string, bool)

// LoadDotEnv loads .env files into the process environment. Missing files
// are ignored; variables already set are not overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load builds the configuration from the store and the process environment.
func Load(store driven.ConfigStore) (*Config, error) {
	return LoadWith(store, os.LookupEnv)
}

// LoadWith builds the configuration from the store and lookup, then validates it.
// store may be nil.
func LoadWith(store driven.ConfigStore, lookup LookupFunc) (*Config, error) {
	cfg := Default()
	if store != nil {
		cfg.applyStore(store)
	}
	if lookup != nil {
		if err := cfg.applyEnv(lookup); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyStore(s driven.ConfigStore) {
	str := func(key string, dst *string) {
		if v := s.GetString(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if _, ok := s.Get(key); ok {
			*dst = s.GetInt(key)
		}
	}
	flt := func(key string, dst *float64) {
		if _, ok := s.Get(key); ok {
			*dst = s.GetFloat(key)
		}
	}
	flag := func(key string, dst *bool) {
		if _, ok := s.Get(key); ok {
			*dst = s.GetBool(key)
		}
	}
	seconds := func(key string, dst *time.Duration) {
		if _, ok := s.Get(key); ok {
			*dst = time.Duration(s.GetFloat(key) * float64(time.Second))
		}
	}
	backend := func(key string, dst *domain.BackendKind) {
		if v := s.GetString(key); v != "" {
			*dst = domain.BackendKind(strings.ToLower(v))
		}
	}

	str(KeyDataDir, &c.DataDir)
	str(KeyLogFormat, &c.LogFormat)
	num(KeyChunkSize, &c.Chunking.Size)
	num(KeyChunkOverlap, &c.Chunking.Overlap)
	num(KeyMaxResults, &c.Search.MaxResults)
	flt(KeySimilarityThreshold, &c.Search.SimilarityThreshold)
	num(KeyAsyncThreshold, &c.Ingest.AsyncThreshold)
	num(KeyIngestWorkers, &c.Ingest.Workers)
	seconds(KeyBackendTimeout, &c.Ingest.Timeout)

	if v := s.GetString(KeyEmbeddingProvider); v != "" {
		c.Embedding.Provider = domain.EmbeddingProvider(strings.ToLower(v))
	}
	str(KeyEmbeddingModel, &c.Embedding.Model)
	num(KeyEmbeddingDimensions, &c.Embedding.Dimensions)
	str(KeyEmbeddingBaseURL, &c.Embedding.BaseURL)
	str(KeyEmbeddingAPIKey, &c.Embedding.APIKey)

	backend(KeyStoreBackend, &c.Store.Backend)
	backend(KeyVectorBackend, &c.Vector.Backend)
	str(KeyCollectionPrefix, &c.Vector.CollectionPrefix)

	flag(KeyCacheEnabled, &c.Cache.Enabled)
	backend(KeyCacheBackend, &c.Cache.Backend)
	seconds(KeyDocumentCacheTTL, &c.Cache.DocumentTTL)
	seconds(KeySearchCacheTTL, &c.Cache.SearchTTL)

	flag(KeyEventsEnabled, &c.Events.Enabled)
	backend(KeyEventsBackend, &c.Events.Backend)
	seconds(KeyEventsClaimIdle, &c.Events.ClaimIdle)
	str(KeyTopicIngested, &c.Events.Topics.Ingested)
	str(KeyTopicSearched, &c.Events.Topics.Searched)
	str(KeyTopicUpdated, &c.Events.Topics.Updated)
	str(KeyTopicDeleted, &c.Events.Topics.Deleted)

	str(KeyQdrantHost, &c.Qdrant.Host)
	num(KeyQdrantPort, &c.Qdrant.Port)
	str(KeyQdrantAPIKey, &c.Qdrant.APIKey)
	flag(KeyQdrantTLS, &c.Qdrant.UseTLS)

	str(KeyRedisHost, &c.Redis.Host)
	num(KeyRedisPort, &c.Redis.Port)
	str(KeyRedisPassword, &c.Redis.Password)
	num(KeyRedisDB, &c.Redis.DB)

	flag(KeyMetricsEnabled, &c.Metrics.Enabled)
	str(KeyMetricsAddr, &c.Metrics.Addr)
}

func (c *Config) applyEnv(lookup LookupFunc) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(name); ok && v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	flt := func(name string, dst *float64) {
		if v, ok := lookup(name); ok && v != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = f
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := lookup(name); ok && v != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = b
		}
	}
	seconds := func(name string, dst *time.Duration) {
		f := -1.0
		flt(name, &f)
		if f >= 0 {
			*dst = time.Duration(f * float64(time.Second))
		}
	}
	backend := func(name string, dst *domain.BackendKind) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = domain.BackendKind(strings.ToLower(v))
		}
	}

	str("RAG_DATA_DIR", &c.DataDir)
	str("RAG_LOG_FORMAT", &c.LogFormat)
	num("RAG_CHUNK_SIZE", &c.Chunking.Size)
	num("RAG_CHUNK_OVERLAP", &c.Chunking.Overlap)
	num("RAG_DEFAULT_SEARCH_LIMIT", &c.Search.MaxResults)
	flt("RAG_DEFAULT_SIMILARITY_THRESHOLD", &c.Search.SimilarityThreshold)
	num("RAG_ASYNC_THRESHOLD", &c.Ingest.AsyncThreshold)
	num("RAG_INGEST_WORKERS", &c.Ingest.Workers)
	seconds("RAG_BACKEND_TIMEOUT", &c.Ingest.Timeout)

	if v, ok := lookup("RAG_EMBEDDING_PROVIDER"); ok && v != "" {
		c.Embedding.Provider = domain.EmbeddingProvider(strings.ToLower(v))
	}
	str("RAG_EMBEDDING_MODEL_NAME", &c.Embedding.Model)
	num("RAG_EMBEDDING_DIMENSIONS", &c.Embedding.Dimensions)
	str("OPENAI_API_KEY", &c.Embedding.APIKey)
	if c.Embedding.Provider == domain.EmbeddingProviderOllama {
		str("OLLAMA_BASE_URL", &c.Embedding.BaseURL)
	} else {
		str("OPENAI_BASE_URL", &c.Embedding.BaseURL)
	}

	backend("RAG_STORE_BACKEND", &c.Store.Backend)
	backend("RAG_VECTOR_BACKEND", &c.Vector.Backend)
	str("RAG_COLLECTION_PREFIX", &c.Vector.CollectionPrefix)

	str("QDRANT_HOST", &c.Qdrant.Host)
	num("QDRANT_PORT", &c.Qdrant.Port)
	str("QDRANT_API_KEY", &c.Qdrant.APIKey)
	flag("QDRANT_USE_TLS", &c.Qdrant.UseTLS)

	// REDIS_ENABLED switches both caches onto Redis.
	redisEnabled := false
	flag("REDIS_ENABLED", &redisEnabled)
	if redisEnabled {
		c.Cache.Enabled = true
		c.Cache.Backend = domain.BackendRedis
	}
	str("REDIS_HOST", &c.Redis.Host)
	num("REDIS_PORT", &c.Redis.Port)
	str("REDIS_PASSWORD", &c.Redis.Password)
	num("REDIS_DB", &c.Redis.DB)
	flag("RAG_CACHE_ENABLED", &c.Cache.Enabled)
	backend("RAG_CACHE_BACKEND", &c.Cache.Backend)
	seconds("REDIS_CACHE_TTL", &c.Cache.DocumentTTL)
	seconds("RAG_SEARCH_CACHE_TTL", &c.Cache.SearchTTL)

	flag("EVENTS_ENABLED", &c.Events.Enabled)
	backend("EVENTS_BACKEND", &c.Events.Backend)
	str("RAG_INGESTION_TOPIC", &c.Events.Topics.Ingested)
	str("RAG_SEARCH_TOPIC", &c.Events.Topics.Searched)
	str("RAG_UPDATE_TOPIC", &c.Events.Topics.Updated)
	str("RAG_DELETE_TOPIC", &c.Events.Topics.Deleted)

	flag("RAG_METRICS_ENABLED", &c.Metrics.Enabled)
	str("RAG_METRICS_ADDR", &c.Metrics.Addr)

	return errors.Join(errs...)
}

// Validate checks ranges and backend names.
func (c *Config) Validate() error {
	switch {
	case c.Chunking.Size <= 0:
		return domain.NewValidationError("chunking.size", "must be positive")
	case c.Chunking.Overlap < 0:
		return domain.NewValidationError("chunking.overlap", "must not be negative")
	case c.Chunking.Overlap >= c.Chunking.Size:
		return domain.NewValidationError("chunking.overlap", "must be smaller than chunking.size")
	case c.Search.MaxResults <= 0:
		return domain.NewValidationError("search.max_results", "must be positive")
	case c.Search.SimilarityThreshold < 0 || c.Search.SimilarityThreshold > 1:
		return domain.NewValidationError("search.similarity_threshold", "must be within [0, 1]")
	case c.Ingest.AsyncThreshold < 0:
		return domain.NewValidationError("ingest.async_threshold", "must not be negative")
	case c.Ingest.Workers <= 0:
		return domain.NewValidationError("ingest.workers", "must be positive")
	case c.Ingest.Timeout <= 0:
		return domain.NewValidationError("backend.timeout", "must be positive")
	case !c.Embedding.Provider.IsValid():
		return domain.NewValidationError("embedding.provider", fmt.Sprintf("unknown provider %q", c.Embedding.Provider))
	case c.Embedding.Provider.RequiresAPIKey() && c.Embedding.APIKey == "":
		return domain.NewValidationError("embedding.api_key", fmt.Sprintf("required for %s", c.Embedding.Provider))
	case c.Embedding.Dimensions < 0:
		return domain.NewValidationError("embedding.dimensions", "must not be negative")
	case !c.Store.Backend.ValidDocumentBackend():
		return domain.NewValidationError("store.backend", fmt.Sprintf("unsupported backend %q", c.Store.Backend))
	case !c.Vector.Backend.ValidVectorBackend():
		return domain.NewValidationError("vector.backend", fmt.Sprintf("unsupported backend %q", c.Vector.Backend))
	case c.Vector.CollectionPrefix == "":
		return domain.NewValidationError("vector.collection_prefix", "must not be empty")
	case !c.Cache.Backend.ValidCacheBackend():
		return domain.NewValidationError("cache.backend", fmt.Sprintf("unsupported backend %q", c.Cache.Backend))
	case c.Cache.DocumentTTL < 0 || c.Cache.SearchTTL < 0:
		return domain.NewValidationError("cache.ttl", "must not be negative")
	case c.Events.ClaimIdle <= 0:
		return domain.NewValidationError(KeyEventsClaimIdle, "must be positive")
	case !c.Events.Backend.ValidEventBackend():
		return domain.NewValidationError("events.backend", fmt.Sprintf("unsupported backend %q", c.Events.Backend))
	case c.Store.Backend == domain.BackendSQLite && c.DataDir == "":
		return domain.NewValidationError("data.dir", "required for the sqlite store")
	}

	for _, topic := range c.Events.Topics.All() {
		if topic == "" {
			return domain.NewValidationError("events.topics", "topic names must not be empty")
		}
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return domain.NewValidationError("log.format", "must be text or json")
	}
	return nil
}
