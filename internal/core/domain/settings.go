package domain

const unknownDescription = "Unknown"

// EmbeddingProvider identifies the service that turns text into vectors.
type EmbeddingProvider string

// Available embedding providers.
const (
	// EmbeddingProviderHashing is the built-in offline feature-hashing embedder.
	EmbeddingProviderHashing EmbeddingProvider = "hashing"

	// EmbeddingProviderOpenAI is the OpenAI embeddings API (or a compatible server).
	EmbeddingProviderOpenAI EmbeddingProvider = "openai"

	// EmbeddingProviderOllama is a local Ollama instance.
	EmbeddingProviderOllama EmbeddingProvider = "ollama"
)

// IsValid returns true if the provider is recognised.
func (p EmbeddingProvider) IsValid() bool {
	switch p {
	case EmbeddingProviderHashing, EmbeddingProviderOpenAI, EmbeddingProviderOllama:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if the provider needs an API key.
func (p EmbeddingProvider) RequiresAPIKey() bool {
	return p == EmbeddingProviderOpenAI
}

// String returns the string representation.
func (p EmbeddingProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p EmbeddingProvider) Description() string {
	switch p {
	case EmbeddingProviderHashing:
		return "Hashing (offline, built-in)"
	case EmbeddingProviderOpenAI:
		return "OpenAI (cloud API)"
	case EmbeddingProviderOllama:
		return "Ollama (local)"
	default:
		return unknownDescription
	}
}

// BackendKind selects the implementation of a storage or messaging port.
type BackendKind string

// Available backends. Not every kind applies to every port.
const (
	BackendMemory BackendKind = "memory"
	BackendSQLite BackendKind = "sqlite"
	BackendQdrant BackendKind = "qdrant"
	BackendRedis  BackendKind = "redis"
)

// String returns the string representation.
func (b BackendKind) String() string {
	return string(b)
}

// ValidVectorBackend reports whether b can back the vector index.
func (b BackendKind) ValidVectorBackend() bool {
	return b == BackendMemory || b == BackendQdrant
}

// ValidCacheBackend reports whether b can back the caches.
func (b BackendKind) ValidCacheBackend() bool {
	return b == BackendMemory || b == BackendRedis
}

// ValidEventBackend reports whether b can back the event bus.
func (b BackendKind) ValidEventBackend() bool {
	return b == BackendMemory || b == BackendRedis
}

// ValidDocumentBackend reports whether b can back the document store.
func (b BackendKind) ValidDocumentBackend() bool {
	return b == BackendMemory || b == BackendSQLite
}

// Description returns a human-readable description of the backend.
func (b BackendKind) Description() string {
	switch b {
	case BackendMemory:
		return "In-process memory"
	case BackendSQLite:
		return "SQLite file"
	case BackendQdrant:
		return "Qdrant server"
	case BackendRedis:
		return "Redis server"
	default:
		return unknownDescription
	}
}
