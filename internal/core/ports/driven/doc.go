// Package driven defines the interfaces the core calls out to.
//
// Required by the RAG service:
//
//   - DocumentStore: documents and their chunk records (SQLite or memory)
//   - VectorIndex: collection-scoped similarity search (Qdrant or memory)
//   - EmbeddingService: text to vector (hashing, OpenAI, Ollama)
//   - PostProcessorPipeline: metadata fill-in and chunking
//
// Optional, nil disables the feature:
//
//   - KeyValueCache: document and search caches
//   - EventBus: change and search notifications
//   - MetricsRecorder: operational metrics
//
// ConfigStore and NormaliserRegistry are used by the CLI and at startup only.
// Implementations live under internal/adapters/driven and internal/normalisers.
package driven
