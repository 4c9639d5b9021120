// Package services holds the engine's business logic: the RAG orchestrator,
// its document and search caches, the per-document lock table, the
// background ingest pool, event consumers and the health checker.
//
// Services depend only on domain types and driven ports; adapters are
// injected by internal/app.
package services
