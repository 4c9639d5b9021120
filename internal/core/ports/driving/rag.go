package driving

import (
	"context"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
)

// RAGService is the engine's API surface, consumed by the CLI, the MCP server
// and inbound event consumers.
//
// Expected failures (validation, not found) are reported through the Success
// and Error fields of the result types. Returned errors are typed (see
// domain.ValidationError, domain.BackendError, domain.PartialWriteError) so
// callers can decide whether to retry.
type RAGService interface {
	// Ingest processes, embeds, indexes and stores a document.
	Ingest(ctx context.Context, doc domain.Document, opts domain.IngestOptions) (domain.IngestResult, error)

	// Get returns a document by id, or (nil, nil) when it does not exist.
	Get(ctx context.Context, id string) (*domain.Document, error)

	// Update replaces the content and metadata of an existing document and
	// regenerates all of its chunks and vectors.
	Update(ctx context.Context, id string, doc domain.Document) (domain.MutationResult, error)

	// Delete removes a document, its vectors and any cached copies.
	Delete(ctx context.Context, id string) (domain.MutationResult, error)

	// Search runs a semantic similarity query. No hits is an empty result, not an error.
	Search(ctx context.Context, query domain.SearchQuery) (*domain.SearchResponse, error)

	// Context searches and merges the hits into a token-bounded context string.
	Context(ctx context.Context, query domain.SearchQuery, maxTokens int) (string, error)

	// List returns stored documents, most recently updated first.
	List(ctx context.Context, limit int) ([]domain.Document, error)

	// Stats returns stored document and chunk counts.
	Stats(ctx context.Context) (domain.Stats, error)
}
