package driven

import (
	"context"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
)

// DocumentStore persists normalised documents and their chunk records.
// Chunk records hold the vector ids written to the VectorIndex so that
// updates and deletes can address every vector of a document.
type DocumentStore interface {
	// SaveDocument inserts or replaces a document together with its chunks.
	// When expectedRevision > 0 and the stored revision differs, it returns
	// domain.ErrVersionConflict and writes nothing. The stored revision is
	// incremented and written back into doc.
	SaveDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk, expectedRevision int64) error

	// GetDocument retrieves a document by ID. Returns domain.ErrNotFound if absent.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// GetChunks retrieves all chunk records for a document, ordered by index.
	GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// DeleteDocument removes a document and its chunk records.
	// Returns domain.ErrNotFound when nothing was deleted.
	DeleteDocument(ctx context.Context, id string) error

	// ListDocuments returns documents ordered by most recently updated first.
	// A limit <= 0 returns all documents.
	ListDocuments(ctx context.Context, limit int) ([]domain.Document, error)

	// Stats returns document and chunk counts.
	Stats(ctx context.Context) (domain.Stats, error)

	// Close releases resources.
	Close() error
}
