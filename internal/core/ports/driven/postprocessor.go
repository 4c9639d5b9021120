package driven

import (
	"context"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
)

// PostProcessor is one stage of document processing.
// Stages run in order: enrichers (e.g. metadata) may mutate the document and
// pass chunks through; the chunker receives nil and creates chunks.
type PostProcessor interface {
	// Name returns the processor name for logging and configuration.
	Name() string

	// Process takes a document and the chunks produced so far and returns chunks.
	Process(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error)
}

// PostProcessorPipeline chains multiple PostProcessors.
type PostProcessorPipeline interface {
	// Process runs the document through all processors in order.
	// Returns the final chunks after all processing.
	Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error)
}
