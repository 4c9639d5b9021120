package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
	"github.com/azad25/erp-ai-copilot-sub000/internal/core/ports/driven"
)

// DocumentProcessor normalises documents and runs them through the
// post-processing pipeline to produce chunks.
type DocumentProcessor struct {
	pipeline    driven.PostProcessorPipeline
	derivedKeys []string
	now         func() time.Time
}

// NewDocumentProcessor creates a processor. derivedKeys lists metadata keys
// the pipeline computes; Refresh strips them so they are recomputed.
func NewDocumentProcessor(pipeline driven.PostProcessorPipeline, derivedKeys ...string) *DocumentProcessor {
	return &DocumentProcessor{
		pipeline:    pipeline,
		derivedKeys: derivedKeys,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Normalize assigns an id and timestamps when absent and fills enum defaults.
func (p *DocumentProcessor) Normalize(doc *domain.Document) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := p.now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}
	if doc.DocumentType == "" {
		doc.DocumentType = domain.DocumentTypeGeneric
	}
	if doc.AccessLevel == "" {
		doc.AccessLevel = domain.AccessLevelInternal
	}
	if doc.Version == "" {
		doc.Version = domain.DefaultDocumentVersion
	}
}

// Refresh removes derived metadata carried over from the stored document so
// the pipeline recomputes it from the current fields. A derived key whose
// value differs from stored was set by the caller and is kept.
func (p *DocumentProcessor) Refresh(doc *domain.Document, stored map[string]any) {
	if doc.Metadata == nil {
		return
	}
	for _, k := range p.derivedKeys {
		v, ok := doc.Metadata[k]
		if !ok {
			continue
		}
		prev, had := stored[k]
		if had && sameValue(v, prev) {
			delete(doc.Metadata, k)
		}
	}
}

// sameValue compares metadata values by their JSON form, since stored
// values may have been decoded into different Go types.
func sameValue(a, b any) bool {
	ja, err := json.Marshal(a)
	if err != nil {
		return false
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}

// Process normalises doc in place and returns its chunks, each carrying
// the document id. Empty content yields no chunks.
func (p *DocumentProcessor) Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	p.Normalize(doc)

	chunks, err := p.pipeline.Process(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("process document %s: %w", doc.ID, err)
	}
	for i := range chunks {
		chunks[i].DocumentID = doc.ID
		chunks[i].Index = i
		if chunks[i].ID == "" {
			chunks[i].ID = uuid.NewString()
		}
	}
	return chunks, nil
}
