package domain

import (
	"fmt"
	"strings"
	"time"
)

// DefaultDocumentVersion is stamped on documents ingested without a version.
const DefaultDocumentVersion = "1.0"

// DocumentType classifies a document and selects its vector collection.
type DocumentType string

// Supported document types.
const (
	DocumentTypeGeneric       DocumentType = "generic"
	DocumentTypePolicy        DocumentType = "policy"
	DocumentTypeManual        DocumentType = "manual"
	DocumentTypeFAQ           DocumentType = "faq"
	DocumentTypeKnowledgeBase DocumentType = "knowledge_base"
)

// DocumentTypes lists every supported type in collection order.
func DocumentTypes() []DocumentType {
	return []DocumentType{
		DocumentTypeGeneric,
		DocumentTypePolicy,
		DocumentTypeManual,
		DocumentTypeFAQ,
		DocumentTypeKnowledgeBase,
	}
}

// IsValid returns true if the document type is recognised.
func (t DocumentType) IsValid() bool {
	switch t {
	case DocumentTypeGeneric, DocumentTypePolicy, DocumentTypeManual,
		DocumentTypeFAQ, DocumentTypeKnowledgeBase:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (t DocumentType) String() string {
	return string(t)
}

// CollectionSuffix returns the collection name suffix for this type.
func (t DocumentType) CollectionSuffix() string {
	switch t {
	case DocumentTypePolicy:
		return "policies"
	case DocumentTypeManual:
		return "manuals"
	case DocumentTypeFAQ:
		return "faqs"
	case DocumentTypeKnowledgeBase:
		return "knowledge_base"
	default:
		return "documents"
	}
}

// CollectionName returns the vector collection holding chunks of this type.
func (t DocumentType) CollectionName(prefix string) string {
	if prefix == "" {
		return t.CollectionSuffix()
	}
	return prefix + "_" + t.CollectionSuffix()
}

// ParseDocumentType converts user input into a DocumentType.
// The legacy name "document" maps to generic.
func ParseDocumentType(s string) (DocumentType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "document" {
		return DocumentTypeGeneric, nil
	}
	t := DocumentType(s)
	if !t.IsValid() {
		return "", NewValidationError("document_type", fmt.Sprintf("unknown document type %q", s))
	}
	return t, nil
}

// AccessLevel is the confidentiality tier of a document.
type AccessLevel string

// Supported access levels.
const (
	AccessLevelPublic       AccessLevel = "public"
	AccessLevelInternal     AccessLevel = "internal"
	AccessLevelConfidential AccessLevel = "confidential"
	AccessLevelRestricted   AccessLevel = "restricted"
)

// IsValid returns true if the access level is recognised.
func (a AccessLevel) IsValid() bool {
	switch a {
	case AccessLevelPublic, AccessLevelInternal, AccessLevelConfidential, AccessLevelRestricted:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (a AccessLevel) String() string {
	return string(a)
}

// ParseAccessLevel converts user input into an AccessLevel.
func ParseAccessLevel(s string) (AccessLevel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return AccessLevelInternal, nil
	}
	a := AccessLevel(s)
	if !a.IsValid() {
		return "", NewValidationError("access_level", fmt.Sprintf("unknown access level %q", s))
	}
	return a, nil
}

// Document is a free-text document managed by the engine.
type Document struct {
	// ID is assigned on first ingest and never changes afterwards.
	ID string `json:"id"`

	// Title is the human-readable title.
	Title string `json:"title"`

	// Content is the full UTF-8 text before chunking.
	Content string `json:"content"`

	// DocumentType selects the vector collection.
	DocumentType DocumentType `json:"document_type"`

	// AccessLevel is copied into metadata for filtered search.
	AccessLevel AccessLevel `json:"access_level"`

	// Metadata is an open map that accumulates extracted fields.
	Metadata map[string]any `json:"metadata"`

	// Version is the caller-visible document version label.
	Version string `json:"version"`

	// Revision is bumped on every stored mutation.
	// Updates may pass the revision they read to detect concurrent writers.
	Revision int64 `json:"revision"`

	// ChunkSize and ChunkOverlap override processor defaults when > 0.
	ChunkSize    int `json:"chunk_size,omitempty"`
	ChunkOverlap int `json:"chunk_overlap,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the fields the engine itself reads.
func (d *Document) Validate() error {
	if d == nil {
		return NewValidationError("document", "document is required")
	}
	if strings.TrimSpace(d.Title) == "" {
		return NewValidationError("title", "title is required")
	}
	if d.DocumentType != "" && !d.DocumentType.IsValid() {
		return NewValidationError("document_type", fmt.Sprintf("unknown document type %q", d.DocumentType))
	}
	if d.AccessLevel != "" && !d.AccessLevel.IsValid() {
		return NewValidationError("access_level", fmt.Sprintf("unknown access level %q", d.AccessLevel))
	}
	if d.ChunkSize < 0 || d.ChunkOverlap < 0 {
		return NewValidationError("chunk_size", "chunk size and overlap must not be negative")
	}
	if d.ChunkSize > 0 && d.ChunkOverlap >= d.ChunkSize {
		return NewValidationError("chunk_overlap", "overlap must be smaller than chunk size")
	}
	return nil
}

// Clone returns a copy whose metadata map can be mutated independently.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.Metadata = CloneMetadata(d.Metadata)
	return &c
}

// Collection returns the vector collection for this document.
func (d *Document) Collection(prefix string) string {
	t := d.DocumentType
	if t == "" {
		t = DocumentTypeGeneric
	}
	return t.CollectionName(prefix)
}

// ChunkPosition tags where a chunk sits inside its document.
type ChunkPosition string

// Chunk positions.
const (
	PositionStart  ChunkPosition = "start"
	PositionMiddle ChunkPosition = "middle"
	PositionEnd    ChunkPosition = "end"
)

// Chunk is a bounded substring of a document, embedded independently.
type Chunk struct {
	// ID doubles as the vector id in the vector index.
	ID string `json:"id"`

	// DocumentID links to the parent Document.
	DocumentID string `json:"document_id"`

	// Index is zero-based and dense within a document.
	Index int `json:"chunk_index"`

	// Content is the trimmed chunk text.
	Content string `json:"content"`

	// Position is start, middle or end.
	Position ChunkPosition `json:"position"`

	// StartOffset and EndOffset are the byte window [start, end) the chunk was cut
	// from, before trimming. Consecutive windows overlap or touch.
	StartOffset int `json:"start_offset"`
	EndOffset   int `json:"end_offset"`

	// Collection is the vector collection the chunk was written to.
	Collection string `json:"collection,omitempty"`

	// Embedding is the vector representation. Not persisted with the document.
	Embedding []float32 `json:"-"`

	// Metadata inherits the parent document metadata.
	Metadata map[string]any `json:"metadata"`
}

// CloneMetadata shallow-copies a metadata map. Nil stays nil.
func CloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// IngestOptions tunes a single ingest call.
type IngestOptions struct {
	// Async forces background (true) or inline (false) execution.
	// When nil the content-size threshold decides.
	Async *bool
}

// Bool returns a pointer to v, for IngestOptions.Async.
func Bool(v bool) *bool {
	return &v
}

// IngestResult reports the outcome of Ingest.
// ChunksCreated and VectorIDs are unset when the work runs in the background.
type IngestResult struct {
	Success       bool     `json:"success"`
	DocumentID    string   `json:"document_id,omitempty"`
	ChunksCreated *int     `json:"chunks_created"`
	VectorIDs     []string `json:"vector_ids"`
	Async         bool     `json:"async"`
	Error         string   `json:"error,omitempty"`
}

// MutationResult reports the outcome of Update and Delete.
type MutationResult struct {
	Success    bool   `json:"success"`
	DocumentID string `json:"document_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Stats summarises stored content.
type Stats struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
}
