package driven

import (
	"context"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
)

// Normaliser extracts plain text from one family of file formats.
type Normaliser interface {
	// SupportedMIMETypes returns the MIME types this normaliser handles.
	// A "type/*" entry matches every subtype.
	SupportedMIMETypes() []string

	// Priority returns the selection priority (higher = preferred).
	// Format-specific normalisers return 50-89, fallbacks 1-9.
	Priority() int

	// Normalise extracts the text of a raw document.
	Normalise(ctx context.Context, raw *domain.RawDocument) (*NormaliseResult, error)
}

// NormaliseResult is the text extracted from a raw document.
// Chunking happens later, in the post-processing pipeline.
type NormaliseResult struct {
	// Title is the format's own title (HTML <title>, first heading, email
	// subject), falling back to the file name.
	Title string

	// Content is the extracted UTF-8 text.
	Content string

	// Metadata holds format fields such as "format" or an email's "from".
	Metadata map[string]any
}
