package driven

import (
	"context"

	"github.com/azad25/erp-ai-copilot-sub000/internal/core/domain"
)

// NormaliserRegistry extracts text from files of any registered format.
// When several normalisers accept a MIME type the highest priority wins.
type NormaliserRegistry interface {
	// Normalise derives the MIME type from raw.URI when raw.MIMEType is empty.
	// It fails with domain.ErrUnsupportedFormat when no normaliser accepts it.
	Normalise(ctx context.Context, raw *domain.RawDocument) (*NormaliseResult, error)

	Register(normaliser Normaliser)

	// SupportedMIMETypes lists accepted types, sorted. Entries may be
	// family wildcards such as "text/*".
	SupportedMIMETypes() []string
}
