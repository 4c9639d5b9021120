package domain

import "errors"

// ErrUnsupportedFormat indicates no normaliser can extract text from a MIME type.
var ErrUnsupportedFormat = errors.New("unsupported format")

// RawDocument is file content before text extraction.
type RawDocument struct {
	// URI is where the bytes came from, usually a file path.
	URI string

	// MIMEType is the content type (e.g., "text/html"). Empty means
	// derive it from the URI's extension.
	MIMEType string

	// Content is the raw bytes.
	Content []byte
}
