// Package normalisers extracts plain text from files before ingestion.
// Each normaliser handles a family of MIME types; Registry picks one by
// MIME type and priority.
package normalisers
