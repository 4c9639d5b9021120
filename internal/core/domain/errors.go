package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrVersionConflict indicates the stored revision moved since it was read.
	ErrVersionConflict = errors.New("version conflict")

	// ErrPartialWrite indicates the stores were left inconsistent.
	ErrPartialWrite = errors.New("partial write")

	// ErrClosed indicates the component has been shut down.
	ErrClosed = errors.New("closed")
)

// Backend availability errors. All of them are retryable.
var (
	// ErrEmbeddingUnavailable indicates the embedding provider failed or is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrVectorIndexUnavailable indicates the vector index could not be reached.
	ErrVectorIndexUnavailable = errors.New("vector index unavailable")

	// ErrDocumentStoreUnavailable indicates the document store could not be reached.
	ErrDocumentStoreUnavailable = errors.New("document store unavailable")

	// ErrCacheUnavailable indicates the cache backend could not be reached.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrEventBusUnavailable indicates the event bus could not be reached.
	ErrEventBusUnavailable = errors.New("event bus unavailable")
)

// ValidationError reports bad caller input. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidInput) hold for validation errors.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// BackendError wraps a failure talking to one of the storage backends.
type BackendError struct {
	// Backend is one of the Err*Unavailable sentinels.
	Backend error
	Op      string
	Err     error
}

// NewBackendError wraps err as a retryable failure of backend during op.
func NewBackendError(backend error, op string, err error) *BackendError {
	return &BackendError{Backend: backend, Op: op, Err: err}
}

func (e *BackendError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Backend)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Backend, e.Err)
}

func (e *BackendError) Unwrap() []error {
	return []error{e.Backend, e.Err}
}

// Retryable is always true for backend failures.
func (e *BackendError) Retryable() bool {
	return true
}

// PartialWriteError is returned when one store accepted a write and another did not.
type PartialWriteError struct {
	DocumentID string
	Stage      string
	Err        error

	// RolledBack is true when the compensating actions all succeeded.
	RolledBack bool
}

func (e *PartialWriteError) Error() string {
	state := "rollback incomplete"
	if e.RolledBack {
		state = "rolled back"
	}
	return fmt.Sprintf("partial write for document %s at %s (%s): %v", e.DocumentID, e.Stage, state, e.Err)
}

func (e *PartialWriteError) Unwrap() []error {
	return []error{ErrPartialWrite, e.Err}
}

// IsRetryable reports whether the caller may retry the operation with backoff.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	for _, target := range []error{
		ErrEmbeddingUnavailable,
		ErrVectorIndexUnavailable,
		ErrDocumentStoreUnavailable,
		ErrCacheUnavailable,
		ErrEventBusUnavailable,
		ErrVersionConflict,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
