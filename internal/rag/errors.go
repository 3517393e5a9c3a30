package rag

import "errors"

// Sentinel errors shared across pipeline components. Callers classify
// failures with [errors.Is]; implementations wrap these with context via
// fmt.Errorf("...: %w", ...).
var (
	// ErrDocumentNotFound indicates the configured source document does not
	// exist on the filesystem.
	ErrDocumentNotFound = errors.New("source document not found")

	// ErrUnsupportedFormat indicates the source document's extension is
	// outside the loader allow-list (.txt, .pdf).
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrIndexNotFound indicates no persisted vector index exists at the
	// configured location. The pipeline reacts by building a fresh index.
	ErrIndexNotFound = errors.New("vector index not found")

	// ErrEmptyIndex indicates an index build was attempted with zero chunks.
	ErrEmptyIndex = errors.New("cannot build index from zero chunks")

	// ErrInvalidTopK indicates a Search call with topK <= 0.
	ErrInvalidTopK = errors.New("top-k must be positive")
)
