// Package rag defines the shared types and interfaces for the
// retrieval-augmented answering pipeline: document loading, chunking,
// embedding, vector storage, retrieval, and grounded generation.
// Concrete implementations (SQLite, Qdrant, Ollama, etc.) satisfy these
// interfaces so the pipeline never depends on a specific backend.
package rag

import (
	"context"
)

// SourceDocument is one logical unit emitted by a document loader:
// the whole file for plain text, one page for a PDF. Immutable once produced.
type SourceDocument struct {
	// Content is the raw extracted text of this unit.
	Content string

	// Source is the filesystem path the unit was loaded from.
	Source string

	// Page is the 1-based page number within the source file.
	// Zero when the format has no page structure (plain text).
	Page int
}

// Document is an indexed chunk of a source document, the unit of
// retrieval. Immutable after creation.
type Document struct {
	// ID is the unique identifier for this chunk, deterministic for a
	// given source, page, and chunk index.
	ID string

	// Content is the chunk text. Consecutive chunks of the same source
	// overlap by the configured overlap length.
	Content string

	// Source is the origin file path of the chunk.
	Source string

	// Page is the 1-based page number the chunk was cut from (0 = none).
	Page int

	// ChunkIndex is the position of this chunk within its source document,
	// monotonically increasing per source.
	ChunkIndex int

	// Score is the similarity score assigned during retrieval (0.0–1.0 for
	// cosine similarity of non-degenerate vectors). Zero value means the
	// score was not computed.
	Score float32
}

// Answer pairs generated answer text with the chunks it was grounded in.
type Answer struct {
	// Text is the model output, trimmed of leading/trailing whitespace.
	Text string

	// Sources are the retrieved chunks handed to the model, in rank order.
	Sources []Document
}

// Loader reads a source file and produces its ordered sequence of
// SourceDocuments. Implementations are selected by file extension.
type Loader interface {
	// Load reads the file at path. Returns ErrDocumentNotFound if the file
	// does not exist and ErrUnsupportedFormat for extensions outside the
	// loader's allow-list.
	Load(path string) ([]SourceDocument, error)
}

// Chunker splits loader output into overlapping chunks suitable for indexing.
type Chunker interface {
	// Split produces the chunk sequence for docs. Deterministic: identical
	// input yields identical output.
	Split(docs []SourceDocument) ([]Document, error)
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore is a read handle to a populated vector index.
// Implementations must support concurrent Search calls without mutation.
type VectorStore interface {
	// Search returns up to topK documents ranked by descending cosine
	// similarity to queryEmbedding. Fewer than topK entries in the index is
	// not an error; all entries are returned. topK <= 0 fails with
	// ErrInvalidTopK.
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error)

	// Count returns the number of indexed chunks.
	Count(ctx context.Context) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// Retriever is the high-level interface the pipeline uses to fetch relevant
// context for a query. It combines embedding and vector search.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns the top-k most relevant documents for the given query.
	Retrieve(ctx context.Context, query string, topK int) ([]Document, error)
}

// Generator produces a grounded answer from a question and its retrieved
// context. Implementations must be safe to call from multiple goroutines.
type Generator interface {
	// Generate invokes the language model with a grounding prompt built from
	// docs and returns the answer paired with docs as its sources.
	Generate(ctx context.Context, question string, docs []Document) (*Answer, error)
}
