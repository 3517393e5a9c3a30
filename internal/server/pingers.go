package server

import (
	"context"
	"fmt"

	"github.com/askdoc/askdoc/internal/rag"
)

// IndexPinger probes the vector index by issuing a cheap row count. It
// satisfies the Pinger interface and is used by GET /api/ready.
// The embedder and Qdrant backends implement Pinger themselves, so this
// covers the local SQLite index, which has no network probe of its own.
type IndexPinger struct {
	// store is the vector store to probe.
	store rag.VectorStore
}

// NewIndexPinger constructs an IndexPinger for the given vector store.
func NewIndexPinger(store rag.VectorStore) *IndexPinger {
	return &IndexPinger{store: store}
}

// Name returns the dependency label used in readiness responses.
func (p *IndexPinger) Name() string { return "index" }

// Ping counts the indexed chunks. An empty index is reported as not ready
// since queries against it cannot be answered.
func (p *IndexPinger) Ping(ctx context.Context) error {
	n, err := p.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count failed: %w", err)
	}
	if n == 0 {
		return rag.ErrEmptyIndex
	}
	return nil
}
