package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/askdoc/askdoc/internal/logging"
	"github.com/askdoc/askdoc/internal/rag"
)

// SQLiteBackend adapts the SQLite index to the pipeline's open-or-build
// contract. Whether an index exists is decided by the file at Path alone;
// the recorded document fingerprint is only ever used to warn, never to
// trigger a rebuild, so reopening stays fast and side-effect free.
type SQLiteBackend struct {
	// Path is the index database file.
	Path string
	// Meta describes the build about to happen; used by Build.
	Meta Meta
}

// Open reopens the index at Path. When the recorded document fingerprint
// differs from the document currently on disk, a warning is logged: the
// operator should run an explicit rebuild if the change matters.
func (b *SQLiteBackend) Open(ctx context.Context) (rag.VectorStore, error) {
	idx, err := Open(b.Path)
	if err != nil {
		return nil, err
	}

	m, err := idx.Meta(ctx)
	if err != nil {
		_ = idx.Close()
		return nil, err
	}
	b.warnIfStale(ctx, m)
	return idx, nil
}

// Build creates a fresh index at Path from the given chunks.
func (b *SQLiteBackend) Build(ctx context.Context, docs []rag.Document, embeddings [][]float32) (rag.VectorStore, error) {
	meta := b.Meta
	if meta.DocumentSHA256 == "" && meta.DocumentPath != "" {
		if sum, err := FileSHA256(meta.DocumentPath); err == nil {
			meta.DocumentSHA256 = sum
		}
	}
	if meta.Dimension == 0 && len(embeddings) > 0 {
		meta.Dimension = len(embeddings[0])
	}
	meta.CreatedAt = time.Now().UTC()
	return Build(ctx, b.Path, docs, embeddings, meta)
}

func (b *SQLiteBackend) warnIfStale(ctx context.Context, recorded Meta) {
	log := logging.FromContext(ctx)

	docPath := b.Meta.DocumentPath
	if docPath == "" {
		docPath = recorded.DocumentPath
	}
	if docPath == "" || recorded.DocumentSHA256 == "" {
		return
	}

	current, err := FileSHA256(docPath)
	if err != nil {
		log.Warn("index: cannot fingerprint document for staleness check",
			slog.String("document", docPath),
			slog.String("error", err.Error()),
		)
		return
	}
	if current != recorded.DocumentSHA256 {
		log.Warn("index: document changed since the index was built; answers may be stale",
			slog.String("document", docPath),
			slog.Time("index_built", recorded.CreatedAt),
			slog.String("hint", "run 'askdoc index --rebuild' to refresh"),
		)
	}
}

// QdrantBackend adapts the Qdrant index to the pipeline's open-or-build
// contract. Collection existence plays the role of the index file.
type QdrantBackend struct {
	Config *QdrantConfig
}

func (b *QdrantBackend) Open(ctx context.Context) (rag.VectorStore, error) {
	return OpenQdrant(ctx, b.Config)
}

func (b *QdrantBackend) Build(ctx context.Context, docs []rag.Document, embeddings [][]float32) (rag.VectorStore, error) {
	if b.Config.VectorSize == 0 && len(embeddings) > 0 {
		b.Config.VectorSize = uint64(len(embeddings[0]))
	}
	return BuildQdrant(ctx, b.Config, docs, embeddings)
}

// FileSHA256 returns the hex SHA-256 digest of the file's contents.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("index: fingerprint %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("index: fingerprint %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
