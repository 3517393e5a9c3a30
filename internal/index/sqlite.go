// Package index provides persistent vector index backends. The default
// backend is a local SQLite database storing chunk text alongside its
// embedding as a little-endian float32 blob; search is exact brute-force
// cosine similarity, which is the right trade-off for single-document
// corpora of a few thousand chunks. A Qdrant backend is available for
// deployments that already run one.
package index

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/askdoc/askdoc/internal/rag"
)

// Meta describes how an index was built. It is persisted alongside the
// vectors so that a reopened index can be checked against the current
// configuration and document.
type Meta struct {
	// Model is the embedding model used at build time.
	Model string
	// Dimension is the embedding vector length.
	Dimension int
	// DocumentPath is the source document the index was built from.
	DocumentPath string
	// DocumentSHA256 is the hex digest of the document content at build time.
	DocumentSHA256 string
	// CreatedAt is when the index was built.
	CreatedAt time.Time
}

// SQLiteIndex is a rag.VectorStore backed by a local SQLite database.
// An index is built once and then only read; it is safe for concurrent reads.
type SQLiteIndex struct {
	db *sql.DB
}

// Open opens an existing index at the given path. It returns
// rag.ErrIndexNotFound when no file exists there, which callers use to
// decide between reopening and rebuilding.
func Open(path string) (*SQLiteIndex, error) {
	if path != ":memory:" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("index: %s: %w", path, rag.ErrIndexNotFound)
		}
	}
	return open(path)
}

// open opens the database without the existence check. Used by Build, which
// is allowed to create the file.
func open(path string) (*SQLiteIndex, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY during builds.
	db.SetMaxOpenConns(1)

	idx := &SQLiteIndex{db: db}
	if err := idx.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteIndex) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS chunks (
    id           TEXT    NOT NULL UNIQUE,
    content      TEXT    NOT NULL,
    source       TEXT    NOT NULL,
    page         INTEGER NOT NULL DEFAULT 0,
    chunk_index  INTEGER NOT NULL,
    vector       BLOB    NOT NULL,
    dimension    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS meta (
    key    TEXT PRIMARY KEY,
    value  TEXT NOT NULL
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("index: migrate: %w", err)
	}
	return nil
}

// Build creates (or replaces) an index at the given path from the given
// chunks and their embeddings. The two slices must be parallel. An empty
// chunk set returns rag.ErrEmptyIndex: an index that can never answer
// anything is a configuration error, not a valid state.
func Build(ctx context.Context, path string, docs []rag.Document, embeddings [][]float32, meta Meta) (*SQLiteIndex, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("index: build %s: %w", path, rag.ErrEmptyIndex)
	}
	if len(docs) != len(embeddings) {
		return nil, fmt.Errorf("index: build %s: %d chunks but %d embeddings", path, len(docs), len(embeddings))
	}

	// Duplicate chunk IDs with different content would silently drop data;
	// identical duplicates (e.g. a repeated boilerplate page) are skipped.
	seen := make(map[string]string, len(docs))

	idx, err := open(path)
	if err != nil {
		return nil, err
	}

	if err := idx.build(ctx, docs, embeddings, seen, meta); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return idx, nil
}

func (s *SQLiteIndex) build(ctx context.Context, docs []rag.Document, embeddings [][]float32, seen map[string]string, meta Meta) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin build: %w", err)
	}
	defer tx.Rollback()

	// A rebuild over an existing file replaces its contents entirely.
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("index: clear chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM meta`); err != nil {
		return fmt.Errorf("index: clear meta: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO chunks (id, content, source, page, chunk_index, vector, dimension)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, d := range docs {
		if prev, ok := seen[d.ID]; ok {
			if prev == d.Content {
				continue
			}
			return fmt.Errorf("index: chunk ID collision on %q with differing content", d.ID)
		}
		seen[d.ID] = d.Content

		if len(embeddings[i]) == 0 {
			return fmt.Errorf("index: empty embedding for chunk %q", d.ID)
		}
		blob := vectorToBlob(embeddings[i])
		if _, err := stmt.ExecContext(ctx, d.ID, d.Content, d.Source, d.Page, d.ChunkIndex, blob, len(embeddings[i])); err != nil {
			return fmt.Errorf("index: insert chunk %q: %w", d.ID, err)
		}
	}

	metaStmt, err := tx.PrepareContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare meta insert: %w", err)
	}
	defer metaStmt.Close()

	createdAt := meta.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	pairs := [][2]string{
		{"model", meta.Model},
		{"dimension", fmt.Sprintf("%d", meta.Dimension)},
		{"document_path", meta.DocumentPath},
		{"document_sha256", meta.DocumentSHA256},
		{"created_at", createdAt.Format(time.RFC3339)},
	}
	for _, p := range pairs {
		if _, err := metaStmt.ExecContext(ctx, p[0], p[1]); err != nil {
			return fmt.Errorf("index: insert meta %s: %w", p[0], err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit build: %w", err)
	}
	return nil
}

// Meta returns the build metadata recorded in the index.
func (s *SQLiteIndex) Meta(ctx context.Context) (Meta, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return Meta{}, fmt.Errorf("index: read meta: %w", err)
	}
	defer rows.Close()

	var m Meta
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Meta{}, fmt.Errorf("index: scan meta: %w", err)
		}
		switch k {
		case "model":
			m.Model = v
		case "dimension":
			fmt.Sscanf(v, "%d", &m.Dimension)
		case "document_path":
			m.DocumentPath = v
		case "document_sha256":
			m.DocumentSHA256 = v
		case "created_at":
			m.CreatedAt, _ = time.Parse(time.RFC3339, v)
		}
	}
	if err := rows.Err(); err != nil {
		return Meta{}, fmt.Errorf("index: meta rows: %w", err)
	}
	return m, nil
}

// Search returns the topK chunks most similar to the query embedding,
// highest similarity first. Ties preserve insertion order. Asking for more
// results than the index holds returns everything; topK < 1 is an error.
func (s *SQLiteIndex) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]rag.Document, error) {
	if topK < 1 {
		return nil, fmt.Errorf("index: topK %d: %w", topK, rag.ErrInvalidTopK)
	}
	if len(queryEmbedding) == 0 {
		return nil, fmt.Errorf("index: query embedding is empty")
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, content, source, page, chunk_index, vector, dimension
FROM   chunks
ORDER  BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("index: query chunks: %w", err)
	}
	defer rows.Close()

	var results []rag.Document
	for rows.Next() {
		var d rag.Document
		var blob []byte
		var dim int
		if err := rows.Scan(&d.ID, &d.Content, &d.Source, &d.Page, &d.ChunkIndex, &blob, &dim); err != nil {
			return nil, fmt.Errorf("index: scan chunk: %w", err)
		}

		vec, err := blobToVector(blob)
		if err != nil {
			return nil, fmt.Errorf("index: chunk %q: %w", d.ID, err)
		}
		if len(vec) != len(queryEmbedding) {
			return nil, fmt.Errorf("index: chunk %q has dimension %d, query has %d", d.ID, len(vec), len(queryEmbedding))
		}

		d.Score = cosineSimilarity(queryEmbedding, vec)
		results = append(results, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: chunk rows: %w", err)
	}

	// Stable sort keeps insertion order among equal scores.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Count returns the number of chunks stored in the index.
func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

// Close releases the database connection pool.
func (s *SQLiteIndex) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("index: close: %w", err)
	}
	return nil
}

// cosineSimilarity computes the cosine of the angle between two vectors of
// equal length. Zero vectors score 0.
func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// vectorToBlob serializes a float32 vector as little-endian bytes.
func vectorToBlob(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:i*4+4], math.Float32bits(v))
	}
	return blob
}

// blobToVector deserializes a little-endian float32 vector.
func blobToVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("vector blob size %d is not a multiple of 4", len(blob))
	}
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4 : i*4+4]))
	}
	return vector, nil
}
