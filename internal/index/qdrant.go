package index

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/askdoc/askdoc/internal/rag"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantIndex implements rag.VectorStore backed by a Qdrant instance. The
// collection plays the role the SQLite file plays locally: its existence
// decides whether the index must be rebuilt.
type QdrantIndex struct {
	client *qdrant.Client
	cfg    *QdrantConfig
}

// OpenQdrant connects to Qdrant and returns an index over an existing
// collection. A missing collection maps to rag.ErrIndexNotFound so callers
// can fall through to a rebuild, mirroring the SQLite backend.
func OpenQdrant(ctx context.Context, cfg *QdrantConfig) (*QdrantIndex, error) {
	idx, err := connectQdrant(cfg)
	if err != nil {
		return nil, err
	}

	exists, err := idx.client.CollectionExists(ctx, cfg.Collection)
	if err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("qdrant: check collection existence: %w", err)
	}
	if !exists {
		_ = idx.Close()
		return nil, fmt.Errorf("qdrant: collection %q: %w", cfg.Collection, rag.ErrIndexNotFound)
	}
	return idx, nil
}

// BuildQdrant recreates the collection from the given chunks and embeddings.
// An existing collection is dropped first so a rebuild fully replaces it.
func BuildQdrant(ctx context.Context, cfg *QdrantConfig, docs []rag.Document, embeddings [][]float32) (*QdrantIndex, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("qdrant: build %q: %w", cfg.Collection, rag.ErrEmptyIndex)
	}
	if len(docs) != len(embeddings) {
		return nil, fmt.Errorf("qdrant: build %q: %d chunks but %d embeddings", cfg.Collection, len(docs), len(embeddings))
	}

	idx, err := connectQdrant(cfg)
	if err != nil {
		return nil, err
	}

	if err := idx.recreateCollection(ctx); err != nil {
		_ = idx.Close()
		return nil, err
	}
	if err := idx.upsert(ctx, docs, embeddings); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return idx, nil
}

func connectQdrant(cfg *QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: create client: %w", err)
	}
	return &QdrantIndex{client: client, cfg: cfg}, nil
}

// recreateCollection drops the collection if present and creates it fresh
// with cosine distance.
func (s *QdrantIndex) recreateCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: check collection existence: %w", err)
	}
	if exists {
		if err := s.client.DeleteCollection(ctx, s.cfg.Collection); err != nil {
			return fmt.Errorf("qdrant: drop collection %q: %w", s.cfg.Collection, err)
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection %q: %w", s.cfg.Collection, err)
	}
	return nil
}

// upsert stores the chunks with their embeddings. Point IDs are sequential;
// the chunk's own ID travels in the payload so Search can restore it.
func (s *QdrantIndex) upsert(ctx context.Context, docs []rag.Document, embeddings [][]float32) error {
	seen := make(map[string]string, len(docs))
	points := make([]*qdrant.PointStruct, 0, len(docs))
	for i, doc := range docs {
		if prev, ok := seen[doc.ID]; ok {
			if prev == doc.Content {
				continue
			}
			return fmt.Errorf("qdrant: chunk ID collision on %q with differing content", doc.ID)
		}
		seen[doc.ID] = doc.Content

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(i)),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(map[string]interface{}{
				"id":          doc.ID,
				"content":     doc.Content,
				"source":      doc.Source,
				"page":        int64(doc.Page),
				"chunk_index": int64(doc.ChunkIndex),
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// Search performs a cosine similarity search and returns the top-k results.
func (s *QdrantIndex) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]rag.Document, error) {
	if topK < 1 {
		return nil, fmt.Errorf("qdrant: topK %d: %w", topK, rag.ErrInvalidTopK)
	}

	limit := uint64(topK)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	docs := make([]rag.Document, 0, len(results))
	for _, r := range results {
		doc := rag.Document{Score: r.Score}
		if p := r.Payload; p != nil {
			if v, ok := p["id"]; ok {
				doc.ID = v.GetStringValue()
			}
			if v, ok := p["content"]; ok {
				doc.Content = v.GetStringValue()
			}
			if v, ok := p["source"]; ok {
				doc.Source = v.GetStringValue()
			}
			if v, ok := p["page"]; ok {
				doc.Page = int(v.GetIntegerValue())
			}
			if v, ok := p["chunk_index"]; ok {
				doc.ChunkIndex = int(v.GetIntegerValue())
			}
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Count returns the number of points in the collection.
func (s *QdrantIndex) Count(ctx context.Context) (int, error) {
	exact := true
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count: %w", err)
	}
	return int(n), nil
}

// Name returns the dependency label used in readiness responses.
func (s *QdrantIndex) Name() string { return "qdrant" }

// Ping verifies the Qdrant server is reachable.
func (s *QdrantIndex) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: unreachable: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantIndex) Close() error {
	return s.client.Close()
}
