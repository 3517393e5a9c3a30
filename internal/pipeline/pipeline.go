// Package pipeline wires the document loader, chunker, embedder, vector
// index, and answer generator into a single question-answering service.
// Initialization is expensive (it may embed an entire document) and happens
// exactly once per Pipeline, no matter how many goroutines race to ask the
// first question.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/askdoc/askdoc/internal/logging"
	"github.com/askdoc/askdoc/internal/rag"
)

// Backend abstracts the persistent index over its storage engine (local
// SQLite or remote Qdrant). Open reopens an existing index and must return
// rag.ErrIndexNotFound when none exists; Build creates one from scratch.
type Backend interface {
	Open(ctx context.Context) (rag.VectorStore, error)
	Build(ctx context.Context, docs []rag.Document, embeddings [][]float32) (rag.VectorStore, error)
}

// HistorySink receives answered questions for the query log. Implementations
// must tolerate being called concurrently.
type HistorySink interface {
	Append(ctx context.Context, question, answer string, sourceCount int, latency time.Duration) error
}

// ProgressFunc is called during index builds after each embedded batch with
// the number of chunks done and the total. Used to drive a progress bar.
type ProgressFunc func(done, total int)

// Config holds the pipeline's construction parameters. Loader, Chunker,
// Embedder, Backend, and Generator are required; the rest have defaults.
type Config struct {
	DocumentPath string
	Loader       rag.Loader
	Chunker      rag.Chunker
	Embedder     rag.Embedder
	Backend      Backend
	Generator    rag.Generator

	// TopK is the number of chunks retrieved per question (default 3).
	TopK int
	// BatchSize is the number of chunks embedded per backend call (default 32).
	BatchSize int
	// Rebuild forces a fresh index build even when one already exists.
	Rebuild bool
	// History receives answered questions; nil disables the query log.
	History HistorySink
	// Progress is called during builds; nil disables progress reporting.
	Progress ProgressFunc
}

const (
	defaultTopK      = 3
	defaultBatchSize = 32
)

// Pipeline answers questions about a single document. It is safe for
// concurrent use once constructed.
type Pipeline struct {
	cfg Config

	initOnce  sync.Once
	initErr   error
	store     rag.VectorStore
	retriever rag.Retriever
}

// New constructs a Pipeline. Initialization is deferred to the first call of
// Initialize or Answer.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Loader == nil || cfg.Chunker == nil || cfg.Embedder == nil || cfg.Backend == nil || cfg.Generator == nil {
		return nil, fmt.Errorf("pipeline: loader, chunker, embedder, backend, and generator are all required")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &Pipeline{cfg: cfg}, nil
}

// StartupError wraps any failure during one-time initialization. Every
// caller that raced the failed Initialize observes the same error.
type StartupError struct {
	Err error
}

func (e *StartupError) Error() string { return "pipeline startup failed: " + e.Err.Error() }
func (e *StartupError) Unwrap() error { return e.Err }

// QueryError wraps a failure while answering a single question. It does not
// poison the pipeline; subsequent questions proceed normally.
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string { return "query failed: " + e.Err.Error() }
func (e *QueryError) Unwrap() error { return e.Err }

// Initialize opens the index if one exists, or builds it from the document
// otherwise. It runs at most once; concurrent callers block until the first
// attempt completes and then all observe its outcome.
func (p *Pipeline) Initialize(ctx context.Context) error {
	p.initOnce.Do(func() {
		store, err := p.openOrBuild(ctx)
		if err != nil {
			p.initErr = &StartupError{Err: err}
			return
		}
		retriever, err := rag.NewRetriever(p.cfg.Embedder, store, p.cfg.TopK)
		if err != nil {
			p.initErr = &StartupError{Err: err}
			return
		}
		p.store = store
		p.retriever = retriever
	})
	return p.initErr
}

// Ready reports whether the pipeline initialized successfully.
func (p *Pipeline) Ready() bool {
	return p.store != nil && p.initErr == nil
}

// Store exposes the underlying vector store, for readiness probes. Returns
// nil before successful initialization.
func (p *Pipeline) Store() rag.VectorStore {
	return p.store
}

func (p *Pipeline) openOrBuild(ctx context.Context) (rag.VectorStore, error) {
	log := logging.FromContext(ctx)

	if !p.cfg.Rebuild {
		store, err := p.cfg.Backend.Open(ctx)
		if err == nil {
			log.Info("reusing existing index", slog.String("document", p.cfg.DocumentPath))
			return store, nil
		}
		if !errors.Is(err, rag.ErrIndexNotFound) {
			return nil, fmt.Errorf("open index: %w", err)
		}
		log.Info("no index found, building", slog.String("document", p.cfg.DocumentPath))
	} else {
		log.Info("rebuilding index", slog.String("document", p.cfg.DocumentPath))
	}

	return p.build(ctx)
}

func (p *Pipeline) build(ctx context.Context) (rag.VectorStore, error) {
	log := logging.FromContext(ctx)
	start := time.Now()

	sources, err := p.cfg.Loader.Load(p.cfg.DocumentPath)
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", p.cfg.DocumentPath, err)
	}

	chunks, err := p.cfg.Chunker.Split(sources)
	if err != nil {
		return nil, fmt.Errorf("chunk document: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("chunk document %s: %w", p.cfg.DocumentPath, rag.ErrEmptyIndex)
	}

	embeddings, err := p.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	store, err := p.cfg.Backend.Build(ctx, chunks, embeddings)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}

	log.Info("index built",
		slog.Int("chunks", len(chunks)),
		slog.Duration("took", time.Since(start)),
	)
	return store, nil
}

// embedChunks embeds the chunk contents in batches, reporting progress after
// each batch.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []rag.Document) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}

		vecs, err := p.cfg.Embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end-1, err)
		}
		embeddings = append(embeddings, vecs...)

		if p.cfg.Progress != nil {
			p.cfg.Progress(end, len(chunks))
		}
	}
	return embeddings, nil
}

// Answer retrieves context for the question and generates a grounded answer.
// It initializes the pipeline on first use.
func (p *Pipeline) Answer(ctx context.Context, question string) (*rag.Answer, error) {
	if err := p.Initialize(ctx); err != nil {
		return nil, err
	}

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, &QueryError{Err: fmt.Errorf("question is empty")}
	}

	start := time.Now()
	log := logging.FromContext(ctx)

	docs, err := p.retriever.Retrieve(ctx, question, p.cfg.TopK)
	if err != nil {
		return nil, &QueryError{Err: fmt.Errorf("retrieve context: %w", err)}
	}

	ans, err := p.cfg.Generator.Generate(ctx, question, docs)
	if err != nil {
		return nil, &QueryError{Err: fmt.Errorf("generate answer: %w", err)}
	}

	latency := time.Since(start)
	log.Info("question answered",
		slog.Int("sources", len(ans.Sources)),
		slog.Duration("took", latency),
	)

	if p.cfg.History != nil {
		if err := p.cfg.History.Append(ctx, question, ans.Text, len(ans.Sources), latency); err != nil {
			// The query log is best-effort; a failed write never fails the answer.
			log.Warn("history append failed", slog.String("error", err.Error()))
		}
	}

	return ans, nil
}

// Close releases the underlying vector store, if initialized.
func (p *Pipeline) Close() error {
	if p.store == nil {
		return nil
	}
	return p.store.Close()
}
