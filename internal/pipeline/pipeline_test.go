package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/askdoc/askdoc/internal/rag"
)

// stubLoader returns a fixed document.
type stubLoader struct {
	docs []rag.SourceDocument
	err  error
}

func (s *stubLoader) Load(path string) ([]rag.SourceDocument, error) {
	return s.docs, s.err
}

// stubChunker maps each source document to one chunk.
type stubChunker struct{}

func (stubChunker) Split(docs []rag.SourceDocument) ([]rag.Document, error) {
	out := make([]rag.Document, len(docs))
	for i, d := range docs {
		out[i] = rag.Document{ID: fmt.Sprintf("c%d", i), Content: d.Content, Source: d.Source}
	}
	return out, nil
}

// stubEmbedder counts calls and returns unit vectors.
type stubEmbedder struct {
	calls atomic.Int32
	err   error
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

// memoryStore is an in-memory rag.VectorStore.
type memoryStore struct {
	docs   []rag.Document
	closed bool
}

func (m *memoryStore) Search(ctx context.Context, q []float32, topK int) ([]rag.Document, error) {
	if topK < 1 {
		return nil, rag.ErrInvalidTopK
	}
	if topK > len(m.docs) {
		topK = len(m.docs)
	}
	return m.docs[:topK], nil
}

func (m *memoryStore) Count(ctx context.Context) (int, error) { return len(m.docs), nil }
func (m *memoryStore) Close() error                           { m.closed = true; return nil }

// countingBackend records Open and Build calls.
type countingBackend struct {
	openCalls  atomic.Int32
	buildCalls atomic.Int32
	openErr    error
	buildErr   error
	store      *memoryStore
}

func (b *countingBackend) Open(ctx context.Context) (rag.VectorStore, error) {
	b.openCalls.Add(1)
	if b.openErr != nil {
		return nil, b.openErr
	}
	return b.store, nil
}

func (b *countingBackend) Build(ctx context.Context, docs []rag.Document, embeddings [][]float32) (rag.VectorStore, error) {
	b.buildCalls.Add(1)
	if b.buildErr != nil {
		return nil, b.buildErr
	}
	b.store = &memoryStore{docs: docs}
	return b.store, nil
}

// stubGenerator echoes the question with the retrieved docs as sources.
type stubGenerator struct {
	reply string
	err   error
}

func (s *stubGenerator) Generate(ctx context.Context, question string, docs []rag.Document) (*rag.Answer, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &rag.Answer{Text: s.reply, Sources: docs}, nil
}

// recordingHistory captures Append calls.
type recordingHistory struct {
	mu      sync.Mutex
	entries []string
	err     error
}

func (r *recordingHistory) Append(ctx context.Context, question, answer string, sourceCount int, latency time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, question)
	return nil
}

// newTestPipeline wires stubs with an existing-index backend by default.
func newTestPipeline(t *testing.T, mutate func(*Config)) (*Pipeline, *countingBackend, *stubEmbedder) {
	t.Helper()

	backend := &countingBackend{
		openErr: rag.ErrIndexNotFound,
	}
	emb := &stubEmbedder{}
	cfg := Config{
		DocumentPath: "doc.txt",
		Loader: &stubLoader{docs: []rag.SourceDocument{
			{Content: "alpha", Source: "doc.txt"},
			{Content: "beta", Source: "doc.txt"},
		}},
		Chunker:   stubChunker{},
		Embedder:  emb,
		Backend:   backend,
		Generator: &stubGenerator{reply: "the answer"},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p, backend, emb
}

func Test_New_RequiresAllComponents(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}); err == nil {
		t.Error("expected error when components are missing")
	}
}

func Test_Initialize_BuildsWhenIndexMissing(t *testing.T) {
	t.Parallel()

	p, backend, _ := newTestPipeline(t, nil)
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if got := backend.buildCalls.Load(); got != 1 {
		t.Errorf("build calls = %d, want 1", got)
	}
	if !p.Ready() {
		t.Error("pipeline should be ready after successful init")
	}
}

func Test_Initialize_ReusesExistingIndex(t *testing.T) {
	t.Parallel()

	p, backend, emb := newTestPipeline(t, func(cfg *Config) {
		b := cfg.Backend.(*countingBackend)
		b.openErr = nil
		b.store = &memoryStore{docs: []rag.Document{{ID: "c0", Content: "alpha"}}}
	})
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if got := backend.buildCalls.Load(); got != 0 {
		t.Errorf("build calls = %d, want 0 when index exists", got)
	}
	if got := emb.calls.Load(); got != 0 {
		t.Errorf("embedder called %d times during reopen, want 0", got)
	}
}

func Test_Initialize_RebuildFlagSkipsOpen(t *testing.T) {
	t.Parallel()

	p, backend, _ := newTestPipeline(t, func(cfg *Config) {
		cfg.Rebuild = true
		b := cfg.Backend.(*countingBackend)
		b.openErr = nil
	})
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if got := backend.openCalls.Load(); got != 0 {
		t.Errorf("open calls = %d, want 0 with Rebuild set", got)
	}
	if got := backend.buildCalls.Load(); got != 1 {
		t.Errorf("build calls = %d, want 1", got)
	}
}

func Test_Initialize_RunsExactlyOnceUnderConcurrency(t *testing.T) {
	t.Parallel()

	p, backend, _ := newTestPipeline(t, nil)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Initialize(context.Background())
		}()
	}
	wg.Wait()

	if got := backend.buildCalls.Load(); got != 1 {
		t.Errorf("build calls = %d, want exactly 1", got)
	}
}

func Test_Initialize_FailureObservedByAllCallers(t *testing.T) {
	t.Parallel()

	p, backend, _ := newTestPipeline(t, func(cfg *Config) {
		cfg.Backend.(*countingBackend).buildErr = errors.New("disk full")
	})

	errs := make([]error, 8)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = p.Initialize(context.Background())
		}()
	}
	wg.Wait()

	for i, err := range errs {
		var se *StartupError
		if !errors.As(err, &se) {
			t.Errorf("caller %d: expected StartupError, got %v", i, err)
		}
	}
	if got := backend.buildCalls.Load(); got != 1 {
		t.Errorf("build calls = %d, want 1 (no retry)", got)
	}
	if p.Ready() {
		t.Error("pipeline must not report ready after failed init")
	}
}

func Test_Answer_ReturnsGroundedAnswerWithSources(t *testing.T) {
	t.Parallel()

	p, _, _ := newTestPipeline(t, nil)

	ans, err := p.Answer(context.Background(), "what is alpha?")
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if ans.Text != "the answer" {
		t.Errorf("answer = %q", ans.Text)
	}
	if len(ans.Sources) == 0 {
		t.Error("expected sources with the answer")
	}
}

func Test_Answer_EmptyQuestionRejected(t *testing.T) {
	t.Parallel()

	p, _, _ := newTestPipeline(t, nil)

	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := p.Answer(context.Background(), q)
		var qe *QueryError
		if !errors.As(err, &qe) {
			t.Errorf("question %q: expected QueryError, got %v", q, err)
		}
	}
}

func Test_Answer_QueryErrorDoesNotPoisonPipeline(t *testing.T) {
	t.Parallel()

	gen := &stubGenerator{reply: "ok"}
	p, _, _ := newTestPipeline(t, func(cfg *Config) {
		cfg.Generator = gen
	})
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	gen.err = errors.New("model unavailable")
	if _, err := p.Answer(context.Background(), "q?"); err == nil {
		t.Fatal("expected query error")
	}
	if !p.Ready() {
		t.Error("query failure must not unready the pipeline")
	}

	gen.err = nil
	if _, err := p.Answer(context.Background(), "q?"); err != nil {
		t.Errorf("pipeline did not recover after query error: %v", err)
	}
}

func Test_Answer_AppendsHistory(t *testing.T) {
	t.Parallel()

	hist := &recordingHistory{}
	p, _, _ := newTestPipeline(t, func(cfg *Config) {
		cfg.History = hist
	})

	if _, err := p.Answer(context.Background(), "first question"); err != nil {
		t.Fatalf("Answer failed: %v", err)
	}

	hist.mu.Lock()
	defer hist.mu.Unlock()
	if len(hist.entries) != 1 || hist.entries[0] != "first question" {
		t.Errorf("history entries = %v", hist.entries)
	}
}

func Test_Answer_HistoryFailureIsBestEffort(t *testing.T) {
	t.Parallel()

	hist := &recordingHistory{err: errors.New("db locked")}
	p, _, _ := newTestPipeline(t, func(cfg *Config) {
		cfg.History = hist
	})

	if _, err := p.Answer(context.Background(), "q?"); err != nil {
		t.Errorf("history failure must not fail the answer: %v", err)
	}
}

func Test_Build_EmbedsInBatches(t *testing.T) {
	t.Parallel()

	docs := make([]rag.SourceDocument, 5)
	for i := range docs {
		docs[i] = rag.SourceDocument{Content: fmt.Sprintf("chunk %d", i), Source: "doc.txt"}
	}

	var progress []int
	p, _, emb := newTestPipeline(t, func(cfg *Config) {
		cfg.Loader = &stubLoader{docs: docs}
		cfg.BatchSize = 2
		cfg.Progress = func(done, total int) {
			progress = append(progress, done)
			if total != 5 {
				t.Errorf("progress total = %d, want 5", total)
			}
		}
	})

	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if got := emb.calls.Load(); got != 3 {
		t.Errorf("embed calls = %d, want 3 (batches of 2,2,1)", got)
	}
	want := []int{2, 4, 5}
	if len(progress) != len(want) {
		t.Fatalf("progress = %v, want %v", progress, want)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Errorf("progress[%d] = %d, want %d", i, progress[i], want[i])
		}
	}
}

func Test_Build_EmptyDocumentFails(t *testing.T) {
	t.Parallel()

	p, _, _ := newTestPipeline(t, func(cfg *Config) {
		cfg.Loader = &stubLoader{docs: nil}
	})

	err := p.Initialize(context.Background())
	if !errors.Is(err, rag.ErrEmptyIndex) {
		t.Errorf("expected ErrEmptyIndex, got %v", err)
	}
}
