package chunker

import (
	"strings"
	"testing"

	"github.com/askdoc/askdoc/internal/rag"
)

// newTestChunker constructs a Chunker, failing the test on invalid config.
func newTestChunker(t *testing.T, size, overlap int) *Chunker {
	t.Helper()
	c, err := New(size, overlap)
	if err != nil {
		t.Fatalf("New(%d, %d): %v", size, overlap, err)
	}
	return c
}

func Test_Chunker_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	if _, err := New(0, 0); err == nil {
		t.Error("size 0 accepted")
	}
	if _, err := New(-1, 0); err == nil {
		t.Error("negative size accepted")
	}
	if _, err := New(100, -1); err == nil {
		t.Error("negative overlap accepted")
	}
	if _, err := New(100, 100); err == nil {
		t.Error("overlap == size accepted")
	}
}

func Test_Chunker_ShortDocumentSingleChunk(t *testing.T) {
	t.Parallel()
	c := newTestChunker(t, 500, 50)

	docs := []rag.SourceDocument{{Content: "The reactor core melted down in 1986.", Source: "facts.txt"}}
	chunks, err := c.Split(docs)
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	if len(chunks) != 1 {
		t.Fatalf("want 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Content != docs[0].Content {
		t.Errorf("chunk text differs from source: %q", chunks[0].Content)
	}
	if chunks[0].ChunkIndex != 0 {
		t.Errorf("want chunk index 0, got %d", chunks[0].ChunkIndex)
	}
	if chunks[0].Source != "facts.txt" {
		t.Errorf("want source facts.txt, got %q", chunks[0].Source)
	}
}

func Test_Chunker_EmptyDocumentYieldsNoChunks(t *testing.T) {
	t.Parallel()
	c := newTestChunker(t, 500, 50)

	chunks, err := c.Split([]rag.SourceDocument{{Content: "", Source: "empty.txt"}})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("want 0 chunks for empty document, got %d", len(chunks))
	}
}

// Every rune of the source must appear in at least one chunk: overlap only
// grows total chunk length, it never loses characters.
func Test_Chunker_NoCharacterLost(t *testing.T) {
	t.Parallel()
	c := newTestChunker(t, 40, 10)

	text := strings.Repeat("Chernobyl unit four exploded during a late night safety test. ", 20)
	chunks, err := c.Split([]rag.SourceDocument{{Content: text, Source: "a.txt"}})
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	total := 0
	for _, ch := range chunks {
		total += len([]rune(ch.Content))
	}
	if total < len([]rune(text)) {
		t.Errorf("total chunk length %d < source length %d", total, len([]rune(text)))
	}

	// Each window is a contiguous slice of the source, and consecutive
	// windows connect: no window starts after the previous one ended.
	prevEnd := 0
	searchFrom := 0
	for _, ch := range chunks {
		start := strings.Index(text[searchFrom:], ch.Content)
		if start < 0 {
			t.Fatalf("chunk %d is not a substring of the source", ch.ChunkIndex)
		}
		start += searchFrom
		if start > prevEnd {
			t.Fatalf("gap before chunk %d: starts at %d, previous ended at %d", ch.ChunkIndex, start, prevEnd)
		}
		prevEnd = start + len(ch.Content)
		searchFrom = start
	}
	if prevEnd < len(text) {
		t.Errorf("last chunk ends at %d, source has %d bytes", prevEnd, len(text))
	}
}

func Test_Chunker_Deterministic(t *testing.T) {
	t.Parallel()
	c := newTestChunker(t, 64, 16)

	text := strings.Repeat("Radiation levels peaked within hours of the breach.\n\n", 30)
	docs := []rag.SourceDocument{{Content: text, Source: "b.txt", Page: 2}}

	first, err := c.Split(docs)
	if err != nil {
		t.Fatalf("first split: %v", err)
	}
	second, err := c.Split(docs)
	if err != nil {
		t.Fatalf("second split: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("chunk counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func Test_Chunker_PageAndIndexPropagation(t *testing.T) {
	t.Parallel()
	c := newTestChunker(t, 20, 5)

	docs := []rag.SourceDocument{
		{Content: strings.Repeat("x", 50), Source: "doc.pdf", Page: 1},
		{Content: strings.Repeat("y", 50), Source: "doc.pdf", Page: 2},
	}
	chunks, err := c.Split(docs)
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	seen := map[string]bool{}
	lastPageOneIdx := -1
	for _, ch := range chunks {
		if seen[ch.ID] {
			t.Errorf("duplicate chunk id %s", ch.ID)
		}
		seen[ch.ID] = true
		if ch.Page == 1 {
			if ch.ChunkIndex != lastPageOneIdx+1 {
				t.Errorf("page 1 chunk index not monotonic: got %d after %d", ch.ChunkIndex, lastPageOneIdx)
			}
			lastPageOneIdx = ch.ChunkIndex
		}
	}
	// Chunk indices restart per source document.
	if chunks[0].ChunkIndex != 0 {
		t.Errorf("first chunk of page 1 should have index 0, got %d", chunks[0].ChunkIndex)
	}
}

// overlap == size-1 is the worst case for window advancement: the chunker
// must still terminate and never emit a zero-length chunk.
func Test_Chunker_MaximalOverlapTerminates(t *testing.T) {
	t.Parallel()

	const size = 8
	c := newTestChunker(t, size, size-1)

	text := strings.Repeat("a", 3*size)
	chunks, err := c.Split([]rag.SourceDocument{{Content: text, Source: "c.txt"}})
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	// One window per start offset 0..2*size, each of full length.
	want := 2*size + 1
	if len(chunks) != want {
		t.Errorf("want %d windows, got %d", want, len(chunks))
	}
	for _, ch := range chunks {
		if len(ch.Content) == 0 {
			t.Fatal("zero-length chunk emitted")
		}
	}
}

func Test_Chunker_CutsOnSentenceBoundary(t *testing.T) {
	t.Parallel()
	c := newTestChunker(t, 50, 10)

	text := "The accident at the fourth reactor unit began. The second sentence is a little longer and continues past the window."
	chunks, err := c.Split([]rag.SourceDocument{{Content: text, Source: "d.txt"}})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("want multiple chunks, got %d", len(chunks))
	}
	if !strings.HasSuffix(strings.TrimRight(chunks[0].Content, " "), ".") {
		t.Errorf("first chunk did not cut on sentence boundary: %q", chunks[0].Content)
	}
}
