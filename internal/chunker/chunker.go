// Package chunker splits loader output into overlapping fixed-size text
// chunks, the unit of embedding and retrieval. Windows are cut on natural
// boundaries (paragraph, then sentence, then word) when one falls within a
// short lookback of the window end, and hard-cut otherwise, so chunks stay
// close to the configured size without splitting mid-word when avoidable.
//
// Splitting is deterministic: the same input and configuration always yield
// the same chunk sequence. Sizes are measured in runes.
package chunker

import (
	"crypto/sha256"
	"fmt"

	"github.com/askdoc/askdoc/internal/rag"
)

// Chunker cuts SourceDocuments into overlapping windows.
type Chunker struct {
	// size is the target window length in runes.
	size int

	// overlap is the number of runes shared between consecutive windows.
	overlap int

	// lookback is how far back from the window end a natural boundary is
	// searched before falling back to a hard cut.
	lookback int
}

// New constructs a Chunker. size must be positive and overlap must satisfy
// 0 <= overlap < size.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunker: size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunker: overlap must be in [0, size), got %d", overlap)
	}

	lookback := size / 5
	if lookback > 100 {
		lookback = 100
	}

	return &Chunker{size: size, overlap: overlap, lookback: lookback}, nil
}

// Split produces the chunk sequence for docs. Each chunk inherits its
// source path and page number and carries a per-document chunk index.
// A document shorter than the window size yields exactly one chunk; a
// document with empty text yields none.
func (c *Chunker) Split(docs []rag.SourceDocument) ([]rag.Document, error) {
	var chunks []rag.Document

	for _, doc := range docs {
		for i, text := range c.splitText(doc.Content) {
			chunks = append(chunks, rag.Document{
				ID:         chunkID(doc.Source, doc.Page, i),
				Content:    text,
				Source:     doc.Source,
				Page:       doc.Page,
				ChunkIndex: i,
			})
		}
	}

	return chunks, nil
}

// splitText walks text producing successive windows of up to size runes,
// advancing the window start by the cut position minus the overlap. Every
// rune of the input appears in at least one window.
func (c *Chunker) splitText(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var out []string
	start := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			// Final partial window, emitted as-is.
			out = append(out, string(runes[start:]))
			break
		}

		cut := c.boundary(runes, start, end)
		out = append(out, string(runes[start:cut]))

		next := cut - c.overlap
		if next <= start {
			// Forward-progress guard for extreme overlap settings.
			next = start + 1
		}
		start = next
	}

	return out
}

// boundary returns the cut position for a window ending at end: the position
// just after the best natural boundary found within the lookback range, or
// end itself when no boundary exists there. Paragraph breaks are preferred
// over sentence ends, sentence ends over plain whitespace.
func (c *Chunker) boundary(runes []rune, start, end int) int {
	low := end - c.lookback
	if low <= start {
		return end
	}

	wordCut := 0
	sentenceCut := 0
	for i := end - 1; i >= low; i-- {
		r := runes[i]
		if r == '\n' && i > 0 && runes[i-1] == '\n' {
			return i + 1 // paragraph break
		}
		if sentenceCut == 0 && isSentenceEnd(runes, i) {
			sentenceCut = i + 1
		}
		if wordCut == 0 && (r == ' ' || r == '\n' || r == '\t') {
			wordCut = i + 1
		}
	}
	if sentenceCut > 0 {
		return sentenceCut
	}
	if wordCut > 0 {
		return wordCut
	}
	return end
}

// isSentenceEnd reports whether the rune at i terminates a sentence:
// '.', '!' or '?' followed by whitespace.
func isSentenceEnd(runes []rune, i int) bool {
	switch runes[i] {
	case '.', '!', '?':
	default:
		return false
	}
	if i+1 >= len(runes) {
		return true
	}
	next := runes[i+1]
	return next == ' ' || next == '\n' || next == '\t'
}

// chunkID generates a deterministic ID for a chunk based on its source path,
// page number, and chunk index.
func chunkID(source string, page, index int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s#%d#%d", source, page, index)))
	return fmt.Sprintf("%x", h[:16])
}
