// Package embedder provides implementations of the rag.Embedder interface for
// converting text into dense vector embeddings. Each implementation talks to a
// different backend (Ollama, OpenAI, Azure OpenAI) via plain HTTP, so no
// additional SDK dependencies are required.
//
// Inputs longer than the configured limit are truncated, never rejected:
// a chunk that slightly exceeds the model's context produces a slightly
// lossy embedding, which is preferable to failing the whole index build.
package embedder

// defaultMaxInputRunes caps the length of any single text sent to an
// embedding backend. Embedding models typically accept 2k–8k tokens; at the
// conservative 4 chars/token heuristic, 8192 runes stays well inside every
// supported backend's limit. Override with EMBEDDING_MAX_CHARS.
const defaultMaxInputRunes = 8192

// clampTexts returns texts with every element truncated to at most max runes.
// The input slice is never modified; a new slice is returned only when at
// least one element needed truncation.
func clampTexts(texts []string, max int) []string {
	if max <= 0 {
		max = defaultMaxInputRunes
	}

	clamped := texts
	copied := false
	for i, t := range texts {
		r := []rune(t)
		if len(r) <= max {
			continue
		}
		if !copied {
			clamped = make([]string, len(texts))
			copy(clamped, texts)
			copied = true
		}
		clamped[i] = string(r[:max])
	}
	return clamped
}
