// Package budget provides token budget estimation and context trimming for
// the answer pipeline. Because the pipeline supports multiple LLM backends
// with different tokenizers, this package uses a conservative character-based
// heuristic: 1 token ≈ 4 characters (English prose). This deliberately
// under-estimates token counts to leave headroom for model-specific overhead.
package budget

import (
	"github.com/cloudwego/eino/schema"

	"github.com/askdoc/askdoc/internal/rag"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English; using 3 would be
	// more aggressive but risks overflowing context windows.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input context budget in tokens.
	// Conservative enough to fit within 8k-context models (Llama 3 8B)
	// while leaving room for the output.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// TrimContext drops retrieved chunks from the end of docs until the estimated
// token count of all remaining chunks plus reservedTokens (question + prompt
// template) fits within maxTokens. Docs arrive ranked best-first, so trimming
// from the end always sacrifices the least relevant context.
//
// The best-ranked chunk is never dropped: an answer grounded in one oversized
// chunk beats an unguided one.
func TrimContext(docs []rag.Document, reservedTokens, maxTokens int) []rag.Document {
	if len(docs) == 0 {
		return docs
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}

	total := reservedTokens
	for _, d := range docs {
		total += Estimate(d.Content)
	}

	for len(docs) > 1 && total > maxTokens {
		total -= Estimate(docs[len(docs)-1].Content)
		docs = docs[:len(docs)-1]
	}
	return docs
}
