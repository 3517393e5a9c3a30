// Package generator produces grounded answers from retrieved context. The
// prompt instructs the model to answer only from the supplied chunks and to
// fall back to a fixed sentence when they do not contain the answer, so the
// caller can distinguish a grounded answer from an abstention.
package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/askdoc/askdoc/internal/budget"
	"github.com/askdoc/askdoc/internal/rag"
)

// Fallback is the exact sentence the model is instructed to produce when the
// retrieved context does not contain the answer. Callers compare against it
// to detect abstentions.
const Fallback = "I don't have that information in my source."

const systemPrompt = `You are a helpful assistant that answers questions about a document.
Answer the question using ONLY the provided context. Do not use any outside knowledge.
If the context does not contain the information needed to answer the question, reply with exactly: ` + Fallback

// GroundedGenerator implements rag.Generator on top of an eino chat model.
type GroundedGenerator struct {
	model       model.BaseChatModel
	temperature float32
	maxTokens   int
}

// Config holds the settings for constructing a GroundedGenerator.
type Config struct {
	// Temperature controls sampling randomness. Grounded Q&A wants it low;
	// the default is 0.1.
	Temperature float32
	// MaxContextTokens caps the estimated size of the assembled prompt.
	// 0 uses budget.DefaultMaxContextTokens.
	MaxContextTokens int
}

// New constructs a GroundedGenerator over the given chat model.
func New(m model.BaseChatModel, cfg Config) *GroundedGenerator {
	temp := cfg.Temperature
	if temp == 0 {
		temp = 0.1
	}
	return &GroundedGenerator{
		model:       m,
		temperature: temp,
		maxTokens:   cfg.MaxContextTokens,
	}
}

// Generate produces an answer to the question grounded in the given chunks.
// The chunks that actually made it into the prompt are returned as the
// answer's sources, best-ranked first.
func (g *GroundedGenerator) Generate(ctx context.Context, question string, docs []rag.Document) (*rag.Answer, error) {
	// Trim lowest-ranked chunks that would blow the context budget. The
	// reserved amount covers the system prompt and the question itself.
	reserved := budget.Estimate(systemPrompt) + budget.Estimate(question) + 64
	kept := budget.TrimContext(docs, reserved, g.maxTokens)

	msgs := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(buildPrompt(question, kept)),
	}

	resp, err := g.model.Generate(ctx, msgs, model.WithTemperature(g.temperature))
	if err != nil {
		return nil, fmt.Errorf("generator: model call failed: %w", err)
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return nil, fmt.Errorf("generator: model returned an empty answer")
	}

	return &rag.Answer{
		Text:    text,
		Sources: kept,
	}, nil
}

// buildPrompt assembles the user message: numbered context chunks followed by
// the question.
func buildPrompt(question string, docs []rag.Document) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	for i, d := range docs {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, d.Content)
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}
