package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func Test_ClampTexts_ShortInputsUntouched(t *testing.T) {
	t.Parallel()

	in := []string{"hello", "world"}
	out := clampTexts(in, 10)

	if &out[0] != &in[0] {
		t.Error("expected input slice to be returned unmodified when nothing is truncated")
	}
}

func Test_ClampTexts_TruncatesLongInput(t *testing.T) {
	t.Parallel()

	in := []string{"short", strings.Repeat("x", 20)}
	out := clampTexts(in, 10)

	if out[0] != "short" {
		t.Errorf("short text changed: %q", out[0])
	}
	if len(out[1]) != 10 {
		t.Errorf("expected 10 runes after truncation, got %d", len(out[1]))
	}
	if in[1] != strings.Repeat("x", 20) {
		t.Error("input slice was mutated")
	}
}

func Test_ClampTexts_CountsRunesNotBytes(t *testing.T) {
	t.Parallel()

	// 5 multi-byte runes; must survive a limit of 5 intact.
	in := []string{"日本語です"}
	out := clampTexts(in, 5)

	if out[0] != "日本語です" {
		t.Errorf("multi-byte text corrupted: %q", out[0])
	}

	out = clampTexts(in, 3)
	if out[0] != "日本語" {
		t.Errorf("expected 3-rune prefix, got %q", out[0])
	}
}

func Test_OllamaEmbedder_Embed(t *testing.T) {
	t.Parallel()

	var gotReq ollamaEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		resp := ollamaEmbedResponse{
			Embeddings: [][]float32{{0.1, 0.2}, {0.3, 0.4}},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"})
	got, err := e.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if gotReq.Model != "nomic-embed-text" {
		t.Errorf("model = %q, want nomic-embed-text", gotReq.Model)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(got))
	}
	if got[0][0] != 0.1 || got[1][1] != 0.4 {
		t.Errorf("unexpected embedding values: %v", got)
	}
}

func Test_OllamaEmbedder_TruncatesBeforeSending(t *testing.T) {
	t.Parallel()

	var gotReq ollamaEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{1}}})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "m", MaxInputRunes: 16})
	if _, err := e.Embed(context.Background(), []string{strings.Repeat("a", 100)}); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(gotReq.Input[0]) != 16 {
		t.Errorf("server received %d runes, want 16", len(gotReq.Input[0]))
	}
}

func Test_OllamaEmbedder_CountMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{1}}})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "m"})
	if _, err := e.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Error("expected error on embedding count mismatch")
	}
}

func Test_OllamaEmbedder_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Error: "model not found"})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "m"})
	_, err := e.Embed(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "model not found") {
		t.Errorf("error should carry the server message, got: %v", err)
	}
}

func Test_OllamaEmbedder_Ping(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "m"})
	if err := e.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
	if e.Name() != "ollama" {
		t.Errorf("Name() = %q, want ollama", e.Name())
	}
}

func Test_OpenAIEmbedder_Embed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		// Return data out of order to exercise index-based reassembly.
		w.Write([]byte(`{"data":[{"embedding":[0.3,0.4],"index":1},{"embedding":[0.1,0.2],"index":0}]}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "text-embedding-3-small",
	})
	got, err := e.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if got[0][0] != 0.1 || got[1][0] != 0.3 {
		t.Errorf("embeddings not reordered by index: %v", got)
	}
}

func Test_OpenAIEmbedder_AzureMode(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("api-key"); got != "azure-key" {
			t.Errorf("api-key header = %q", got)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("Azure mode must not send a Bearer token")
		}
		if !strings.Contains(r.URL.Path, "/deployments/my-deploy/embeddings") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("api-version"); got != "2025-04-01-preview" {
			t.Errorf("api-version = %q", got)
		}
		w.Write([]byte(`{"data":[{"embedding":[1],"index":0}]}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{
		BaseURL:    srv.URL,
		APIKey:     "azure-key",
		Model:      "my-deploy",
		Azure:      true,
		APIVersion: "2025-04-01-preview",
	})
	if _, err := e.Embed(context.Background(), []string{"q"}); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
}

func Test_NewFromEnv_DefaultsToOllama(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "")
	t.Setenv("MODEL_PROVIDER", "")

	e, err := NewFromEnv()
	if err != nil {
		t.Fatalf("NewFromEnv failed: %v", err)
	}
	if _, ok := e.(*OllamaEmbedder); !ok {
		t.Errorf("expected *OllamaEmbedder, got %T", e)
	}
}

func Test_NewFromEnv_InheritsModelProvider(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "")
	t.Setenv("MODEL_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	e, err := NewFromEnv()
	if err != nil {
		t.Fatalf("NewFromEnv failed: %v", err)
	}
	if _, ok := e.(*OpenAIEmbedder); !ok {
		t.Errorf("expected *OpenAIEmbedder, got %T", e)
	}
}

func Test_NewFromEnv_OpenAIRequiresKey(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("EMBEDDING_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := NewFromEnv(); err == nil {
		t.Error("expected error when no API key is configured")
	}
}

func Test_DefaultDimensions(t *testing.T) {
	t.Setenv("EMBEDDING_DIMENSIONS", "")

	if got := DefaultDimensions("ollama"); got != 768 {
		t.Errorf("ollama dimensions = %d, want 768", got)
	}
	if got := DefaultDimensions("openai"); got != 1536 {
		t.Errorf("openai dimensions = %d, want 1536", got)
	}

	t.Setenv("EMBEDDING_DIMENSIONS", "512")
	if got := DefaultDimensions("ollama"); got != 512 {
		t.Errorf("override dimensions = %d, want 512", got)
	}
}

func Test_LooksLikeChatModel(t *testing.T) {
	t.Parallel()

	chat := []string{"gpt-4o", "llama3", "Mistral-7B", "claude-sonnet"}
	for _, m := range chat {
		if !looksLikeChatModel(m) {
			t.Errorf("%q should be flagged as a chat model", m)
		}
	}
	embed := []string{"nomic-embed-text", "text-embedding-3-small", "bge-m3"}
	for _, m := range embed {
		if looksLikeChatModel(m) {
			t.Errorf("%q should not be flagged", m)
		}
	}
}
