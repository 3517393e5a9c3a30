package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/askdoc/askdoc/internal/chunker"
	"github.com/askdoc/askdoc/internal/embedder"
	"github.com/askdoc/askdoc/internal/generator"
	"github.com/askdoc/askdoc/internal/index"
	"github.com/askdoc/askdoc/internal/loader"
	"github.com/askdoc/askdoc/internal/pipeline"
	"github.com/askdoc/askdoc/internal/provider"
	"github.com/askdoc/askdoc/internal/server"
)

// getEnvOrDefault returns the value of the environment variable key, or
// fallback when unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the environment variable key, or
// fallback when unset or not a valid integer.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// embeddingBackend resolves the embedding backend the same way the embedder
// factory does: EMBEDDING_PROVIDER wins, then MODEL_PROVIDER, then ollama.
func embeddingBackend() string {
	return getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
}

// embeddingModelName resolves the embedding model recorded in index metadata.
func embeddingModelName() string {
	if m := os.Getenv("EMBEDDING_MODEL"); m != "" {
		return m
	}
	if embeddingBackend() == "ollama" {
		return "nomic-embed-text"
	}
	return "text-embedding-3-small"
}

// buildBackend constructs the vector index backend selected by INDEX_BACKEND.
// "sqlite" (the default) stores vectors in a local file next to the document;
// "qdrant" uses a running Qdrant instance.
func buildBackend(docPath string) (pipeline.Backend, error) {
	switch backend := getEnvOrDefault("INDEX_BACKEND", "sqlite"); backend {
	case "sqlite":
		return &index.SQLiteBackend{
			Path: getEnvOrDefault("INDEX_PATH", "askdoc-index.db"),
			Meta: index.Meta{
				Model:        embeddingModelName(),
				DocumentPath: docPath,
			},
		}, nil
	case "qdrant":
		return &index.QdrantBackend{
			Config: &index.QdrantConfig{
				Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
				Port:       getEnvInt("QDRANT_PORT", 6334),
				Collection: getEnvOrDefault("QDRANT_COLLECTION", "askdoc"),
				VectorSize: uint64(embedder.DefaultDimensions(embeddingBackend())), //nolint:gosec // dimensions are bounded
				APIKey:     os.Getenv("QDRANT_API_KEY"),
				UseTLS:     os.Getenv("QDRANT_TLS") == "true",
			},
		}, nil
	default:
		return nil, fmt.Errorf("unknown INDEX_BACKEND %q (expected sqlite or qdrant)", backend)
	}
}

// buildPipeline wires the full question-answering pipeline from environment
// configuration: loader, chunker, embedder, index backend, and generator.
// History and progress are optional and may be nil.
func buildPipeline(ctx context.Context, log *slog.Logger, rebuild bool, progress pipeline.ProgressFunc, hist pipeline.HistorySink) (*pipeline.Pipeline, error) {
	docPath := os.Getenv("DOCUMENT_PATH")
	if docPath == "" {
		return nil, fmt.Errorf("DOCUMENT_PATH is not set (point it at the .txt or .pdf file to answer questions about)")
	}

	ld, err := loader.ForPath(docPath)
	if err != nil {
		return nil, err
	}

	ck, err := chunker.New(getEnvInt("CHUNK_SIZE", 500), getEnvInt("CHUNK_OVERLAP", 50))
	if err != nil {
		return nil, err
	}

	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	log.Info("embedder initialised", slog.String("provider", embeddingBackend()))

	backend, err := buildBackend(docPath)
	if err != nil {
		return nil, err
	}

	providerCfg := provider.ConfigFromEnv()
	chatModel, err := provider.New(ctx, providerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised", slog.String("provider", string(providerCfg.Backend)))

	gen := generator.New(chatModel, generator.Config{
		Temperature:      providerCfg.Temperature,
		MaxContextTokens: getEnvInt("MAX_CONTEXT_TOKENS", 0),
	})

	return pipeline.New(pipeline.Config{
		DocumentPath: docPath,
		Loader:       ld,
		Chunker:      ck,
		Embedder:     emb,
		Backend:      backend,
		Generator:    gen,
		TopK:         getEnvInt("TOP_K", 0),
		BatchSize:    getEnvInt("EMBED_BATCH_SIZE", 0),
		Rebuild:      rebuild,
		History:      hist,
		Progress:     progress,
	})
}

// buildPingers assembles the dependency probes for GET /api/ready. The
// Ollama embedder and the Qdrant store expose their own probes; the local
// SQLite index is covered by a row-count probe.
func buildPingers(pipe *pipeline.Pipeline) []server.Pinger {
	var pingers []server.Pinger

	if emb, err := embedder.NewFromEnv(); err == nil {
		if p, ok := emb.(server.Pinger); ok {
			pingers = append(pingers, p)
		}
	}

	store := pipe.Store()
	if p, ok := store.(server.Pinger); ok {
		pingers = append(pingers, p)
	} else if store != nil {
		pingers = append(pingers, server.NewIndexPinger(store))
	}

	return pingers
}

// newProgressBar returns a ProgressFunc that renders an embedding progress
// bar on stderr. Returns nil (progress disabled) when stderr is not a
// terminal, e.g. when output is piped or running under cron.
func newProgressBar() pipeline.ProgressFunc {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}

	var bar *progressbar.ProgressBar
	var last int
	return func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionSetDescription("embedding"),
				progressbar.OptionSetWidth(32),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "=",
					SaucerHead:    ">",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
			)
		}
		_ = bar.Add(done - last)
		last = done
		if done >= total {
			_ = bar.Finish()
		}
	}
}
