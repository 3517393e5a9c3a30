package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/askdoc/askdoc/internal/history"
	"github.com/askdoc/askdoc/internal/logging"
	"github.com/askdoc/askdoc/internal/server"
	"github.com/askdoc/askdoc/internal/tracing"
)

// NewServeCmd constructs the `askdoc serve` command, which starts the HTTP
// server exposing the question-answering pipeline as a REST API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the askdoc HTTP server",
		Long: `Start the askdoc HTTP server on localhost.

The server answers questions about the document set in DOCUMENT_PATH via
POST /api/ask and exposes the query log, health, readiness, and Prometheus
metrics endpoints. The index is built at startup if it does not exist yet.

Examples:
  DOCUMENT_PATH=manual.pdf askdoc serve
  askdoc serve --port 9090
  MODEL_PROVIDER=openai askdoc serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing: opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			// Open the query log. ASKDOC_HISTORY_DB overrides the default
			// path (~/.askdoc/history.db). Set to "disabled" to turn it off.
			var historyStore history.Store
			dbPath := os.Getenv("ASKDOC_HISTORY_DB")
			if dbPath != "disabled" {
				var err error
				if dbPath == "" {
					dbPath, err = history.DefaultDBPath()
					if err != nil {
						log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					hs, hsErr := history.Open(dbPath)
					if hsErr != nil {
						log.Warn("history: failed to open store, disabling", slog.Any("error", hsErr))
					} else {
						historyStore = hs
						defer func() { _ = hs.Close() }()
						log.Info("history: store opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("history: disabled via ASKDOC_HISTORY_DB=disabled")
			}

			pipe, err := buildPipeline(ctx, log, false, newProgressBar(), historyStore)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = pipe.Close() }()

			// A server that cannot answer anything is useless; fail fast
			// rather than returning 503 to every request.
			if err := pipe.Initialize(ctx); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			log.Info("pipeline ready")

			pingers := buildPingers(pipe)

			srv, err := server.New(pipe, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("ASKDOC_API_KEY"),
				History: historyStore,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
