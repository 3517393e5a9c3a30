package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/askdoc/askdoc/internal/logging"
)

// NewIndexCmd constructs the `askdoc index` command, which builds (or
// rebuilds) the vector index for the configured document without answering
// a question.
func NewIndexCmd() *cobra.Command {
	var rebuild bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the vector index for the configured document",
		Long: `Load, chunk, and embed the document set in DOCUMENT_PATH and persist the
resulting vector index.

By default an existing index is reused untouched. Pass --rebuild to discard
it and index the document from scratch, e.g. after the document changed.

Examples:
  DOCUMENT_PATH=manual.pdf askdoc index
  askdoc index --rebuild`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			pipe, err := buildPipeline(ctx, log, rebuild, newProgressBar(), nil)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			defer func() { _ = pipe.Close() }()

			if err := pipe.Initialize(ctx); err != nil {
				return fmt.Errorf("index: %w", err)
			}

			count, err := pipe.Store().Count(ctx)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			fmt.Printf("index ready (%d chunks)\n", count)
			return nil
		},
	}

	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Discard any existing index and build from scratch")

	return cmd
}
