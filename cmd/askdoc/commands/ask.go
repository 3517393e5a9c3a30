package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/askdoc/askdoc/internal/logging"
)

// NewAskCmd constructs the `askdoc ask` command, which answers a single
// natural language question about the configured document and prints the
// answer with its sources to stdout.
func NewAskCmd() *cobra.Command {
	var showSources bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the configured document",
		Long: `Ask a natural language question about the document set in DOCUMENT_PATH.

If the document has not been indexed yet, the index is built first (this can
take a while for large documents). Subsequent questions reuse the index.

Examples:
  DOCUMENT_PATH=manual.pdf askdoc ask "how long is the warranty?"
  askdoc ask --sources "what does the error code E42 mean?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			pipe, err := buildPipeline(ctx, log, false, newProgressBar(), nil)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer func() { _ = pipe.Close() }()

			question := strings.Join(args, " ")

			ans, err := pipe.Answer(ctx, question)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Println(ans.Text)

			if showSources && len(ans.Sources) > 0 {
				fmt.Println("\nSources:")
				for i, src := range ans.Sources {
					loc := src.Source
					if src.Page > 0 {
						loc = fmt.Sprintf("%s (page %d)", src.Source, src.Page)
					}
					fmt.Printf("  [%d] %s  score=%.3f\n", i+1, loc, src.Score)
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVarP(&showSources, "sources", "s", false, "Print the retrieved source passages after the answer")

	return cmd
}
