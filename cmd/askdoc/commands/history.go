package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/askdoc/askdoc/internal/history"
)

// NewHistoryCmd constructs the `askdoc history` command, which prints the
// most recently answered questions from the local query log.
func NewHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently answered questions",
		Long: `Print the most recently answered questions, newest first.

The query log is written by 'askdoc serve' (and the /api/ask endpoint) to
~/.askdoc/history.db by default; ASKDOC_HISTORY_DB overrides the path.

Examples:
  askdoc history
  askdoc history --limit 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, err := history.DefaultDBPath()
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}

			store, err := history.Open(dbPath)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			defer func() { _ = store.Close() }()

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}

			if len(entries) == 0 {
				fmt.Println("no questions answered yet")
				return nil
			}

			for _, e := range entries {
				fmt.Printf("%s  (%d sources, %dms)\n  Q: %s\n  A: %s\n\n",
					e.CreatedAt.Format("2006-01-02 15:04:05"),
					e.SourceCount,
					e.Latency.Milliseconds(),
					e.Question,
					e.Answer,
				)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of entries to show")

	return cmd
}
