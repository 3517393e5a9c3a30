// Package commands defines all Cobra CLI commands for the askdoc binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/askdoc/askdoc/internal/audit"
	"github.com/askdoc/askdoc/internal/config"
	"github.com/askdoc/askdoc/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "askdoc",
		Short: "askdoc answers questions about a single document using local or hosted LLMs",
		Long: `askdoc is a local-first question-answering tool for a single document.

Point it at a text or PDF file and ask questions in natural language. The
document is chunked, embedded, and indexed on first use; answers are grounded
in the most relevant passages and cite their sources.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.askdoc/config.yaml).
See 'askdoc --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// .env values behave like exported environment variables but
			// never override ones already set in the shell.
			_ = godotenv.Load()

			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.askdoc/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewIndexCmd(),
		NewServeCmd(),
		NewHistoryCmd(),
		NewVersionCmd(),
	)

	return root
}
