// Command askdoc answers natural language questions about a single document.
// It provides a CLI interface (via Cobra) and an optional HTTP server that
// exposes the same question-answering pipeline as a small REST API.
package main

import (
	"fmt"
	"os"

	"github.com/askdoc/askdoc/cmd/askdoc/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
