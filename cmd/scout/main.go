// Command scout is the entry point for Insight Scout, a question-answering
// assistant over a handful of news article URLs. It provides a CLI (via
// Cobra), a terminal UI and an HTTP server with a web UI.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/insight-scout/cmd/scout/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
