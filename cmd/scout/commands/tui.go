package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/54b3r/insight-scout/internal/logging"
	"github.com/54b3r/insight-scout/internal/tui"
)

// NewTUICmd constructs the `scout tui` command, which runs the terminal UI
// over a single session.
func NewTUICmd() *cobra.Command {
	var logFile string

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Run the Insight Scout terminal UI",
		Long: `Run the terminal UI: enter up to three URLs, press ctrl+p to process
them, then type a question and press enter.

Logs would corrupt the screen, so they are discarded unless --log-file is
given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var w io.Writer = io.Discard
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
				if err != nil {
					return fmt.Errorf("tui: open log file: %w", err)
				}
				defer f.Close()
				w = f
			}
			log := logging.NewWithWriter(w)
			ctx := logging.WithLogger(cmd.Context(), log)

			a, err := buildApp(ctx, log, appOptions{})
			if err != nil {
				return fmt.Errorf("tui: %w", err)
			}
			defer a.close()

			return tui.Run(ctx, a.assistant)
		},
	}

	cmd.Flags().StringVar(&logFile, "log-file", "", "Append logs to this file")

	return cmd
}
