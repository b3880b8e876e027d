package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/insight-scout/internal/logging"
	"github.com/54b3r/insight-scout/internal/scout"
	"github.com/54b3r/insight-scout/internal/session"
	"github.com/54b3r/insight-scout/internal/tui"
)

// NewAskCmd constructs the `scout ask` command, which processes the given
// URLs into a throwaway session and answers one question from them.
func NewAskCmd() *cobra.Command {
	var urls []string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "ask --url URL [--url URL...] [question]",
		Short: "Process URLs and answer one question from them",
		Long: `Fetch and index up to three URLs, then answer a question from their content.

Nothing is kept once the command exits.

Examples:
  scout ask --url https://example.com/news/rates-rise "why did rates rise?"
  scout ask -u https://a.example/x -u https://b.example/y "compare the two"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			a, err := buildApp(ctx, log, appOptions{})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer a.close()

			st := session.NewState()
			defer func() { _ = st.Close(ctx) }()

			processed := a.assistant.Process(ctx, st, urls)
			if verbose || !processed.OK() {
				fmt.Fprintln(os.Stdout, tui.RenderOutcome(processed, 0))
			}
			if !processed.OK() {
				return outcomeErr("ask", processed)
			}

			answered := a.assistant.Ask(ctx, st, strings.Join(args, " "))
			fmt.Fprintln(os.Stdout, tui.RenderOutcome(answered, 0))
			if !answered.OK() {
				return outcomeErr("ask", answered)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&urls, "url", "u", nil, "Article URL to process (repeatable)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Also print the processing card")

	return cmd
}

// outcomeErr turns a failed outcome into the command's exit error.
func outcomeErr(command string, o scout.Outcome) error {
	return fmt.Errorf("%s: %s", command, o.Kind)
}
