package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/54b3r/insight-scout/internal/chunker"
	"github.com/54b3r/insight-scout/internal/scout"
)

// NewChunksCmd constructs the `scout chunks` command, which loads and splits
// URLs and prints where each chunk sits in its document. Nothing is
// embedded, so no model backend is needed.
func NewChunksCmd() *cobra.Command {
	var urls []string
	var showText bool

	cmd := &cobra.Command{
		Use:   "chunks --url URL [--url URL...]",
		Short: "Show how URLs are split into chunks",
		Long: `Fetch URLs, extract their text and split it exactly as processing would,
printing each chunk's byte offsets and character length.

Chunk size, overlap and separator come from SCOUT_CHUNK_SIZE,
SCOUT_CHUNK_OVERLAP and SCOUT_CHUNK_SEPARATOR.

Examples:
  scout chunks --url https://example.com/news/rates-rise
  SCOUT_CHUNK_SIZE=500 scout chunks -u https://example.com/a --text`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			settings, err := scout.SettingsFromEnv()
			if err != nil {
				return fmt.Errorf("chunks: %w", err)
			}
			urls = scout.CleanURLs(urls, settings.MaxURLs)
			if len(urls) == 0 {
				return fmt.Errorf("chunks: at least one --url is required")
			}
			splitter, err := chunker.New(settings.Chunk)
			if err != nil {
				return fmt.Errorf("chunks: %w", err)
			}

			docs, err := newLoader(settings).Load(ctx, urls)
			if err != nil {
				return fmt.Errorf("chunks: %w", err)
			}
			chunks := splitter.Split(docs)

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DOC\tPOS\tSTART\tEND\tCHARS\tSOURCE")
			for _, c := range chunks {
				fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%s\n",
					c.DocIndex, c.Position, c.Start, c.End, utf8.RuneCountInString(c.Text), c.Source)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if showText {
				for _, c := range chunks {
					fmt.Fprintf(os.Stdout, "\n--- %s #%d ---\n%s\n", c.Source, c.Position, c.Text)
				}
			}
			fmt.Fprintf(os.Stdout, "\n%d documents, %d chunks\n", len(docs), len(chunks))
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&urls, "url", "u", nil, "URL to load (repeatable)")
	cmd.Flags().BoolVar(&showText, "text", false, "Print each chunk's text")

	return cmd
}
