// Package commands defines all Cobra CLI commands for the scout binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/insight-scout/internal/audit"
	"github.com/54b3r/insight-scout/internal/config"
	"github.com/54b3r/insight-scout/internal/logging"
	"github.com/54b3r/insight-scout/internal/server"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "scout",
		Short: "Insight Scout: ask questions based on news URLs",
		Long: server.About + `

Process up to three URLs, then ask questions answered from their content.
The chat model is selected via MODEL_PROVIDER and the embedding model via
EMBEDDING_PROVIDER, or a YAML config file (~/.scout/config.yaml).
A .env file in the working directory is loaded first.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			if err := config.LoadDotEnv("", log); err != nil {
				return err
			}

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			audit.LogCommandStart(cmd.Context(), log, cmd.Name(), loadedConfigPath)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.scout/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewAskCmd(),
		NewChunksCmd(),
		NewTUICmd(),
		NewVersionCmd(),
	)

	return root
}
