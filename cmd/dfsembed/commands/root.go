// Package commands implements the dfsembed CLI, a host process that embeds
// a DittoFS subsystem through the embedded controller.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	configPaths []string
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dfsembed",
		Short: "Run an embedded DittoFS subsystem",
		Long: `dfsembed hosts a DittoFS subsystem in-process: BadgerDB persistence
and an HTTP server exposing health, node and metrics endpoints.

Use "dfsembed [command] --help" for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringArrayVar(&configPaths, "config", nil,
		"config file; repeat to search several paths, the first existing one wins (default: $XDG_CONFIG_HOME/dittofs-embedded/config.yaml)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.CompletionOptions.DisableDefaultCmd = true

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
