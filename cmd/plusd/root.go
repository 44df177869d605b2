package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plus-control/plusd/internal/command"
)

// newRootCmd creates the root plusd command with all subcommands attached.
func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "plusd",
		Short:         "Device command dispatch server",
		Long:          "plusd queues XML device commands from clients, executes them in order\non a single worker and hands the replies back.",
		Version:       fmt.Sprintf("plusd %s", command.Version),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "configuration file (.yaml or .toml); defaults to $PLUSD_CONFIG")

	cmd.AddCommand(
		newServeCmd(&configPath),
		newExecCmd(&configPath),
		newCommandsCmd(),
		newSimulateCmd(),
		newJournalCmd(&configPath),
		newStatusCmd(&configPath),
	)

	return cmd
}
