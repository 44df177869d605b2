package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/plus-control/plusd/internal/command"
)

// newCommandsCmd creates the "plusd commands" subcommand.
func newCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List the commands the server accepts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry := command.NewRegistry()
			if err := command.RegisterDefaults(registry); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, name := range registry.Names() {
				fmt.Fprintf(w, "%s\t%s\n", name, registry.Description(name))
			}
			return w.Flush()
		},
	}
}
