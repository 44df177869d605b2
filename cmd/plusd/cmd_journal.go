package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/plus-control/plusd/internal/audit"
	"github.com/plus-control/plusd/internal/config"
)

// newJournalCmd creates the "plusd journal" subcommand.
func newJournalCmd(configPath *string) *cobra.Command {
	var (
		limit int
		path  string
	)

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recently executed commands",
		Long:  "Prints the newest entries of the SQLite command journal, newest first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				cfg, err := config.Load(*configPath)
				if err != nil {
					return err
				}
				path = cfg.Audit.Journal
			}
			if path == "" {
				return fmt.Errorf("no journal configured: set audit.journal or pass --path")
			}

			j, err := audit.OpenJournal(path)
			if err != nil {
				return err
			}
			defer j.Close()

			entries, err := j.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tCLIENT\tID\tCOMMAND\tDEVICE\tOUTCOME\tCODE\tLATENCY")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\t%s\t%dms\n",
					e.Timestamp.Local().Format(time.DateTime), e.ClientID, e.CorrelationID,
					e.Command, e.Device, e.Outcome, e.Code, e.LatencyMs)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries to show")
	cmd.Flags().StringVar(&path, "path", "", "journal database; defaults to audit.journal from the config")

	return cmd
}
