package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/plus-control/plusd/internal/device"
)

// newStatusCmd creates the "plusd status" subcommand.
func newStatusCmd(configPath *string) *cobra.Command {
	var (
		asJSON  bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Connect the configured devices and report their state",
		Long: "Connects every configured device once, prints its connection state and\n" +
			"disconnects again. Exits non-zero when a device could not be reached.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.shutdown()

			_ = a.devices.Connect(cmd.Context(), timeout)
			status := a.devices.Status()

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, s := range status {
					if err := enc.Encode(s); err != nil {
						return err
					}
				}
			} else if err := printStatus(cmd, status); err != nil {
				return err
			}

			if n := unavailable(status); n > 0 {
				return fmt.Errorf("%d of %d device(s) unavailable", n, len(status))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON object per device")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "per-device connect timeout")

	return cmd
}

func printStatus(cmd *cobra.Command, status []device.Status) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DEVICE\tTYPE\tSTATE\tERROR")
	for _, s := range status {
		state := "connected"
		if !s.Connected {
			state = "unavailable"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.Type, state, s.LastError)
	}
	return w.Flush()
}

func unavailable(status []device.Status) int {
	n := 0
	for _, s := range status {
		if !s.Connected {
			n++
		}
	}
	return n
}
