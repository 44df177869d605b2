package main

import (
	"github.com/spf13/cobra"

	"github.com/plus-control/plusd/internal/device/bkoem/sim"
)

// newSimulateCmd creates the "plusd simulate" subcommand.
func newSimulateCmd() *cobra.Command {
	var (
		listen string
		opts   = sim.DefaultOptions()
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a simulated BK scanner OEM interface",
		Long:  "Serves the BK ProFocus OEM protocol over TCP with a synthetic image until\ninterrupted. Point a bkoem device's address at it.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return sim.New(opts).ListenAndServe(cmd.Context(), listen)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:7915", "TCP listen address")
	cmd.Flags().IntVar(&opts.WindowWidth, "width", opts.WindowWidth, "image width in pixels")
	cmd.Flags().IntVar(&opts.WindowHeight, "height", opts.WindowHeight, "image height in pixels")
	cmd.Flags().IntVar(&opts.GainPercent, "gain", opts.GainPercent, "initial gain in percent")
	cmd.Flags().DurationVar(&opts.FrameInterval, "frame-interval", opts.FrameInterval, "streamed frame period")
	cmd.Flags().StringVar(&opts.ProbeType, "probe", opts.ProbeType, "transducer type on port A: C, L or M")
	cmd.Flags().IntVar(&opts.QueryLog, "query-log", opts.QueryLog, "number of recent queries kept in memory")

	return cmd
}
