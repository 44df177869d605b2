package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/plus-control/plusd/internal/command"
)

// execConfig holds configuration for the exec command.
type execConfig struct {
	name       string
	device     string
	xml        string
	structured bool
	timeout    time.Duration
}

// newExecCmd creates the "plusd exec" subcommand.
func newExecCmd(configPath *string) *cobra.Command {
	var cfg execConfig

	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Run one command against the configured devices",
		Long:  "Connects the configured devices, runs a single command and prints its\nreplies as JSON lines.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.name == "" {
				return fmt.Errorf("--name is required")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
			defer cancel()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.shutdown()
			a.start(ctx)

			if err := a.processor.EnqueueFromRawText(cfg.structured, 0, cfg.name, cfg.xml, cfg.device, 1); err != nil {
				// unknown commands still queue a failure reply
				if perr := printResponses(cmd, a.processor.DrainResponses(nil)); perr != nil {
					return perr
				}
				return err
			}

			replies, err := awaitResponses(ctx, a.processor, a.cfg.Processor.PollInterval)
			if err != nil {
				return err
			}
			return printResponses(cmd, replies)
		},
	}

	cmd.Flags().StringVar(&cfg.name, "name", "", "command name, e.g. Get")
	cmd.Flags().StringVar(&cfg.device, "device", "", "target device id")
	cmd.Flags().StringVar(&cfg.xml, "xml", "<Command />", "command element")
	cmd.Flags().BoolVar(&cfg.structured, "structured", false, "request a structured reply")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 30*time.Second, "give up after this long")

	return cmd
}

// awaitResponses polls until the command has replied.
func awaitResponses(ctx context.Context, p *command.Processor, poll time.Duration) ([]command.Response, error) {
	for {
		if replies := p.DrainResponses(nil); len(replies) > 0 {
			return replies, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for reply: %w", ctx.Err())
		case <-time.After(poll):
		}
	}
}

func printResponses(cmd *cobra.Command, replies []command.Response) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, r := range replies {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
