package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/plus-control/plusd/internal/command"
	"github.com/plus-control/plusd/internal/telemetry"
)

// request is one JSON line read by serve.
type request struct {
	ClientID      uint   `json:"clientId"`
	CorrelationID uint32 `json:"id"`
	Name          string `json:"name"`
	Device        string `json:"device,omitempty"`
	XML           string `json:"xml"`

	// Structured selects a CommandResponse reply instead of a CommandReply string
	Structured bool `json:"structured,omitempty"`
}

// eventLine wraps a telemetry event so it can share stdout with replies.
type eventLine struct {
	Event telemetry.Event `json:"event"`
}

// newServeCmd creates the "plusd serve" subcommand.
func newServeCmd(configPath *string) *cobra.Command {
	var events bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatch server over stdin/stdout",
		Long: "Connects the configured devices and starts the command worker. Requests are\n" +
			"read from stdin as JSON lines:\n\n" +
			`  {"clientId":1,"id":7,"name":"Get","device":"us-01","xml":"<Command />","structured":true}` + "\n\n" +
			"Replies are written to stdout as JSON lines. With --events, device and command\n" +
			`events are interleaved as {"event":{...}} lines.` + "\n\n" +
			"The server exits at end of input or on SIGINT/SIGTERM, after running queued\n" +
			"commands.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configPath, events, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&events, "events", false, "also write telemetry events to stdout")

	return cmd
}

func runServe(ctx context.Context, configPath string, withEvents bool, in io.Reader, out io.Writer) error {
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}

	// subscribe before connecting so connect-time events are not missed
	var sub *telemetry.Subscription
	if withEvents {
		if sub, err = a.hub.Subscribe("", 0); err != nil {
			a.shutdown()
			return err
		}
	}
	a.start(ctx)

	// stdin reads cannot be cancelled, so lines are pumped from a detached goroutine
	lines := make(chan []byte)
	go scanLines(in, lines)

	enc := json.NewEncoder(out)
	inputDone := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(inputDone)
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				enqueue(a.processor, line)
			}
		}
	})
	g.Go(func() error {
		ticker := time.NewTicker(a.cfg.Processor.PollInterval)
		defer ticker.Stop()
		for {
			if err := writeResponses(enc, a.processor); err != nil {
				return err
			}
			if err := writeEvents(enc, sub); err != nil {
				return err
			}
			select {
			case <-gctx.Done():
				return nil
			case <-inputDone:
				return nil
			case <-ticker.C:
			}
		}
	})
	err = g.Wait()

	// Stop runs whatever is still queued when draining is configured
	a.processor.Stop()
	if werr := writeResponses(enc, a.processor); err == nil {
		err = werr
	}
	a.shutdown()

	// the hub is stopped, so this drains what is left and returns
	if sub != nil {
		for e := range sub.Events {
			if werr := enc.Encode(eventLine{Event: e}); err == nil && werr != nil {
				err = fmt.Errorf("write event: %w", werr)
			}
		}
		if n := sub.Dropped(); n > 0 {
			log.Printf("Dropped %d event(s) for a slow writer", n)
		}
	}
	return err
}

func scanLines(in io.Reader, lines chan<- []byte) {
	defer close(lines)
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		lines <- append([]byte(nil), sc.Bytes()...)
	}
	if err := sc.Err(); err != nil {
		log.Printf("Error reading requests: %v", err)
	}
}

// enqueue hands one request line to the processor. Bad lines are logged and
// skipped.
func enqueue(p *command.Processor, line []byte) {
	if len(line) == 0 {
		return
	}
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		log.Printf("Ignoring malformed request: %v", err)
		return
	}
	if err := p.EnqueueFromRawText(req.Structured, req.ClientID, req.Name, req.XML, req.Device, req.CorrelationID); err != nil {
		log.Printf("Request %d from client %d rejected: %v", req.CorrelationID, req.ClientID, err)
	}
}

// writeEvents writes the events already delivered to sub without waiting for
// more. A nil sub writes nothing.
func writeEvents(enc *json.Encoder, sub *telemetry.Subscription) error {
	if sub == nil {
		return nil
	}
	for {
		select {
		case e, ok := <-sub.Events:
			if !ok {
				return nil
			}
			if err := enc.Encode(eventLine{Event: e}); err != nil {
				return fmt.Errorf("write event: %w", err)
			}
		default:
			return nil
		}
	}
}

func writeResponses(enc *json.Encoder, p *command.Processor) error {
	for _, r := range p.DrainResponses(nil) {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	return nil
}
