package command_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/require"

	"github.com/plus-control/plusd/internal/audit"
	"github.com/plus-control/plusd/internal/command"
	"github.com/plus-control/plusd/internal/config"
	"github.com/plus-control/plusd/internal/device"
	"github.com/plus-control/plusd/internal/device/fake"
)

// orderLog records the order in which test commands ran.
type orderLog struct {
	mu   sync.Mutex
	tags []string
}

func (l *orderLog) add(tag string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tags = append(l.tags, tag)
}

func (l *orderLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.tags...)
}

// recordCommand appends its Tag attribute to a shared log and replies with it.
type recordCommand struct {
	command.Base

	name    string
	log     *orderLog
	fail    bool
	panicV  any
	started chan struct{}
	release chan struct{}

	tag string
}

func (c *recordCommand) Names() []string           { return []string{c.name} }
func (c *recordCommand) Description(string) string { return c.name + ": test command" }

func (c *recordCommand) Clone() command.Command {
	return &recordCommand{
		name:    c.name,
		log:     c.log,
		fail:    c.fail,
		panicV:  c.panicV,
		started: c.started,
		release: c.release,
	}
}

func (c *recordCommand) ReadConfiguration(el *etree.Element) error {
	c.tag = el.SelectAttrValue("Tag", "")
	return nil
}

func (c *recordCommand) Execute(ctx context.Context, _ command.DeviceCollection) error {
	if c.started != nil {
		select {
		case c.started <- struct{}{}:
		default:
		}
	}
	if c.release != nil {
		<-c.release
	}
	c.log.add(c.tag)
	if c.panicV != nil {
		panic(c.panicV)
	}
	if c.fail {
		return fmt.Errorf("%w: simulated failure", device.ErrBusy)
	}
	c.QueueResponse(command.StatusSuccess, c.tag)
	return nil
}

// recordingAudit keeps audit entries in memory.
type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recordingAudit) LogCommand(_ context.Context, e audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *recordingAudit) all() []audit.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Entry(nil), r.entries...)
}

func testDevices(t *testing.T) *device.Collection {
	t.Helper()
	c := device.NewCollection()
	require.NoError(t, c.Add(fake.NewNavigator("Stealth", "Doe")))
	require.NoError(t, c.Add(fake.NewScanner("BK")))
	return c
}

func testConfig() config.ProcessorConfig {
	return config.ProcessorConfig{
		PollInterval: 2 * time.Millisecond,
		DrainOnStop:  true,
	}
}

func newTestProcessor(t *testing.T, cfg config.ProcessorConfig, prototypes []command.Command, opts ...command.Option) *command.Processor {
	t.Helper()

	r := command.NewRegistry()
	require.NoError(t, command.RegisterDefaults(r))
	for _, proto := range prototypes {
		require.NoError(t, r.Register(proto))
	}

	p := command.NewProcessor(r, testDevices(t), cfg, opts...)
	t.Cleanup(p.Stop)
	return p
}

// collect drains responses until at least n have arrived.
func collect(t *testing.T, p *command.Processor, n int) []command.Response {
	t.Helper()
	var got []command.Response
	require.Eventually(t, func() bool {
		got = p.DrainResponses(got)
		return len(got) >= n
	}, 2*time.Second, time.Millisecond)
	return got
}

// runStructured executes one command end to end and returns its only reply.
func runStructured(t *testing.T, name, text string) *command.CommandResponse {
	t.Helper()

	p := newTestProcessor(t, testConfig(), nil)
	require.NoError(t, p.EnqueueFromRawText(true, 7, name, text, "", 99))
	p.Start()

	got := collect(t, p, 1)
	require.Len(t, got, 1)
	resp, ok := got[0].(*command.CommandResponse)
	require.True(t, ok, "expected *CommandResponse, got %T", got[0])
	return resp
}

func messages(responses []command.Response) []string {
	out := make([]string, 0, len(responses))
	for _, r := range responses {
		switch v := r.(type) {
		case *command.StringResponse:
			out = append(out, v.Message)
		case *command.CommandResponse:
			out = append(out, v.Message)
		}
	}
	return out
}
