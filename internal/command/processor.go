package command

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/plus-control/plusd/internal/audit"
	"github.com/plus-control/plusd/internal/config"
	"github.com/plus-control/plusd/internal/monitoring"
	"github.com/plus-control/plusd/internal/telemetry"
	"github.com/plus-control/plusd/internal/tracing"
)

// replyProcessFailure is sent when command text cannot be turned into a command.
const replyProcessFailure = "Error attempting to process command."

// Envelope is a queued command.
type Envelope struct {
	Command    Command
	EnqueuedAt time.Time
}

// Processor owns a command queue, a response queue and the single worker
// that executes queued commands in order.
type Processor struct {
	registry *Registry
	devices  DeviceCollection
	cfg      config.ProcessorConfig

	auditLogger AuditLogger
	events      Publisher
	tracer      trace.Tracer

	// mu guards commands and responses; it is never held while a command runs
	mu        sync.Mutex
	commands  []Envelope
	responses []Response

	// lifeMu serializes Start and Stop
	lifeMu sync.Mutex
	state  atomic.Int32
	stop   chan struct{}
	done   chan struct{}
}

// Option configures a Processor.
type Option func(*Processor)

// WithAuditLogger records every command outcome.
func WithAuditLogger(l AuditLogger) Option {
	return func(p *Processor) { p.auditLogger = l }
}

// WithPublisher publishes commandCompleted and commandFailed events.
func WithPublisher(pub Publisher) Option {
	return func(p *Processor) { p.events = pub }
}

// WithTracer sets the tracer used for command.execute spans. The default is
// the global plusd tracer.
func WithTracer(t trace.Tracer) Option {
	return func(p *Processor) { p.tracer = t }
}

// NewProcessor creates a stopped processor. devices is handed to each
// command's Execute.
func NewProcessor(registry *Registry, devices DeviceCollection, cfg config.ProcessorConfig, opts ...Option) *Processor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = config.Default().Processor.PollInterval
	}
	p := &Processor{
		registry: registry,
		devices:  devices,
		cfg:      cfg,
		tracer:   tracing.Tracer(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Registry returns the processor's command registry.
func (p *Processor) Registry() *Registry {
	return p.registry
}

// State returns the worker state.
func (p *Processor) State() WorkerState {
	return WorkerState(p.state.Load())
}

// Start launches the worker. It does nothing when the worker is running.
func (p *Processor) Start() {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	if p.State() != StateStopped {
		return
	}
	p.state.Store(int32(StateStarting))

	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.run(p.stop, p.done)

	p.state.Store(int32(StateRunning))
	monitoring.Logf("command: processor started")
}

// Stop asks the worker to exit and waits for it. A command that is running
// completes first. With DrainOnStop, queued commands are executed before the
// worker exits; otherwise they stay queued for the next Start. Stop on a
// stopped processor returns immediately.
func (p *Processor) Stop() {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	if p.State() == StateStopped {
		return
	}
	close(p.stop)
	p.state.Store(int32(StateStopRequested))
	<-p.done

	p.state.Store(int32(StateStopped))
	monitoring.Logf("command: processor stopped, %d command(s) left queued", p.QueueLength())
}

func (p *Processor) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ctx := context.Background()
	for {
		p.executeCommands(ctx, stop)

		select {
		case <-stop:
			if p.cfg.DrainOnStop {
				p.executeCommands(ctx, stop)
			}
			return
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

// executeCommands runs queued commands until the queue is empty. Without
// DrainOnStop it returns early once stop is closed.
func (p *Processor) executeCommands(ctx context.Context, stop <-chan struct{}) int {
	executed := 0
	for {
		if !p.cfg.DrainOnStop {
			select {
			case <-stop:
				return executed
			default:
			}
		}

		env, ok := p.popCommand()
		if !ok {
			return executed
		}

		responses := p.execute(ctx, env)
		p.pushResponses(responses...)
		executed++
	}
}

func (p *Processor) popCommand() (Envelope, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.commands) == 0 {
		return Envelope{}, false
	}
	env := p.commands[0]
	p.commands[0] = Envelope{}
	p.commands = p.commands[1:]
	return env, true
}

func (p *Processor) pushResponses(responses ...Response) {
	if len(responses) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, responses...)
}

// execute runs one command and collects its responses. A failing command
// that queued nothing gets a failure reply so every request is answered.
func (p *Processor) execute(ctx context.Context, env Envelope) []Response {
	cmd := env.Command
	b := cmd.base()

	ctx, span := p.tracer.Start(ctx, "command.execute", trace.WithAttributes(
		attribute.String("command.name", b.Name),
		attribute.String("command.device", b.DeviceName),
		attribute.Int64("command.client_id", int64(b.ClientID)),
		attribute.Int64("command.correlation_id", int64(b.ID)),
	))
	defer span.End()

	start := time.Now()
	err := p.safeExecute(ctx, cmd)
	latency := time.Since(start)

	if err != nil {
		monitoring.Logf("command: %s failed (client %d, id %d, device %q): %v", b.Name, b.ClientID, b.ID, b.DeviceName, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, errorCode(err))
	}

	responses := b.PopResponses()
	if err != nil && len(responses) == 0 {
		_ = b.Fail(err)
		responses = b.PopResponses()
	}

	p.record(ctx, b, err, latency, time.Since(env.EnqueuedAt))
	return responses
}

// safeExecute turns a panicking command into an error.
func (p *Processor) safeExecute(ctx context.Context, cmd Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("command %s panicked: %v", cmd.base().Name, r)
		}
	}()
	return cmd.Execute(ctx, p.devices)
}

func (p *Processor) record(ctx context.Context, b *Base, err error, latency, sinceEnqueue time.Duration) {
	entry := audit.Entry{
		ClientID:      b.ClientID,
		CorrelationID: b.ID,
		Command:       b.Name,
		Device:        b.DeviceName,
		Outcome:       audit.OutcomeSuccess,
		LatencyMs:     latency.Milliseconds(),
	}
	event := telemetry.Event{
		Type: "commandCompleted",
		Data: map[string]any{
			"command":       b.Name,
			"clientId":      b.ClientID,
			"correlationId": b.ID,
			"latencyMs":     latency.Milliseconds(),
			"queuedMs":      (sinceEnqueue - latency).Milliseconds(),
		},
	}
	if err != nil {
		entry.Outcome = audit.OutcomeFail
		entry.Code = errorCode(err)
		entry.Message = err.Error()
		event.Type = "commandFailed"
		event.Data["code"] = entry.Code
		event.Data["error"] = err.Error()
	}

	if p.auditLogger != nil {
		p.auditLogger.LogCommand(ctx, entry)
	}
	if p.events != nil {
		if perr := p.events.PublishDevice(b.DeviceName, event); perr != nil {
			monitoring.Logf("command: publish %s event: %v", event.Type, perr)
		}
	}
}

// EnqueueFromRawText parses commandText into a command and queues it.
//
// Empty text or name is rejected without a reply. A command that cannot be
// created gets a failure reply queued immediately, addressed to clientID and
// correlationID, and the error is returned; nothing is added to the command
// queue.
func (p *Processor) EnqueueFromRawText(respondStructured bool, clientID uint, commandName, commandText, deviceName string, correlationID uint32) error {
	if commandText == "" {
		monitoring.Logf("command: command text is empty (client %d, id %d)", clientID, correlationID)
		return fmt.Errorf("%w: command text is empty", ErrMalformedCommand)
	}
	if commandName == "" {
		monitoring.Logf("command: command name is empty (client %d, id %d)", clientID, correlationID)
		return fmt.Errorf("%w: command name is empty", ErrMalformedCommand)
	}

	cmd, err := p.registry.Instantiate(commandName, commandText)
	if err != nil {
		monitoring.Logf("command: rejected %s from client %d (id %d): %v", commandName, clientID, correlationID, err)
		if respondStructured {
			p.pushResponses(&CommandResponse{
				ClientID:    clientID,
				OriginalID:  correlationID,
				DeviceName:  deviceName,
				CommandName: commandName,
				Status:      StatusFail,
				Message:     replyProcessFailure,
				ErrorString: commandName + ": failure",
			})
		} else {
			p.pushResponses(NewStringReply(StatusFail, deviceName, replyProcessFailure))
		}
		if p.auditLogger != nil {
			p.auditLogger.LogCommand(context.Background(), audit.Entry{
				ClientID:      clientID,
				CorrelationID: correlationID,
				Command:       commandName,
				Device:        deviceName,
				Outcome:       audit.OutcomeFail,
				Code:          errorCode(err),
				Message:       err.Error(),
			})
		}
		return err
	}

	b := cmd.base()
	b.ClientID = clientID
	b.DeviceName = deviceName
	b.ID = correlationID
	b.RespondStructured = respondStructured

	p.mu.Lock()
	p.commands = append(p.commands, Envelope{Command: cmd, EnqueuedAt: time.Now()})
	p.mu.Unlock()
	return nil
}

// DrainResponses appends every queued response to out in order and empties
// the response queue.
func (p *Processor) DrainResponses(out []Response) []Response {
	p.mu.Lock()
	defer p.mu.Unlock()

	out = append(out, p.responses...)
	p.responses = nil
	return out
}

// QueueLength returns the number of commands waiting to run.
func (p *Processor) QueueLength() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.commands)
}
