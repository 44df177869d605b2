package bkoem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/plus-control/plusd/internal/config"
	"github.com/plus-control/plusd/internal/device"
	"github.com/plus-control/plusd/internal/monitoring"
	"github.com/plus-control/plusd/internal/oem"
	"github.com/plus-control/plusd/internal/telemetry"
	"github.com/plus-control/plusd/internal/tracing"
)

// DeviceType is the type reported by Scanner.
const DeviceType = config.DeviceTypeBKOEM

const (
	defaultConnectTimeout = 5 * time.Second
	defaultReadTimeout    = 5 * time.Second
)

// ErrNotConnected is returned by operations that need an open link.
var ErrNotConnected = errors.New("NOT_CONNECTED")

// Publisher receives scanner events.
type Publisher interface {
	PublishDevice(device string, event telemetry.Event) error
}

// PortOpener opens the link to the scanner.
type PortOpener func(ctx context.Context) (oem.Port, error)

// Option configures a Scanner.
type Option func(*Scanner)

// WithPublisher publishes freeze, unfreeze and transducer events.
func WithPublisher(p Publisher) Option {
	return func(s *Scanner) { s.events = p }
}

// WithTracer sets the tracer for bkoem.query spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Scanner) { s.tracer = t }
}

// WithPortOpener replaces the TCP or serial transport chosen from the config.
func WithPortOpener(open PortOpener) Option {
	return func(s *Scanner) { s.open = open }
}

// Scanner is a BK ProFocus scanner. It implements device.Connector,
// device.ParameterQuerier and device.ImageSource.
type Scanner struct {
	cfg    config.DeviceConfig
	open   PortOpener
	events Publisher
	tracer trace.Tracer

	// mu serializes use of the link and guards the fields below
	mu        sync.Mutex
	port      oem.Port
	reader    *oem.Reader
	params    Parameters
	lastFrame *device.Image
	frozen    bool
}

var (
	_ device.Connector        = (*Scanner)(nil)
	_ device.ParameterQuerier = (*Scanner)(nil)
	_ device.ImageSource      = (*Scanner)(nil)
)

// New creates a disconnected scanner. The link is TCP to cfg.Address, or the
// serial port cfg.SerialPort when set.
func New(cfg config.DeviceConfig, opts ...Option) (*Scanner, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("bkoem: device id is required")
	}

	s := &Scanner{
		cfg:    cfg,
		tracer: tracing.Tracer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.open != nil {
		return s, nil
	}

	switch {
	case cfg.SerialPort != "":
		portOpts, err := oem.PortOptions{
			BaudRate: cfg.Serial.BaudRate,
			DataBits: cfg.Serial.DataBits,
			StopBits: cfg.Serial.StopBits,
			Parity:   cfg.Serial.Parity,
		}.Normalize()
		if err != nil {
			return nil, fmt.Errorf("bkoem %s: %w", cfg.ID, err)
		}
		s.open = func(context.Context) (oem.Port, error) {
			return oem.OpenSerial(cfg.SerialPort, portOpts)
		}

	case cfg.Address != "":
		timeout := cfg.ConnectTimeout
		if timeout <= 0 {
			timeout = defaultConnectTimeout
		}
		s.open = func(ctx context.Context) (oem.Port, error) {
			return oem.Dial(ctx, cfg.Address, timeout)
		}

	default:
		return nil, fmt.Errorf("bkoem %s: address or serial port is required", cfg.ID)
	}
	return s, nil
}

func (s *Scanner) ID() string   { return s.cfg.ID }
func (s *Scanner) Type() string { return DeviceType }

// Connect opens the link. With continuous streaming it also reads every
// parameter, enables events, subscribes to parameter changes and starts the
// frame stream, returning once the first frame has arrived.
func (s *Scanner) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port != nil {
		return nil
	}

	ctx, span := s.startSpan(ctx, "connect")
	defer span.End()

	port, err := s.open(ctx)
	if err != nil {
		return s.fail(span, err)
	}
	s.port = port
	s.reader = oem.NewReader(port)

	if s.cfg.ContinuousStreaming {
		if err := s.startStreaming(ctx); err != nil {
			s.closeLocked()
			return s.fail(span, fmt.Errorf("start streaming: %w", err))
		}
	}

	monitoring.Logf("bkoem: %s connected (streaming=%t)", s.cfg.ID, s.cfg.ContinuousStreaming)
	return nil
}

func (s *Scanner) startStreaming(ctx context.Context) error {
	queries := slices.Concat(parameterQueries, []string{QueryEventsOn, QuerySubscribe, QueryGrabFrameOn})
	for _, q := range queries {
		if err := s.send(ctx, q); err != nil {
			return err
		}
	}

	img, err := s.readUntilImage(ctx)
	if err != nil {
		return err
	}
	s.lastFrame = img
	return nil
}

// Disconnect stops the frame stream, waits for the scanner's ACK and closes
// the link. The link is closed even when the scanner does not answer.
func (s *Scanner) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil
	}

	ctx, span := s.startSpan(ctx, "disconnect")
	defer span.End()

	err := s.send(ctx, QueryGrabFrameOff)
	if err == nil {
		err = s.awaitAck(ctx)
	}
	s.closeLocked()

	if err != nil {
		return s.fail(span, err)
	}
	monitoring.Logf("bkoem: %s disconnected", s.cfg.ID)
	return nil
}

// ParameterNames lists the parameters the scanner answers.
func (s *Scanner) ParameterNames() []string {
	return slices.Clone(parameterNames)
}

// ParameterAnswers queries the scanner for its current imaging parameters and
// returns the requested ones, plus DeviceId. Frames that arrive meanwhile
// replace the last frame.
func (s *Scanner) ParameterAnswers(ctx context.Context, names []string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, name := range names {
		if !slices.Contains(parameterNames, name) {
			return nil, device.Normalize(fmt.Errorf("UNKNOWN_PARAMETER: %s", name), name, DeviceType)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil, device.Normalize(ErrNotConnected, nil, DeviceType)
	}

	ctx, span := s.startSpan(ctx, "parameters")
	defer span.End()

	if err := s.refresh(ctx); err != nil {
		return nil, s.fail(span, err)
	}

	values := s.params.Values()
	answers := make(map[string]string, len(names)+1)
	for _, name := range names {
		answers[name] = values[name]
	}
	answers[ParamDeviceID] = s.cfg.ID
	return answers, nil
}

// CaptureImage returns the next streamed frame, or asks for a single PNG when
// streaming is off.
func (s *Scanner) CaptureImage(ctx context.Context) (*device.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil, device.Normalize(ErrNotConnected, nil, DeviceType)
	}

	ctx, span := s.startSpan(ctx, "capture")
	defer span.End()

	if !s.cfg.ContinuousStreaming {
		if err := s.send(ctx, QueryCaptureImage); err != nil {
			return nil, s.fail(span, err)
		}
	}
	img, err := s.readUntilImage(ctx)
	if err != nil {
		return nil, s.fail(span, err)
	}
	s.lastFrame = img
	return img, nil
}

// Parameters returns a copy of the last reported imaging parameters.
func (s *Scanner) Parameters() Parameters {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.params
	p.ProbeTypes = make(map[string]ProbeType, len(s.params.ProbeTypes))
	for k, v := range s.params.ProbeTypes {
		p.ProbeTypes[k] = v
	}
	return p
}

// LastFrame returns the most recent image, or nil.
func (s *Scanner) LastFrame() *device.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFrame
}

// Frozen reports whether the scanner last announced a freeze.
func (s *Scanner) Frozen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frozen
}

// refresh sends every parameter query and processes messages until each has
// been answered.
func (s *Scanner) refresh(ctx context.Context) error {
	for _, q := range parameterQueries {
		if err := s.send(ctx, q); err != nil {
			return err
		}
	}

	pending := make(map[string]bool, len(parameterReplies))
	for _, name := range parameterReplies {
		pending[name] = true
	}
	for len(pending) > 0 {
		msg, err := s.readMessage(ctx)
		if err != nil {
			return err
		}
		img, name, err := s.handle(ctx, msg)
		if err != nil {
			return err
		}
		if img != nil {
			s.lastFrame = img
		}
		delete(pending, name)
	}
	return nil
}

func (s *Scanner) readUntilImage(ctx context.Context) (*device.Image, error) {
	for {
		msg, err := s.readMessage(ctx)
		if err != nil {
			return nil, err
		}
		img, _, err := s.handle(ctx, msg)
		if err != nil {
			return nil, err
		}
		if img != nil {
			return img, nil
		}
	}
}

func (s *Scanner) awaitAck(ctx context.Context) error {
	for {
		msg, err := s.readMessage(ctx)
		if err != nil {
			return err
		}
		if msg.Header == HeaderAck {
			return nil
		}
		if _, _, err := s.handle(ctx, msg); err != nil {
			return err
		}
	}
}

// handle processes one message. It returns the decoded image for frame
// messages and the parameter name for parameter messages.
func (s *Scanner) handle(ctx context.Context, msg oem.Message) (*device.Image, string, error) {
	switch msg.Header {
	case HeaderCaptureImage, HeaderGrabFrame:
		img, err := s.decodeImage(msg)
		return img, "", err

	case HeaderTransducerConnect, HeaderTransducerDisconnect, HeaderTransducerSelected:
		// the transducer list cannot be subscribed to
		s.publish("transducerChanged", map[string]any{"event": msg.Name})
		return nil, "", s.send(ctx, QueryTransducerList)

	case HeaderFreeze:
		s.frozen = true
		s.publish("freeze", nil)
		return nil, "", nil

	case HeaderUnfreeze:
		s.frozen = false
		s.publish("unfreeze", nil)
		return nil, "", nil

	case HeaderAck:
		monitoring.Logf("bkoem: %s: acknowledge received", s.cfg.ID)
		return nil, "", nil
	}

	if msg.IsData() {
		name, err := s.params.Apply(msg)
		if err != nil {
			monitoring.Logf("bkoem: %s: ignoring malformed %s: %v", s.cfg.ID, msg, err)
			return nil, "", nil
		}
		if name == "" {
			monitoring.Logf("bkoem: %s: ignoring data message %s", s.cfg.ID, msg)
		}
		return nil, name, nil
	}

	monitoring.Logf("bkoem: %s: received unknown message %s", s.cfg.ID, msg)
	return nil, "", nil
}

func (s *Scanner) decodeImage(msg oem.Message) (*device.Image, error) {
	payload, err := oem.ParseImagePayload(msg.Raw)
	if err != nil {
		return nil, err
	}

	img := &device.Image{Captured: time.Now()}
	if msg.Header == HeaderGrabFrame {
		ts, pixels, err := payload.SplitTimestamp()
		if err != nil {
			return nil, err
		}
		w, h := s.params.WindowWidth, s.params.WindowHeight
		img.Format = "GRAY8"
		if w > 0 && h > 0 && len(pixels) >= 3*w*h {
			img.Format = "RGB24"
		}
		img.Width, img.Height = w, h
		img.Timestamp = ts
		img.Data = bytes.Clone(pixels)
		return img, nil
	}

	img.Format = "PNG"
	img.Data = bytes.Clone(payload.Data)
	if cfg, err := png.DecodeConfig(bytes.NewReader(img.Data)); err == nil {
		img.Width, img.Height = cfg.Width, cfg.Height
	}
	return img, nil
}

func (s *Scanner) send(ctx context.Context, query string) error {
	trace.SpanFromContext(ctx).AddEvent("query", trace.WithAttributes(attribute.String("oem.query", query)))
	return oem.WriteQuery(s.port, query)
}

// readMessage reads the next message, bounded by the read timeout and ctx.
func (s *Scanner) readMessage(ctx context.Context) (oem.Message, error) {
	if err := ctx.Err(); err != nil {
		return oem.Message{}, err
	}

	timeout := s.cfg.ReadTimeout
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = max(d, time.Nanosecond)
		}
	}
	if err := oem.SetReadTimeout(s.port, timeout); err != nil {
		return oem.Message{}, err
	}

	port := s.port
	stop := context.AfterFunc(ctx, func() {
		_ = oem.SetReadTimeout(port, time.Nanosecond)
	})
	defer stop()

	for {
		msg, err := s.reader.ReadNextMessage()
		if err != nil && ctx.Err() != nil {
			return oem.Message{}, ctx.Err()
		}
		if errors.Is(err, oem.ErrBadFrame) || errors.Is(err, oem.ErrBadEscape) {
			monitoring.Logf("bkoem: %s: dropping malformed frame: %v", s.cfg.ID, err)
			continue
		}
		return msg, err
	}
}

func (s *Scanner) closeLocked() {
	if s.port != nil {
		if err := s.port.Close(); err != nil {
			monitoring.Logf("bkoem: %s: close: %v", s.cfg.ID, err)
		}
	}
	s.port = nil
	s.reader = nil
}

func (s *Scanner) publish(eventType string, data map[string]any) {
	monitoring.Logf("bkoem: %s: %s", s.cfg.ID, eventType)
	if s.events == nil {
		return
	}
	if err := s.events.PublishDevice(s.cfg.ID, telemetry.Event{Type: eventType, Data: data}); err != nil {
		monitoring.Logf("bkoem: %s: publish %s: %v", s.cfg.ID, eventType, err)
	}
}

func (s *Scanner) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "bkoem.query", trace.WithAttributes(
		attribute.String("device.id", s.cfg.ID),
		attribute.String("bkoem.operation", op),
	))
}

// fail records err on span and returns it normalized.
func (s *Scanner) fail(span trace.Span, err error) error {
	err = device.Normalize(err, nil, DeviceType)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
