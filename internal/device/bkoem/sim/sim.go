// Package sim provides a BK ProFocus OEM interface simulator for development
// and testing. It speaks the same framing as the scanner over TCP.
package sim

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/plus-control/plusd/internal/device/bkoem"
	"github.com/plus-control/plusd/internal/monitoring"
	"github.com/plus-control/plusd/internal/oem"
)

// Options configures the simulated scanner.
type Options struct {
	WindowWidth   int
	WindowHeight  int
	GainPercent   int
	FrameInterval time.Duration

	// ProbeType is the one letter transducer type on port A: C, L or M
	ProbeType string

	// QueryLog is how many of the most recent queries Queries keeps.
	QueryLog int
}

// DefaultQueryLog is the query history kept when Options.QueryLog is unset.
const DefaultQueryLog = 256

// DefaultOptions returns a small 8x6 sector scan at 50% gain.
func DefaultOptions() Options {
	return Options{
		WindowWidth:   8,
		WindowHeight:  6,
		GainPercent:   50,
		FrameInterval: 50 * time.Millisecond,
		ProbeType:     "C",
		QueryLog:      DefaultQueryLog,
	}
}

// Simulator is a simulated scanner. It accepts any number of OEM clients.
type Simulator struct {
	opts Options

	// mu guards the scanner state
	mu     sync.RWMutex
	gain   int
	frozen bool
	frames uint32

	queriesMu sync.Mutex
	queries   []string

	listener net.Listener
	stopOnce sync.Once
	stopChan chan struct{}
	connsMu  sync.Mutex
	conns    map[*client]struct{}
	wg       sync.WaitGroup
}

type client struct {
	net.Conn

	writeMu    sync.Mutex
	events     atomic.Bool
	subscribed atomic.Bool

	// streamStop is non-nil while frames are being pushed
	streamMu   sync.Mutex
	streamStop chan struct{}
	streamDone chan struct{}
}

// New creates a simulator. Zero options take the defaults.
func New(opts Options) *Simulator {
	def := DefaultOptions()
	if opts.WindowWidth <= 0 || opts.WindowHeight <= 0 {
		opts.WindowWidth, opts.WindowHeight = def.WindowWidth, def.WindowHeight
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = def.FrameInterval
	}
	if opts.ProbeType == "" {
		opts.ProbeType = def.ProbeType
	}
	if opts.QueryLog <= 0 {
		opts.QueryLog = def.QueryLog
	}
	return &Simulator{
		opts:     opts,
		gain:     opts.GainPercent,
		stopChan: make(chan struct{}),
		conns:    make(map[*client]struct{}),
	}
}

// Start listens on addr and serves clients in the background.
func (s *Simulator) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	monitoring.Logf("sim: OEM interface listening on %s", listener.Addr())

	s.wg.Add(1)
	go s.serve()
	return nil
}

// ListenAndServe runs the simulator until ctx is done.
func (s *Simulator) ListenAndServe(ctx context.Context, addr string) error {
	if err := s.Start(addr); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-s.stopChan:
	}
	return s.Close()
}

// Addr returns the listening address.
func (s *Simulator) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Simulator) serve() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopChan:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			monitoring.Logf("sim: accept: %v", err)
			continue
		}

		c := &client{Conn: conn}
		s.connsMu.Lock()
		s.conns[c] = struct{}{}
		s.connsMu.Unlock()

		s.wg.Add(1)
		go s.handleConnection(c)
	}
}

func (s *Simulator) handleConnection(c *client) {
	defer s.wg.Done()
	defer func() {
		s.stopStreaming(c)
		c.Close()
		s.connsMu.Lock()
		delete(s.conns, c)
		s.connsMu.Unlock()
	}()

	monitoring.Logf("sim: client %s connected", c.RemoteAddr())
	reader := oem.NewReader(c)
	for {
		raw, err := reader.ReadRaw()
		if err != nil {
			if !errors.Is(err, oem.ErrBadEscape) && !errors.Is(err, oem.ErrBadFrame) {
				monitoring.Logf("sim: client %s gone: %v", c.RemoteAddr(), err)
				return
			}
			monitoring.Logf("sim: dropping bad frame from %s: %v", c.RemoteAddr(), err)
			continue
		}

		query := string(raw)
		s.recordQuery(query)

		s.respond(c, query)
	}
}

// respond answers one query.
func (s *Simulator) respond(c *client, query string) {
	s.mu.RLock()
	gain := s.gain
	s.mu.RUnlock()

	w, h := s.opts.WindowWidth, s.opts.WindowHeight

	switch strings.ToUpper(query) {
	case bkoem.QueryImageSize:
		s.send(c, fmt.Sprintf("DATA:US_WIN_SIZE %d,%d;", w, h))
	case bkoem.QueryScanArea:
		// depth 0 to 50 mm, straight lines
		s.send(c, "DATA:B_GEOMETRY_SCANAREA:A 0,0,0,0,0,0,0,0.05;")
	case bkoem.QueryPixelGeometry:
		s.send(c, fmt.Sprintf("DATA:B_GEOMETRY_PIXEL:A 0,0,%d,%d;", w, h))
	case bkoem.QueryTissueGeometry:
		// one mm per pixel
		half := float64(w) / 2 / 1000
		s.send(c, fmt.Sprintf("DATA:B_GEOMETRY_TISSUE:A %s,0,%s,%s;",
			formatFloat(-half), formatFloat(half), formatFloat(-float64(h)/1000)))
	case bkoem.QueryGain:
		s.send(c, "DATA:B_GAIN:A "+strconv.Itoa(gain)+";")
	case bkoem.QueryTransducerList:
		s.send(c, fmt.Sprintf(`DATA:TRANSDUCER_LIST "8820e","%s","","","","","","";`, s.opts.ProbeType))
	case bkoem.QueryTransducer:
		s.send(c, `DATA:TRANSDUCER:A "A","8820e";`)
	case bkoem.QueryEventsOn:
		c.events.Store(true)
		s.send(c, "ACK;")
	case bkoem.QuerySubscribe:
		c.subscribed.Store(true)
		s.send(c, "ACK;")
	case bkoem.QueryGrabFrameOn:
		s.startStreaming(c)
		s.send(c, "ACK;")
	case bkoem.QueryGrabFrameOff:
		s.stopStreaming(c)
		s.send(c, "ACK;")
	case strings.ToUpper(bkoem.QueryCaptureImage):
		msg, err := s.captureMessage()
		if err != nil {
			monitoring.Logf("sim: encode capture: %v", err)
			s.send(c, "ERROR:CAPTURE_FAILED;")
			return
		}
		s.write(c, msg)
	default:
		monitoring.Logf("sim: unknown query %q", query)
		s.send(c, "ERROR:UNKNOWN_QUERY;")
	}
}

func (s *Simulator) send(c *client, msg string) {
	s.write(c, []byte(msg))
}

func (s *Simulator) write(c *client, body []byte) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.Write(oem.Encode(body)); err != nil {
		monitoring.Logf("sim: write to %s: %v", c.RemoteAddr(), err)
	}
}

func (s *Simulator) startStreaming(c *client) {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()

	if c.streamStop != nil {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	c.streamStop, c.streamDone = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.opts.FrameInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if msg, ok := s.nextFrame(); ok {
					s.write(c, msg)
				}
			}
		}
	}()
}

func (s *Simulator) stopStreaming(c *client) {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()

	if c.streamStop == nil {
		return
	}
	close(c.streamStop)
	<-c.streamDone
	c.streamStop, c.streamDone = nil, nil
}

// nextFrame renders a streamed frame, or reports false while frozen.
func (s *Simulator) nextFrame() ([]byte, bool) {
	s.mu.Lock()
	if s.frozen {
		s.mu.Unlock()
		return nil, false
	}
	s.frames++
	n := s.frames
	s.mu.Unlock()

	pixels := s.pixels(n)
	data := make([]byte, oem.TimestampSize, oem.TimestampSize+len(pixels))
	binary.LittleEndian.PutUint32(data, n)
	data = append(data, pixels...)

	msg := []byte(bkoem.HeaderGrabFrame + " ")
	msg = oem.AppendImagePayload(msg, data)
	return append(msg, ';'), true
}

func (s *Simulator) captureMessage() ([]byte, error) {
	w, h := s.opts.WindowWidth, s.opts.WindowHeight
	img := image.NewGray(image.Rect(0, 0, w, h))
	copy(img.Pix, s.pixels(0))

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}

	msg := []byte(bkoem.HeaderCaptureImage + " ")
	msg = oem.AppendImagePayload(msg, buf.Bytes())
	return append(msg, ';'), nil
}

// pixels renders a gradient shifted by frame. Values cover the framing
// control bytes, so frames exercise escaping.
func (s *Simulator) pixels(frame uint32) []byte {
	out := make([]byte, s.opts.WindowWidth*s.opts.WindowHeight)
	for i := range out {
		out[i] = byte((uint32(i) + frame) % 251)
	}
	return out
}

// SetGain changes the gain and notifies subscribed clients.
func (s *Simulator) SetGain(percent int) {
	s.mu.Lock()
	s.gain = percent
	s.mu.Unlock()

	s.broadcast(func(c *client) bool { return c.subscribed.Load() },
		"SDATA:B_GAIN:A "+strconv.Itoa(percent)+";")
}

// Freeze stops the frame stream and sends EVENT:FREEZE.
func (s *Simulator) Freeze() {
	s.mu.Lock()
	s.frozen = true
	s.mu.Unlock()
	s.broadcast(eventsOn, bkoem.HeaderFreeze+";")
}

// Unfreeze resumes the frame stream and sends EVENT:UNFREEZE.
func (s *Simulator) Unfreeze() {
	s.mu.Lock()
	s.frozen = false
	s.mu.Unlock()
	s.broadcast(eventsOn, bkoem.HeaderUnfreeze+";")
}

// ConnectTransducer sends EVENT:TRANSDUCER_CONNECT.
func (s *Simulator) ConnectTransducer() {
	s.broadcast(eventsOn, bkoem.HeaderTransducerConnect+";")
}

func eventsOn(c *client) bool { return c.events.Load() }

func (s *Simulator) broadcast(match func(*client) bool, msg string) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()

	for c := range s.conns {
		if match(c) {
			s.send(c, msg)
		}
	}
}

func (s *Simulator) recordQuery(query string) {
	s.queriesMu.Lock()
	defer s.queriesMu.Unlock()

	if len(s.queries) >= s.opts.QueryLog {
		n := copy(s.queries, s.queries[len(s.queries)-s.opts.QueryLog+1:])
		s.queries = s.queries[:n]
	}
	s.queries = append(s.queries, query)
}

// Queries returns the most recent queries received, oldest first. At most
// Options.QueryLog are kept.
func (s *Simulator) Queries() []string {
	s.queriesMu.Lock()
	defer s.queriesMu.Unlock()
	return append([]string(nil), s.queries...)
}

// Close stops accepting clients, disconnects the connected ones and waits
// for their handlers.
func (s *Simulator) Close() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopChan)
		if s.listener != nil {
			err = s.listener.Close()
		}

		s.connsMu.Lock()
		for c := range s.conns {
			c.Close()
		}
		s.connsMu.Unlock()

		s.wg.Wait()
	})
	return err
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
