package oem

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// TestablePort implements Port with scripted reads for tests. Frames written
// to the port are captured; reads are served from ReadBuffer.
type TestablePort struct {
	mu sync.Mutex

	ReadBuffer  *bytes.Buffer
	WriteBuffer *bytes.Buffer

	// ReadError is returned by the next Read call if set
	ReadError error

	// WriteError is returned by the next Write call if set
	WriteError error

	Closed bool

	ReadCalls  int
	WriteCalls int

	// ReadTimeout is the last timeout set through SetReadTimeout
	ReadTimeout time.Duration

	// MaxRead caps how many bytes one Read returns, to split frames across reads
	MaxRead int

	// BlockReads causes Read to wait for data instead of returning (0, nil)
	BlockReads bool

	readCond *sync.Cond
}

// NewTestablePort creates an empty TestablePort.
func NewTestablePort() *TestablePort {
	p := &TestablePort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
	p.readCond = sync.NewCond(&p.mu)
	return p
}

func (p *TestablePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ReadCalls++

	if p.Closed {
		return 0, errors.New("port closed")
	}
	if p.ReadError != nil {
		err := p.ReadError
		p.ReadError = nil
		return 0, err
	}

	if p.BlockReads {
		for !p.Closed && p.ReadBuffer.Len() == 0 {
			p.readCond.Wait()
		}
		if p.Closed {
			return 0, errors.New("port closed")
		}
	}

	if p.ReadBuffer.Len() == 0 {
		// serial ports report a read timeout this way
		return 0, nil
	}
	if p.MaxRead > 0 && len(b) > p.MaxRead {
		b = b[:p.MaxRead]
	}
	return p.ReadBuffer.Read(b)
}

func (p *TestablePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.WriteCalls++

	if p.Closed {
		return 0, errors.New("port closed")
	}
	if p.WriteError != nil {
		err := p.WriteError
		p.WriteError = nil
		return 0, err
	}
	return p.WriteBuffer.Write(b)
}

// Close marks the port closed and wakes blocked readers.
func (p *TestablePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Closed = true
	p.readCond.Broadcast()
	return nil
}

// SetReadTimeout records the timeout, mirroring serial.Port.
func (p *TestablePort) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ReadTimeout = t
	return nil
}

// AddReadData appends raw bytes to be returned by later reads.
func (p *TestablePort) AddReadData(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ReadBuffer.Write(data)
	p.readCond.Signal()
}

// AddMessage frames body and queues it for reading.
func (p *TestablePort) AddMessage(body string) {
	p.AddReadData(EncodeString(body))
}

// Written returns everything written so far.
func (p *TestablePort) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]byte(nil), p.WriteBuffer.Bytes()...)
}
