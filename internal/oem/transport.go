package oem

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Port is a duplex byte transport to a scanner: a TCP connection or a serial line.
type Port interface {
	io.ReadWriteCloser
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type readTimeouter interface {
	SetReadTimeout(t time.Duration) error
}

// PortOptions describes the serial line parameters of the OEM interface.
type PortOptions struct {
	BaudRate int    `yaml:"baudRate" toml:"baudRate"`
	DataBits int    `yaml:"dataBits" toml:"dataBits"`
	StopBits int    `yaml:"stopBits" toml:"stopBits"`
	Parity   string `yaml:"parity" toml:"parity"`
}

// Normalize validates the options and applies defaults for any unset values.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o

	if opts.BaudRate <= 0 {
		opts.BaudRate = 115200
	}

	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}

	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	switch strings.TrimSpace(strings.ToUpper(opts.Parity)) {
	case "", "N", "NONE":
		opts.Parity = "N"
	case "E", "EVEN":
		opts.Parity = "E"
	case "O", "ODD":
		opts.Parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}

	return opts, nil
}

// SerialMode converts the options into the mode go.bug.st/serial opens ports with.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		StopBits: serial.OneStopBit,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}

	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}

	return mode, nil
}

// OpenSerial opens the serial device at path.
func OpenSerial(path string, opts PortOptions) (Port, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return port, nil
}

// Dial connects to the OEM interface at a TCP host:port address.
func Dial(ctx context.Context, address string, timeout time.Duration) (Port, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	return conn, nil
}

// SetReadTimeout bounds the next reads on p when the transport supports it.
// A non-positive timeout blocks indefinitely.
func SetReadTimeout(p Port, timeout time.Duration) error {
	switch t := p.(type) {
	case readDeadliner:
		var deadline time.Time
		if timeout > 0 {
			deadline = time.Now().Add(timeout)
		}
		return t.SetReadDeadline(deadline)
	case readTimeouter:
		if timeout <= 0 {
			timeout = serial.NoTimeout
		}
		return t.SetReadTimeout(timeout)
	}
	return nil
}
