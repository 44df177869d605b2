package oem

import (
	"errors"
	"fmt"
	"io"
)

// ErrTransportRead indicates the transport failed or returned no data before
// a complete message was seen.
var ErrTransportRead = errors.New("TRANSPORT_READ")

const readChunkSize = 64 * 1024

// Reader pulls framed messages off a byte stream. Bytes received past the end
// of a message are kept for the next call. A Reader is not safe for
// concurrent use; each transport has exactly one.
type Reader struct {
	src   io.Reader
	buf   []byte
	chunk []byte
}

// NewReader returns a Reader consuming src.
func NewReader(src io.Reader) *Reader {
	return &Reader{
		src:   src,
		chunk: make([]byte, readChunkSize),
	}
}

// ReadNextMessage blocks until one complete message has been received and
// returns it classified.
func (r *Reader) ReadNextMessage() (Message, error) {
	raw, err := r.ReadRaw()
	if err != nil {
		return Message{}, err
	}
	return Classify(raw), nil
}

// ReadRaw is ReadNextMessage without classification.
func (r *Reader) ReadRaw() ([]byte, error) {
	for {
		msg, rest, err := Scan(r.buf)
		if msg != nil || err != nil {
			r.buf = append(r.buf[:0], rest...)
			return msg, err
		}

		n, err := r.src.Read(r.chunk)
		if n > 0 {
			r.buf = append(r.buf, r.chunk[:n]...)
			continue
		}
		if err == nil {
			return nil, fmt.Errorf("%w: no data", ErrTransportRead)
		}
		return nil, fmt.Errorf("%w: %w", ErrTransportRead, err)
	}
}

// Buffered returns the number of received bytes not yet returned as messages.
func (r *Reader) Buffered() int {
	return len(r.buf)
}

// Reset drops any partially received message.
func (r *Reader) Reset() {
	r.buf = r.buf[:0]
}

// WriteQuery frames an ASCII query and writes it to w.
func WriteQuery(w io.Writer, query string) error {
	frame := EncodeString(query)
	for len(frame) > 0 {
		n, err := w.Write(frame)
		if err != nil {
			return fmt.Errorf("write %q: %w", query, err)
		}
		frame = frame[n:]
	}
	return nil
}
