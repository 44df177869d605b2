package oem

import (
	"bytes"
	"errors"
	"fmt"
)

// Framing control bytes.
const (
	SOH byte = 0x01
	EOT byte = 0x04
	ESC byte = 0x1B
)

var (
	// ErrBadEscape indicates an ESC byte with nothing after it.
	ErrBadEscape = errors.New("BAD_ESCAPE")

	// ErrBadFrame indicates a buffer that is not a single SOH..EOT frame.
	ErrBadFrame = errors.New("BAD_FRAME")
)

func isControl(b byte) bool {
	return b == SOH || b == EOT || b == ESC
}

// Escape encodes every control byte in body as ESC followed by its complement.
func Escape(body []byte) []byte {
	out := make([]byte, 0, len(body)+8)
	for _, b := range body {
		if isControl(b) {
			out = append(out, ESC, ^b)
			continue
		}
		out = append(out, b)
	}
	return out
}

// Unescape reverses Escape. An ESC consumes the following byte and emits its
// complement.
func Unescape(body []byte) ([]byte, error) {
	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		if body[i] != ESC {
			out = append(out, body[i])
			continue
		}
		i++
		if i == len(body) {
			return nil, fmt.Errorf("%w: at offset %d", ErrBadEscape, i-1)
		}
		out = append(out, ^body[i])
	}
	return out, nil
}

// Encode wraps body into a complete wire frame.
func Encode(body []byte) []byte {
	escaped := Escape(body)
	frame := make([]byte, 0, len(escaped)+2)
	frame = append(frame, SOH)
	frame = append(frame, escaped...)
	return append(frame, EOT)
}

// EncodeString is Encode for ASCII queries such as "QUERY:B_GAIN:A;".
func EncodeString(query string) []byte {
	return Encode([]byte(query))
}

// Decode strips the SOH and EOT markers from a complete frame and unescapes
// the body.
func Decode(frame []byte) ([]byte, error) {
	if len(frame) < 2 || frame[0] != SOH || frame[len(frame)-1] != EOT {
		return nil, ErrBadFrame
	}
	return Unescape(frame[1 : len(frame)-1])
}

// Scan extracts the first complete message from buf. It returns the decoded
// body and the bytes following the frame. When buf holds no EOT yet, msg is
// nil and rest is buf unchanged, so callers can append more input and retry.
// Bytes preceding the SOH marker are discarded. An EOT with no SOH before it
// yields ErrBadFrame and rest starts after that EOT.
func Scan(buf []byte) (msg []byte, rest []byte, err error) {
	end := bytes.IndexByte(buf, EOT)
	if end < 0 {
		return nil, buf, nil
	}

	frame := buf[:end]
	start := bytes.LastIndexByte(frame, SOH)
	if start < 0 {
		return nil, buf[end+1:], fmt.Errorf("%w: EOT without SOH", ErrBadFrame)
	}

	msg, err = Unescape(frame[start+1:])
	return msg, buf[end+1:], err
}
