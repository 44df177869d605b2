package oem

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// TimestampSize is the length of the timestamp that prefixes streamed frames.
const TimestampSize = 4

// ErrMalformedImage indicates an image reply whose length prefix is unusable.
var ErrMalformedImage = errors.New("MALFORMED_IMAGE")

// ImagePayload locates the binary payload of an image reply.
type ImagePayload struct {
	// Offset of the first payload byte within the message
	Offset int

	// Length announced by the length prefix
	Length int

	Data []byte
}

// ParseImagePayload reads the "#<n><n digits><payload>" length prefix that
// follows the header of DATA:CAPTURE_IMAGE and DATA:GRAB_FRAME replies. The
// prefix is parsed positionally: one digit giving the number of length digits,
// then the length itself.
func ParseImagePayload(msg []byte) (ImagePayload, error) {
	pos := bytes.IndexByte(msg, '#')
	if pos < 0 {
		return ImagePayload{}, fmt.Errorf("%w: no length marker", ErrMalformedImage)
	}
	pos++

	if pos >= len(msg) || !isDigit(msg[pos]) {
		return ImagePayload{}, fmt.Errorf("%w: missing digit count", ErrMalformedImage)
	}
	numDigits := int(msg[pos] - '0')
	pos++
	if numDigits == 0 {
		return ImagePayload{}, fmt.Errorf("%w: zero digit count", ErrMalformedImage)
	}

	if pos+numDigits > len(msg) {
		return ImagePayload{}, fmt.Errorf("%w: length field truncated", ErrMalformedImage)
	}
	length := 0
	for _, c := range msg[pos : pos+numDigits] {
		if !isDigit(c) {
			return ImagePayload{}, fmt.Errorf("%w: non-digit %q in length", ErrMalformedImage, c)
		}
		length = length*10 + int(c-'0')
	}
	pos += numDigits

	if pos+length > len(msg) {
		return ImagePayload{}, fmt.Errorf("%w: payload has %d of %d bytes", ErrMalformedImage, len(msg)-pos, length)
	}

	return ImagePayload{
		Offset: pos,
		Length: length,
		Data:   msg[pos : pos+length],
	}, nil
}

// SplitTimestamp separates the timestamp of a streamed frame from its pixels.
func (p ImagePayload) SplitTimestamp() (uint32, []byte, error) {
	if len(p.Data) < TimestampSize {
		return 0, nil, fmt.Errorf("%w: frame shorter than timestamp", ErrMalformedImage)
	}
	return binary.LittleEndian.Uint32(p.Data[:TimestampSize]), p.Data[TimestampSize:], nil
}

// AppendImagePayload appends a "#<n><length><data>" block to dst.
func AppendImagePayload(dst, data []byte) []byte {
	length := fmt.Sprintf("%d", len(data))
	dst = append(dst, '#', byte('0'+len(length)))
	dst = append(dst, length...)
	return append(dst, data...)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
