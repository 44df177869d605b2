package oem

import (
	"bytes"
	"strings"
)

// Message classes seen on the OEM link.
const (
	ClassData  = "DATA"
	ClassSData = "SDATA"
	ClassEvent = "EVENT"
	ClassAck   = "ACK"
)

// Message is one decoded OEM message with its header split into parts.
type Message struct {
	// Raw is the decoded message, markers removed and escapes resolved
	Raw []byte

	// Header is the first space-delimited token, e.g. "DATA:B_GAIN:A"
	Header string

	Class   string
	Name    string
	Subtype string

	// Body holds the bytes after the header separator, unmodified
	Body []byte
}

// Classify splits a decoded message into header and body and the header into
// class, name and subtype. A trailing ';' is not part of the header.
func Classify(decoded []byte) Message {
	msg := Message{Raw: decoded}

	header := decoded
	if i := bytes.IndexByte(decoded, ' '); i >= 0 {
		header = decoded[:i]
		msg.Body = decoded[i+1:]
	}
	msg.Header = strings.TrimSuffix(string(header), ";")

	parts := strings.SplitN(msg.Header, ":", 3)
	msg.Class = parts[0]
	if len(parts) > 1 {
		msg.Name = parts[1]
	}
	if len(parts) > 2 {
		msg.Subtype = parts[2]
	}
	return msg
}

// IsData reports whether the message answers a query or carries subscribed data.
func (m Message) IsData() bool {
	return m.Class == ClassData || m.Class == ClassSData
}

// Fields returns the comma-separated body fields with the terminating ';'
// removed. Quoted values keep their quotes.
func (m Message) Fields() []string {
	body := strings.TrimSpace(string(m.Body))
	body = strings.TrimSuffix(body, ";")
	if body == "" {
		return nil
	}
	fields := strings.Split(body, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

// String returns the header for logging; image bodies are never printed.
func (m Message) String() string {
	return m.Header
}

// Unquote removes one pair of surrounding double quotes.
func Unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
