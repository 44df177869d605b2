// Package oem implements the framing discipline of the scanner OEM link.
//
// Every message on the wire is wrapped as
//
//	SOH <escaped body> EOT
//
// where any body byte equal to SOH, EOT or ESC is sent as ESC followed by the
// bitwise complement of the byte. The pure functions in this package (Escape,
// Unescape, Encode, Decode, Scan, Classify, ParseImagePayload) work on byte
// slices and need no transport; Reader and the Port helpers bind them to a TCP
// connection or a serial line. A Reader must have a single owner.
package oem
