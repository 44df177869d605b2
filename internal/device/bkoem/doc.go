// Package bkoem drives a BK ProFocus ultrasound scanner through its OEM
// interface.
//
// The scanner is reached over TCP or a serial line. Queries are ASCII strings
// framed by the oem package; replies, subscribed parameter updates, events and
// image frames arrive on the same link and are processed in order by whichever
// operation is reading. With continuous streaming the scanner pushes frames
// after Connect; otherwise each CaptureImage asks for a single PNG.
package bkoem
