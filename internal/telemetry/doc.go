// Package telemetry distributes device and command events inside the process.
//
// Events are numbered per device and kept in a bounded ring per device so a
// subscriber that knows the last id it saw can resume without gaps, as long
// as the gap fits in the ring.
package telemetry
