// Package command implements the asynchronous command dispatch engine.
//
// Command text arrives as an XML <Command> element together with a command
// name. The Registry turns it into a typed, configured Command by cloning a
// registered prototype. The Processor queues commands and executes them one
// at a time on a single worker goroutine; each command's responses are moved
// to the response queue in execution order, where callers drain them.
//
// Failures never stop the worker. A command that fails, or panics, still
// produces a failure response, is audited and is published as a telemetry
// event.
package command
