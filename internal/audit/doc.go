// Package audit records every executed command.
//
// Logger appends one JSON line per command to audit.jsonl with size based
// rotation. Journal keeps the same entries in a SQLite table so recent
// history can be queried. Multi fans one entry out to several sinks.
package audit
