package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/plus-control/plusd/internal/config"
)

// Outcomes recorded in Entry.Outcome.
const (
	OutcomeSuccess = "SUCCESS"
	OutcomeFail    = "FAIL"
)

// Entry is one audited command.
type Entry struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"ts"`
	ClientID      uint      `json:"clientId"`
	CorrelationID uint32    `json:"correlationId"`
	Command       string    `json:"command"`
	Device        string    `json:"device,omitempty"`
	Outcome       string    `json:"outcome"`
	Code          string    `json:"code,omitempty"`
	LatencyMs     int64     `json:"latencyMs"`
	Message       string    `json:"message,omitempty"`
}

// Sink receives audit entries.
type Sink interface {
	LogCommand(ctx context.Context, e Entry)
}

// Logger writes entries as JSON lines to a rotating file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	out      *lumberjack.Logger
}

// NewLogger creates logDir if needed and opens audit.jsonl inside it.
func NewLogger(cfg config.AuditConfig) (*Logger, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	filePath := filepath.Join(cfg.Dir, "audit.jsonl")
	return &Logger{
		filePath: filePath,
		out: &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		},
	}, nil
}

// LogCommand appends one entry. Missing ids and timestamps are filled in.
func (l *Logger) LogCommand(_ context.Context, e Entry) {
	e = fill(e)

	data, err := json.Marshal(e)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal audit entry: %v\n", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return
	}
	if _, err := l.out.Write(append(data, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write audit entry: %v\n", err)
	}
}

// Rotate closes the current file and starts a new one, keeping the old one
// as a timestamped backup.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return fmt.Errorf("audit logger is closed")
	}
	return l.out.Rotate()
}

// Close closes the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return nil
	}
	err := l.out.Close()
	l.out = nil
	return err
}

// FilePath returns the path of the active audit file.
func (l *Logger) FilePath() string {
	return l.filePath
}

func fill(e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Outcome == "" {
		e.Outcome = OutcomeSuccess
	}
	return e
}
