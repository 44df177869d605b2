package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/plus-control/plusd/internal/monitoring"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS command_journal (
	id             TEXT PRIMARY KEY,
	ts             INTEGER NOT NULL,
	client_id      INTEGER NOT NULL,
	correlation_id INTEGER NOT NULL,
	command        TEXT NOT NULL,
	device         TEXT NOT NULL DEFAULT '',
	outcome        TEXT NOT NULL,
	code           TEXT NOT NULL DEFAULT '',
	latency_ms     INTEGER NOT NULL,
	message        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_command_journal_ts ON command_journal(ts);
`

// Journal stores entries in SQLite.
type Journal struct {
	db *sql.DB
}

// OpenJournal opens or creates the journal database at path.
func OpenJournal(path string) (*Journal, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(context.Background(), journalSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// openDB opens a SQLite database with WAL journaling and a 5 second busy timeout.
func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	ctx := context.Background()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode on %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout on %s: %w", path, err)
	}

	return db, nil
}

// LogCommand inserts one entry. Write failures are logged and dropped.
func (j *Journal) LogCommand(ctx context.Context, e Entry) {
	if err := j.Insert(ctx, e); err != nil {
		monitoring.Logf("audit: journal insert failed: %v", err)
	}
}

// Insert stores one entry.
func (j *Journal) Insert(ctx context.Context, e Entry) error {
	e = fill(e)
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO command_journal
			(id, ts, client_id, correlation_id, command, device, outcome, code, latency_ms, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.UnixNano(), int64(e.ClientID), int64(e.CorrelationID),
		e.Command, e.Device, e.Outcome, e.Code, e.LatencyMs, e.Message)
	if err != nil {
		return fmt.Errorf("insert journal entry %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, ts, client_id, correlation_id, command, device, outcome, code, latency_ms, message
		FROM command_journal
		ORDER BY ts DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e             Entry
			ts            int64
			clientID      int64
			correlationID int64
		)
		if err := rows.Scan(&e.ID, &ts, &clientID, &correlationID, &e.Command, &e.Device,
			&e.Outcome, &e.Code, &e.LatencyMs, &e.Message); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		e.Timestamp = time.Unix(0, ts).UTC()
		e.ClientID = uint(clientID)
		e.CorrelationID = uint32(correlationID)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
