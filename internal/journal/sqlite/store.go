// Package sqlite provides the SQLite-backed journal store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lyricsflip/lyricsflip-go/internal/journal"
	"github.com/lyricsflip/lyricsflip-go/internal/journal/sqlite/migrations"
	"github.com/lyricsflip/lyricsflip-go/internal/platform/storage/sqlitemigrate"
)

// Store persists journal events in a local SQLite database.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a journal store and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// AppendEvent persists one journal event, assigning the next sequence number
// within the round.
func (s *Store) AppendEvent(ctx context.Context, evt journal.Event) (journal.Event, error) {
	if err := ctx.Err(); err != nil {
		return journal.Event{}, err
	}
	if s == nil || s.sqlDB == nil {
		return journal.Event{}, fmt.Errorf("storage is not configured")
	}
	evt.RoundID = strings.TrimSpace(evt.RoundID)
	evt.Type = strings.TrimSpace(evt.Type)
	if evt.RoundID == "" {
		return journal.Event{}, fmt.Errorf("round id is required")
	}
	if evt.Type == "" {
		return journal.Event{}, fmt.Errorf("event type is required")
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return journal.Event{}, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var lastSeq sql.NullInt64
	row := tx.QueryRowContext(ctx, `SELECT MAX(seq) FROM journal_events WHERE round_id = ?`, evt.RoundID)
	if err := row.Scan(&lastSeq); err != nil {
		return journal.Event{}, fmt.Errorf("read last seq: %w", err)
	}
	evt.Seq = uint64(lastSeq.Int64) + 1

	_, err = tx.ExecContext(ctx, `
INSERT INTO journal_events (round_id, seq, timestamp, event_type, actor, entity_id, payload_json)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		evt.RoundID, evt.Seq, evt.Timestamp.UTC().Unix(), evt.Type, evt.Actor, evt.EntityID, evt.PayloadJSON)
	if err != nil {
		return journal.Event{}, fmt.Errorf("insert journal event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return journal.Event{}, fmt.Errorf("commit append: %w", err)
	}
	return evt, nil
}

// ListEvents returns up to limit events for a round with seq > afterSeq, in
// sequence order.
func (s *Store) ListEvents(ctx context.Context, roundID string, afterSeq uint64, limit int) ([]journal.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT round_id, seq, timestamp, event_type, actor, entity_id, payload_json
FROM journal_events
WHERE round_id = ? AND seq > ?
ORDER BY seq ASC
LIMIT ?`, roundID, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []journal.Event
	for rows.Next() {
		var evt journal.Event
		var ts int64
		if err := rows.Scan(&evt.RoundID, &evt.Seq, &ts, &evt.Type, &evt.Actor, &evt.EntityID, &evt.PayloadJSON); err != nil {
			return nil, fmt.Errorf("scan journal event: %w", err)
		}
		evt.Timestamp = time.Unix(ts, 0).UTC()
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal events: %w", err)
	}
	return events, nil
}
