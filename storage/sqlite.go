package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/solindex/soltrace/document"
)

type sqliteBackend struct {
	db *sql.DB
}

func newSQLiteBackend(databaseURL string) (*sqliteBackend, error) {
	path := strings.TrimPrefix(databaseURL, "sqlite:")
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage(sqlite): creating database directory %q: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage(sqlite): opening %q: %w", path, err)
	}
	return &sqliteBackend{db: db}, nil
}

func (s *sqliteBackend) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			slot INTEGER NOT NULL,
			signature TEXT NOT NULL,
			program_id TEXT NOT NULL,
			event_name TEXT NOT NULL,
			discriminator TEXT NOT NULL,
			data TEXT NOT NULL,
			timestamp TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_slot ON events(slot);
		CREATE INDEX IF NOT EXISTS idx_events_event_name ON events(event_name);
		CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
		CREATE INDEX IF NOT EXISTS idx_events_signature ON events(signature);
	`)
	if err != nil {
		return fmt.Errorf("storage(sqlite): running migrations: %w", err)
	}
	return nil
}

func (s *sqliteBackend) Insert(ctx context.Context, r Record) error {
	data, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Errorf("storage(sqlite): marshaling event data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO events (id, slot, signature, program_id, event_name, discriminator, data, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.EventID, r.Slot, r.Signature, r.ProgramID, r.EventName, r.Discriminator, string(data), r.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("storage(sqlite): inserting event %q: %w", r.EventID, err)
	}
	return nil
}

func (s *sqliteBackend) SelectBySlotRange(ctx context.Context, startSlot, endSlot uint64) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, slot, signature, program_id, event_name, discriminator, data, timestamp
		FROM events WHERE slot >= ? AND slot <= ? ORDER BY slot ASC
	`, startSlot, endSlot)
	if err != nil {
		return nil, fmt.Errorf("storage(sqlite): querying slot range: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func (s *sqliteBackend) SelectByName(ctx context.Context, eventName string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, slot, signature, program_id, event_name, discriminator, data, timestamp
		FROM events WHERE event_name = ? ORDER BY slot DESC
	`, eventName)
	if err != nil {
		return nil, fmt.Errorf("storage(sqlite): querying by name: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func (s *sqliteBackend) Exists(ctx context.Context, eventID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE id = ?`, eventID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("storage(sqlite): checking existence of %q: %w", eventID, err)
	}
	return count > 0, nil
}

func (s *sqliteBackend) ExistsSignature(ctx context.Context, signature string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE signature = ?`, signature).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("storage(sqlite): checking existence of signature %q: %w", signature, err)
	}
	return count > 0, nil
}

func (s *sqliteBackend) Close(ctx context.Context) error {
	return s.db.Close()
}

func scanRows(rows *sql.Rows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var r Record
		var rawData, ts string
		if err := rows.Scan(&r.EventID, &r.Slot, &r.Signature, &r.ProgramID, &r.EventName, &r.Discriminator, &rawData, &ts); err != nil {
			return nil, fmt.Errorf("storage(sqlite): scanning row: %w", err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("storage(sqlite): parsing timestamp %q: %w", ts, err)
		}
		r.Timestamp = parsed
		dataValue, err := document.Parse([]byte(rawData))
		if err != nil {
			return nil, fmt.Errorf("storage(sqlite): parsing stored event data: %w", err)
		}
		r.Data = dataValue
		out = append(out, r)
	}
	return out, rows.Err()
}
