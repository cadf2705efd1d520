package storage

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solindex/soltrace/document"
)

type postgresBackend struct {
	pool *pgxpool.Pool
}

func newPostgresBackend(ctx context.Context, databaseURL string) (*postgresBackend, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("storage(postgres): connecting: %w", err)
	}
	return &postgresBackend{pool: pool}, nil
}

func (p *postgresBackend) Init(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			slot BIGINT NOT NULL,
			signature TEXT NOT NULL,
			program_id TEXT NOT NULL,
			event_name TEXT NOT NULL,
			discriminator TEXT NOT NULL,
			data JSONB NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_slot ON events(slot);
		CREATE INDEX IF NOT EXISTS idx_events_event_name ON events(event_name);
		CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
		CREATE INDEX IF NOT EXISTS idx_events_signature ON events(signature);
	`)
	if err != nil {
		return fmt.Errorf("storage(postgres): running migrations: %w", err)
	}
	return nil
}

func (p *postgresBackend) Insert(ctx context.Context, r Record) error {
	data, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Errorf("storage(postgres): marshaling event data: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO events (id, slot, signature, program_id, event_name, discriminator, data, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, r.EventID, int64(r.Slot), r.Signature, r.ProgramID, r.EventName, r.Discriminator, data, r.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("storage(postgres): inserting event %q: %w", r.EventID, err)
	}
	return nil
}

func (p *postgresBackend) SelectBySlotRange(ctx context.Context, startSlot, endSlot uint64) ([]Record, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, slot, signature, program_id, event_name, discriminator, data, timestamp
		FROM events WHERE slot >= $1 AND slot <= $2 ORDER BY slot ASC
	`, int64(startSlot), int64(endSlot))
	if err != nil {
		return nil, fmt.Errorf("storage(postgres): querying slot range: %w", err)
	}
	defer rows.Close()
	return scanPgxRows(rows)
}

func (p *postgresBackend) SelectByName(ctx context.Context, eventName string) ([]Record, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, slot, signature, program_id, event_name, discriminator, data, timestamp
		FROM events WHERE event_name = $1 ORDER BY slot DESC
	`, eventName)
	if err != nil {
		return nil, fmt.Errorf("storage(postgres): querying by name: %w", err)
	}
	defer rows.Close()
	return scanPgxRows(rows)
}

func (p *postgresBackend) Exists(ctx context.Context, eventID string) (bool, error) {
	var count int
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM events WHERE id = $1`, eventID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("storage(postgres): checking existence of %q: %w", eventID, err)
	}
	return count > 0, nil
}

func (p *postgresBackend) ExistsSignature(ctx context.Context, signature string) (bool, error) {
	var count int
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM events WHERE signature = $1`, signature).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("storage(postgres): checking existence of signature %q: %w", signature, err)
	}
	return count > 0, nil
}

func (p *postgresBackend) Close(ctx context.Context) error {
	p.pool.Close()
	return nil
}

// pgxRows is the subset of pgx.Rows used by scanPgxRows, narrowed for
// testability.
type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanPgxRows(rows pgxRows) ([]Record, error) {
	var out []Record
	for rows.Next() {
		var r Record
		var slot int64
		var rawData []byte
		if err := rows.Scan(&r.EventID, &slot, &r.Signature, &r.ProgramID, &r.EventName, &r.Discriminator, &rawData, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("storage(postgres): scanning row: %w", err)
		}
		r.Slot = uint64(slot)
		dataValue, err := document.Parse(rawData)
		if err != nil {
			return nil, fmt.Errorf("storage(postgres): parsing stored event data: %w", err)
		}
		r.Data = dataValue
		out = append(out, r)
	}
	return out, rows.Err()
}
