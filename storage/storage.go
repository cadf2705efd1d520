// Package storage persists canonical event records behind a pluggable
// backend selected by the database URL's scheme.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/solindex/soltrace/document"
)

// Record mirrors event.Record's shape without importing the event package,
// keeping storage decoupled from the decode pipeline.
type Record struct {
	EventID       string
	Slot          uint64
	Signature     string
	ProgramID     string
	EventName     string
	Data          document.Value
	Discriminator string
	Timestamp     time.Time
}

// Backend is the persistence contract every concrete storage
// implementation satisfies. Insert is insert-if-absent: a Record whose
// EventID already exists is silently ignored, which is what makes ingest
// idempotent across the historical walker and the live subscriber. Exists
// and ExistsSignature serve two different checks: Exists is the per-event
// idempotency check Insert itself also makes; ExistsSignature is a
// cheaper, coarser presence check the historical walker uses to skip a
// transaction signature that was already fully ingested in a prior run,
// without decoding it again first.
type Backend interface {
	Init(ctx context.Context) error
	Insert(ctx context.Context, r Record) error
	SelectBySlotRange(ctx context.Context, startSlot, endSlot uint64) ([]Record, error)
	SelectByName(ctx context.Context, eventName string) ([]Record, error)
	Exists(ctx context.Context, eventID string) (bool, error)
	ExistsSignature(ctx context.Context, signature string) (bool, error)
	Close(ctx context.Context) error
}

// Open dispatches on the database URL's scheme to construct the matching
// backend, runs its migrations, and returns it ready to use.
func Open(ctx context.Context, databaseURL string) (Backend, error) {
	var backend Backend
	var err error

	switch {
	case strings.HasPrefix(databaseURL, "sqlite:"):
		backend, err = newSQLiteBackend(databaseURL)
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		backend, err = newPostgresBackend(ctx, databaseURL)
	case strings.HasPrefix(databaseURL, "mongodb://"), strings.HasPrefix(databaseURL, "mongodb+srv://"):
		backend, err = newMongoBackend(ctx, databaseURL)
	default:
		return nil, fmt.Errorf("storage: unsupported database URL scheme (expected sqlite:, postgres://, postgresql://, mongodb://, or mongodb+srv://): %s", databaseURL)
	}
	if err != nil {
		return nil, err
	}

	if err := backend.Init(ctx); err != nil {
		return nil, fmt.Errorf("storage: running migrations: %w", err)
	}
	return backend, nil
}
