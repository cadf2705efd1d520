// Package pipeline assembles the extractor -> orchestrator -> storage glue
// shared by the historical walker and the live subscriber; they differ
// only in where their log sequences come from and how they're scheduled,
// not in how a transaction's logs become stored records.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/solindex/soltrace/event"
	"github.com/solindex/soltrace/extractor"
	"github.com/solindex/soltrace/metrics"
	"github.com/solindex/soltrace/storage"
)

// Pipeline wires a decode orchestrator to a storage backend, optionally
// recording metrics and debug-logging for every stage.
type Pipeline struct {
	Orchestrator *event.Orchestrator
	Storage      storage.Backend
	Metrics      *metrics.Metrics // nil is valid: metrics are optional
	Logger       *zap.Logger      // nil is valid: logging is optional
}

// Process extracts every Program-data frame from logs, decodes each one
// against the given program set, assembles a canonical record, and inserts
// it. A frame whose discriminator has no match (DiscriminatorMismatch) is
// discarded outright and never reaches storage. It returns the number of
// newly-stored records (duplicates already present in storage are not
// counted, matching the dedup invariant shared by both ingest paths).
func (p *Pipeline) Process(ctx context.Context, slot uint64, signature string, logs []string, timestamp time.Time) (int, error) {
	frames := extractor.Extract(logs)

	stored := 0
	for _, frame := range frames {
		decoded, ok := p.Orchestrator.Decode(frame.ProgramID, frame.Data)
		if !ok {
			p.debugLog("discriminator mismatch, discarding frame", frame.ProgramID, signature, frame.LogIndex)
			continue
		}
		if !decoded.Decoded {
			p.recordDecodeFailure()
		}

		record := event.NewRecord(slot, signature, frame.ProgramID, frame.LogIndex, decoded, timestamp)
		storageRecord := storage.Record{
			EventID:       record.EventID,
			Slot:          record.Slot,
			Signature:     record.Signature,
			ProgramID:     record.ProgramID,
			EventName:     record.EventName,
			Data:          record.Data,
			Discriminator: record.Discriminator,
			Timestamp:     record.Timestamp,
		}

		exists, err := p.Storage.Exists(ctx, record.EventID)
		if err != nil {
			p.recordInsert(true, false)
			return stored, fmt.Errorf("pipeline: checking existence of %q: %w", record.EventID, err)
		}
		if exists {
			p.recordInsert(true, true)
			continue
		}

		if err := p.Storage.Insert(ctx, storageRecord); err != nil {
			p.recordInsert(true, false)
			return stored, fmt.Errorf("pipeline: inserting event %q: %w", record.EventID, err)
		}

		p.recordInsert(false, false)
		p.recordEvent(frame.ProgramID, decoded.EventName)
		stored++
	}

	p.recordTransaction(false)
	return stored, nil
}

func (p *Pipeline) debugLog(msg, programID, signature string, logIndex int) {
	if p.Logger != nil {
		p.Logger.Debug(msg,
			zap.String("program_id", programID),
			zap.String("signature", signature),
			zap.Int("log_index", logIndex))
	}
}

func (p *Pipeline) recordEvent(programID, eventName string) {
	if p.Metrics != nil {
		p.Metrics.RecordEvent(programID, eventName)
	}
}

func (p *Pipeline) recordTransaction(failed bool) {
	if p.Metrics != nil {
		p.Metrics.RecordTransaction(failed)
	}
}

func (p *Pipeline) recordInsert(failed, duplicate bool) {
	if p.Metrics != nil {
		p.Metrics.RecordDBInsert(failed, duplicate)
	}
}

func (p *Pipeline) recordDecodeFailure() {
	if p.Metrics != nil {
		p.Metrics.RecordDecodeFailure()
	}
}
