// Package event turns an extractor.Frame into a decoded event and, from
// there, a canonical storage record.
package event

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	sha256 "github.com/minio/sha256-simd"

	"github.com/solindex/soltrace/decoder"
	"github.com/solindex/soltrace/document"
	"github.com/solindex/soltrace/idl"
)

// DecodedEvent is the result of matching a frame's discriminator against a
// program's IDL and decoding its payload. It is only produced once a
// discriminator has matched a declaration; see Decode's second return
// value for the discard case.
type DecodedEvent struct {
	EventName     string
	Data          document.Value
	Discriminator [8]byte
	// Decoded is false when the event's declaration resolved but the typed
	// decode itself failed; Data then holds a fallback representation
	// instead of the typed decode result.
	Decoded bool
	// DecodeError carries the reason decoding fell back, for logging.
	DecodeError error
}

// Orchestrator resolves discriminators against a registry and performs the
// typed decode. An unregistered program or an unmatched discriminator is
// discarded outright; only a typed decode failure on an otherwise-resolved
// declaration falls back to a raw representation.
type Orchestrator struct {
	registry *idl.Registry
}

func NewOrchestrator(registry *idl.Registry) *Orchestrator {
	return &Orchestrator{registry: registry}
}

// Decode attempts to resolve and decode a frame's payload. The second
// return value is false when the frame carries no resolvable event at
// all — too short to hold a discriminator, an unregistered program, or a
// discriminator with no matching declaration (a DiscriminatorMismatch) —
// in which case the caller must discard the frame rather than persist
// anything for it. Once a declaration has been resolved, Decode always
// returns true: a decode error still yields a DecodedEvent, with
// Decoded=false and Data holding a hex fallback, rather than discarding
// a known event type.
func (o *Orchestrator) Decode(programID string, data []byte) (DecodedEvent, bool) {
	if len(data) < 8 {
		return DecodedEvent{}, false
	}

	var disc [8]byte
	copy(disc[:], data[:8])
	payload := data[8:]

	program, ok := o.registry.Get(programID)
	if !ok {
		return DecodedEvent{}, false
	}

	decl, ok := program.EventByDiscriminator(disc)
	if !ok {
		return DecodedEvent{}, false
	}

	decoded, err := decoder.Decode(program, decl.Fields, payload)
	if err != nil {
		decodeErr := fmt.Errorf("decoding event %q: %w", decl.Name, err)
		return DecodedEvent{
			EventName:     decl.Name,
			Data:          hexFallbackValue(payload, decl.Name, len(decl.Fields), decodeErr),
			Discriminator: disc,
			Decoded:       false,
			DecodeError:   decodeErr,
		}, true
	}

	return DecodedEvent{
		EventName:     decl.Name,
		Data:          decoded,
		Discriminator: disc,
		Decoded:       true,
	}, true
}

// hexFallbackValue builds the fallback object for an event whose
// declaration resolved but whose typed decode failed: the undiscriminated
// payload as uppercase hex, alongside enough context to debug the
// mismatch between the declared fields and the bytes actually received.
func hexFallbackValue(payload []byte, eventName string, fieldCount int, decodeErr error) document.Value {
	return document.Object([]document.Field{
		{Name: "hex", Value: document.String(strings.ToUpper(hex.EncodeToString(payload)))},
		{Name: "length", Value: document.NumberFromInt64(int64(len(payload)))},
		{Name: "decode_error", Value: document.String(decodeErr.Error())},
		{Name: "event_name", Value: document.String(eventName)},
		{Name: "field_count", Value: document.NumberFromInt64(int64(fieldCount))},
		{Name: "timestamp", Value: document.String(time.Now().UTC().Format(time.RFC3339Nano))},
	})
}

// Record is the canonical, storage-ready form of one decoded event.
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

// NewRecord assembles a canonical Record from a decoded event and its
// transaction context. event_id is content-addressed:
// sha256(f"{signature}_{logIndex}_{eventName}"), matching the
// insert-if-absent convention storage relies on for idempotent dedup
// across the historical and live ingest paths.
func NewRecord(slot uint64, signature, programID string, logIndex int, ev DecodedEvent, timestamp time.Time) Record {
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	preimage := fmt.Sprintf("%s_%d_%s", signature, logIndex, ev.EventName)
	sum := sha256.Sum256([]byte(preimage))

	return Record{
		EventID:       hex.EncodeToString(sum[:]),
		Slot:          slot,
		Signature:     signature,
		ProgramID:     programID,
		EventName:     ev.EventName,
		Data:          ev.Data,
		Discriminator: hex.EncodeToString(ev.Discriminator[:]),
		Timestamp:     timestamp,
	}
}
