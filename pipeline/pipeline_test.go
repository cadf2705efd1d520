package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solindex/soltrace/event"
	"github.com/solindex/soltrace/idl"
	"github.com/solindex/soltrace/metrics"
	"github.com/solindex/soltrace/storage"
)

type fakeBackend struct {
	records map[string]storage.Record
}

func newFakeBackend() *fakeBackend { return &fakeBackend{records: map[string]storage.Record{}} }

func (f *fakeBackend) Init(ctx context.Context) error { return nil }

func (f *fakeBackend) Insert(ctx context.Context, r storage.Record) error {
	f.records[r.EventID] = r
	return nil
}

func (f *fakeBackend) SelectBySlotRange(ctx context.Context, start, end uint64) ([]storage.Record, error) {
	var out []storage.Record
	for _, r := range f.records {
		if r.Slot >= start && r.Slot <= end {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeBackend) SelectByName(ctx context.Context, name string) ([]storage.Record, error) {
	var out []storage.Record
	for _, r := range f.records {
		if r.EventName == name {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeBackend) Exists(ctx context.Context, eventID string) (bool, error) {
	_, ok := f.records[eventID]
	return ok, nil
}

func (f *fakeBackend) ExistsSignature(ctx context.Context, signature string) (bool, error) {
	for _, r := range f.records {
		if r.Signature == signature {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBackend) Close(ctx context.Context) error { return nil }

func buildProgram(t *testing.T) *idl.Program {
	t.Helper()
	doc := []byte(`{
		"version": "0.1.0",
		"address": "Prog1111111111111111111111111111111111111",
		"events": [{"name": "Transfer", "fields": [{"name": "amount", "type": "u64"}]}]
	}`)
	p, err := idl.ParseProgram(doc)
	require.NoError(t, err)
	return p
}

func transferFrameLog(t *testing.T) string {
	t.Helper()
	disc := idl.Discriminator("Transfer")
	payload := make([]byte, 16)
	copy(payload, disc[:])
	binary.LittleEndian.PutUint64(payload[8:], 777)
	return "Program data: " + base64.StdEncoding.EncodeToString(payload)
}

func TestPipeline_ProcessStoresNewEventAndSkipsDuplicate(t *testing.T) {
	program := buildProgram(t)
	reg := idl.NewRegistry()
	reg.Add(program)

	backend := newFakeBackend()
	m, _ := metrics.New()
	p := &Pipeline{
		Orchestrator: event.NewOrchestrator(reg),
		Storage:      backend,
		Metrics:      m,
	}

	logs := []string{
		"Program " + program.Address + " invoke [1]",
		transferFrameLog(t),
		"Program " + program.Address + " success",
	}

	stored, err := p.Process(context.Background(), 100, "sig1", logs, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, stored)
	assert.Len(t, backend.records, 1)

	// Re-processing the same transaction's logs must be a no-op: this is
	// the dedup invariant shared by the historical and live ingest paths.
	stored, err = p.Process(context.Background(), 100, "sig1", logs, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 0, stored)
	assert.Len(t, backend.records, 1)
}

func TestPipeline_ProcessDiscardsUnknownProgramWithoutStoring(t *testing.T) {
	reg := idl.NewRegistry()
	backend := newFakeBackend()
	m, _ := metrics.New()
	p := &Pipeline{
		Orchestrator: event.NewOrchestrator(reg),
		Storage:      backend,
		Metrics:      m,
	}

	logs := []string{
		"Program Unknown1111111111111111111111111111111 invoke [1]",
		transferFrameLog(t),
		"Program Unknown1111111111111111111111111111111 success",
	}

	stored, err := p.Process(context.Background(), 1, "sig2", logs, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 0, stored, "a DiscriminatorMismatch (here: unregistered program) must be discarded, not stored")
	assert.Empty(t, backend.records)
	assert.Equal(t, uint64(0), m.Snapshot().DecodeFailures)
}

func TestPipeline_ProcessStoresFallbackRecordOnDecodeFailure(t *testing.T) {
	program := buildProgram(t)
	reg := idl.NewRegistry()
	reg.Add(program)

	backend := newFakeBackend()
	m, _ := metrics.New()
	p := &Pipeline{
		Orchestrator: event.NewOrchestrator(reg),
		Storage:      backend,
		Metrics:      m,
	}

	disc := idl.Discriminator("Transfer")
	// Declares a u64 field (8 bytes) but only 4 trailing bytes are given,
	// so the decoder fails with a truncated-input error: the
	// declaration still resolved, so this must fall back, not discard.
	short := make([]byte, 8+4)
	copy(short, disc[:])
	log := "Program data: " + base64.StdEncoding.EncodeToString(short)

	logs := []string{
		"Program " + program.Address + " invoke [1]",
		log,
		"Program " + program.Address + " success",
	}

	stored, err := p.Process(context.Background(), 1, "sig-fallback", logs, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, stored)
	assert.Equal(t, uint64(1), m.Snapshot().DecodeFailures)
}

func TestPipeline_ProcessNoFramesIsStillCountedAsATransaction(t *testing.T) {
	reg := idl.NewRegistry()
	backend := newFakeBackend()
	m, _ := metrics.New()
	p := &Pipeline{Orchestrator: event.NewOrchestrator(reg), Storage: backend, Metrics: m}

	stored, err := p.Process(context.Background(), 1, "sig3", []string{"no frames here"}, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 0, stored)
	assert.Equal(t, uint64(1), m.Snapshot().TransactionsTotal)
}
