package walker

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solindex/soltrace/event"
	"github.com/solindex/soltrace/idl"
	"github.com/solindex/soltrace/pipeline"
	"github.com/solindex/soltrace/rpcclient"
	"github.com/solindex/soltrace/storage"
)

type fakeBackend struct {
	mu      sync.Mutex
	records map[string]storage.Record
}

func newFakeBackend() *fakeBackend { return &fakeBackend{records: map[string]storage.Record{}} }

func (f *fakeBackend) Init(ctx context.Context) error { return nil }

func (f *fakeBackend) Insert(ctx context.Context, r storage.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[r.EventID] = r
	return nil
}

func (f *fakeBackend) SelectBySlotRange(ctx context.Context, start, end uint64) ([]storage.Record, error) {
	return nil, nil
}

func (f *fakeBackend) SelectByName(ctx context.Context, name string) ([]storage.Record, error) {
	return nil, nil
}

func (f *fakeBackend) Exists(ctx context.Context, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[eventID]
	return ok, nil
}

func (f *fakeBackend) ExistsSignature(ctx context.Context, signature string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.Signature == signature {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBackend) Close(ctx context.Context) error { return nil }

func (f *fakeBackend) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type fakeHTTPClient struct {
	signatures map[string][]rpcclient.SignatureInfo
	txLogs     map[string][]string
	failFirstN int
	mu         sync.Mutex
	calls      int
}

func (f *fakeHTTPClient) GetAccountOwner(ctx context.Context, address string) (string, error) {
	return "owner", nil
}

func (f *fakeHTTPClient) GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]rpcclient.SignatureInfo, error) {
	return f.signatures[address], nil
}

func (f *fakeHTTPClient) GetTransaction(ctx context.Context, signature string) (rpcclient.Transaction, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if call <= f.failFirstN {
		return rpcclient.Transaction{}, fmt.Errorf("rate limit exceeded")
	}
	return rpcclient.Transaction{Slot: 1, Logs: f.txLogs[signature]}, nil
}

func buildRegistry(t *testing.T) (*idl.Registry, string) {
	t.Helper()
	addr := "Prog1111111111111111111111111111111111111"
	doc := []byte(fmt.Sprintf(`{
		"version": "0.1.0",
		"address": "%s",
		"events": [{"name": "Transfer", "fields": [{"name": "amount", "type": "u64"}]}]
	}`, addr))
	p, err := idl.ParseProgram(doc)
	require.NoError(t, err)
	reg := idl.NewRegistry()
	reg.Add(p)
	return reg, addr
}

func TestWalker_RunProcessesSignaturesAndDedups(t *testing.T) {
	reg, addr := buildRegistry(t)
	backend := newFakeBackend()
	p := &pipeline.Pipeline{Orchestrator: event.NewOrchestrator(reg), Storage: backend}

	rpc := &fakeHTTPClient{
		signatures: map[string][]rpcclient.SignatureInfo{
			addr: {
				{Signature: "sig1", Slot: 1},
				{Signature: "sig2", Slot: 1},
				{Signature: "sig1", Slot: 1}, // duplicate within the same program listing
			},
		},
		txLogs: map[string][]string{
			"sig1": {"Program " + addr + " invoke [1]", "Program " + addr + " success"},
			"sig2": {"Program " + addr + " invoke [1]", "Program " + addr + " success"},
		},
	}

	cfg := DefaultConfig()
	cfg.Concurrency = 2
	cfg.BatchDelay = 0
	w := New(rpc, p, cfg, nil)

	summaries, err := w.Run(context.Background(), []string{addr})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 3, summaries[0].SignaturesFetched)
	assert.Equal(t, 2, rpc.calls) // sig1's duplicate is skipped before any RPC call
}

func TestWalker_RetriesTransientFailures(t *testing.T) {
	reg, addr := buildRegistry(t)
	backend := newFakeBackend()
	p := &pipeline.Pipeline{Orchestrator: event.NewOrchestrator(reg), Storage: backend}

	rpc := &fakeHTTPClient{
		signatures: map[string][]rpcclient.SignatureInfo{
			addr: {{Signature: "sig1", Slot: 1}},
		},
		txLogs: map[string][]string{
			"sig1": {"Program " + addr + " invoke [1]", "Program " + addr + " success"},
		},
		failFirstN: 1,
	}

	cfg := DefaultConfig()
	cfg.BatchDelay = 0
	cfg.RetryBaseDelay = 0
	cfg.RetryMaxDelay = 0
	w := New(rpc, p, cfg, nil)

	summaries, err := w.Run(context.Background(), []string{addr})
	require.NoError(t, err)
	assert.Equal(t, 0, summaries[0].SignaturesFailed)
	assert.Equal(t, 2, rpc.calls) // one failure, one successful retry
}

func TestWalker_SkipsSignaturesAlreadyInStorage(t *testing.T) {
	reg, addr := buildRegistry(t)
	backend := newFakeBackend()
	backend.records["already-ingested"] = storage.Record{EventID: "already-ingested", Signature: "sig1"}
	p := &pipeline.Pipeline{Orchestrator: event.NewOrchestrator(reg), Storage: backend}

	rpc := &fakeHTTPClient{
		signatures: map[string][]rpcclient.SignatureInfo{
			addr: {{Signature: "sig1", Slot: 1}, {Signature: "sig2", Slot: 1}},
		},
		txLogs: map[string][]string{
			"sig2": {"Program " + addr + " invoke [1]", "Program " + addr + " success"},
		},
	}

	cfg := DefaultConfig()
	cfg.BatchDelay = 0
	w := New(rpc, p, cfg, nil)

	_, err := w.Run(context.Background(), []string{addr})
	require.NoError(t, err)
	assert.Equal(t, 1, rpc.calls, "sig1 is already in storage and must not be re-fetched")
}

func TestWalker_SkipsSignaturesReportedAsFailedOnChain(t *testing.T) {
	reg, addr := buildRegistry(t)
	backend := newFakeBackend()
	p := &pipeline.Pipeline{Orchestrator: event.NewOrchestrator(reg), Storage: backend}

	rpc := &fakeHTTPClient{
		signatures: map[string][]rpcclient.SignatureInfo{
			addr: {{Signature: "sig1", Slot: 1, Err: true}},
		},
	}

	cfg := DefaultConfig()
	cfg.BatchDelay = 0
	w := New(rpc, p, cfg, nil)

	_, err := w.Run(context.Background(), []string{addr})
	require.NoError(t, err)
	assert.Equal(t, 0, rpc.calls)
}
