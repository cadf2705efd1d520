package subscriber

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"sync"
	"testing"
	"time"

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

type fakeSubscription struct {
	ch chan rpcclient.LogsNotification
}

func (f *fakeSubscription) Notifications() <-chan rpcclient.LogsNotification { return f.ch }
func (f *fakeSubscription) Close() error                                    { close(f.ch); return nil }

// fakeWSClient's Dial always succeeds. On the first connection it
// simulates a drop by closing every subscription's channel after its
// fixture notifications are drained. Later connections (the reconnect)
// keep the stream open until the context is canceled.
type fakeWSClient struct {
	mu         sync.Mutex
	dials      int
	fixtures   map[string][]rpcclient.LogsNotification
	subscribed []string
}

func (f *fakeWSClient) Dial(ctx context.Context) error {
	f.mu.Lock()
	f.dials++
	f.mu.Unlock()
	return nil
}

func (f *fakeWSClient) LogsSubscribe(ctx context.Context, programID, commitment string) (rpcclient.Subscription, error) {
	f.mu.Lock()
	f.subscribed = append(f.subscribed, programID)
	dial := f.dials
	f.mu.Unlock()

	ch := make(chan rpcclient.LogsNotification, 10)
	for _, n := range f.fixtures[programID] {
		ch <- n
	}
	if dial == 1 {
		// First connection: after delivering fixtures, simulate a drop.
		close(ch)
	}
	// Later connections stay open (simulated by leaving ch unclosed); the
	// test cancels the context to end the run instead of waiting forever.
	return &fakeSubscription{ch: ch}, nil
}

func (f *fakeWSClient) Close() error { return nil }

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

func transferLogs(t *testing.T, programID string) []string {
	t.Helper()
	disc := idl.Discriminator("Transfer")
	payload := make([]byte, 16)
	copy(payload, disc[:])
	binary.LittleEndian.PutUint64(payload[8:], 42)
	data := "Program data: " + base64.StdEncoding.EncodeToString(payload)
	return []string{
		"Program " + programID + " invoke [1]",
		data,
		"Program " + programID + " success",
	}
}

func TestSubscriber_ProcessesNotificationsAndReconnects(t *testing.T) {
	reg, addr := buildRegistry(t)
	backend := newFakeBackend()
	p := &pipeline.Pipeline{Orchestrator: event.NewOrchestrator(reg), Storage: backend}

	ws := &fakeWSClient{
		fixtures: map[string][]rpcclient.LogsNotification{
			addr: {
				{Signature: "sig1", Logs: transferLogs(t, addr)},
			},
		},
	}

	cfg := DefaultConfig()
	cfg.ReconnectBase = time.Millisecond
	cfg.ReconnectMax = 5 * time.Millisecond

	var reconnects int
	var mu sync.Mutex
	s := New(ws, p, cfg, func(attempt int, delay time.Duration) {
		mu.Lock()
		reconnects++
		mu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := s.Run(ctx, []string{addr})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, 1, backend.count())
	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, reconnects, 1)
	assert.GreaterOrEqual(t, ws.dials, 2)
}

func TestSubscriber_SkipsNotificationsMarkedAsFailedOnChain(t *testing.T) {
	reg, addr := buildRegistry(t)
	backend := newFakeBackend()
	p := &pipeline.Pipeline{Orchestrator: event.NewOrchestrator(reg), Storage: backend}

	ws := &fakeWSClient{
		fixtures: map[string][]rpcclient.LogsNotification{
			addr: {
				{Signature: "sig1", Err: true, Logs: transferLogs(t, addr)},
			},
		},
	}

	cfg := DefaultConfig()
	cfg.ReconnectBase = time.Millisecond
	cfg.ReconnectMax = 5 * time.Millisecond
	s := New(ws, p, cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_ = s.Run(ctx, []string{addr})
	assert.Equal(t, 0, backend.count())
}

func TestReconnectDelay_CapsAtMax(t *testing.T) {
	base := 5 * time.Second
	max := 15 * time.Minute

	assert.Equal(t, base, reconnectDelay(base, max, 0, 10))
	assert.Equal(t, 2*base, reconnectDelay(base, max, 1, 10))
	assert.Equal(t, max, reconnectDelay(base, max, 30, 10))
}

func TestMerge_ClosesWhenAllSubscriptionsClose(t *testing.T) {
	ch1 := make(chan rpcclient.LogsNotification, 1)
	ch2 := make(chan rpcclient.LogsNotification, 1)
	ch1 <- rpcclient.LogsNotification{Signature: "a"}
	close(ch1)
	ch2 <- rpcclient.LogsNotification{Signature: "b"}
	close(ch2)

	out := merge(context.Background(), []rpcclient.Subscription{
		&fakeSubscriptionNoClose{ch1}, &fakeSubscriptionNoClose{ch2},
	})

	var got []string
	for n := range out {
		got = append(got, n.Signature)
	}
	assert.ElementsMatch(t, []string{"a", "b"}, got)
}

type fakeSubscriptionNoClose struct {
	ch chan rpcclient.LogsNotification
}

func (f *fakeSubscriptionNoClose) Notifications() <-chan rpcclient.LogsNotification { return f.ch }
func (f *fakeSubscriptionNoClose) Close() error                                     { return nil }
