// Package rpcclient talks to a Solana JSON-RPC endpoint over HTTP for
// historical queries and over WebSocket for the live logs subscription.
package rpcclient

import (
	"context"
	"time"
)

// SignatureInfo is one entry of a getSignaturesForAddress response.
type SignatureInfo struct {
	Signature string
	Slot      uint64
	Err       bool
}

// Transaction is the subset of a getTransaction response the pipeline
// needs: the slot it landed in and its log messages.
type Transaction struct {
	Slot uint64
	Logs []string
}

// LogsNotification is one message delivered by a logsSubscribe
// subscription.
type LogsNotification struct {
	Signature string
	Err       bool
	Logs      []string
}

// HTTPClient is the historical-query surface the walker depends on.
type HTTPClient interface {
	GetAccountOwner(ctx context.Context, address string) (string, error)
	GetSignaturesForAddress(ctx context.Context, address string, limit int) ([]SignatureInfo, error)
	GetTransaction(ctx context.Context, signature string) (Transaction, error)
}

// Subscription is a live logsSubscribe stream for a single program id.
type Subscription interface {
	// Notifications delivers one LogsNotification per log message; it is
	// closed when the underlying connection ends (cleanly or not).
	Notifications() <-chan LogsNotification
	Close() error
}

// WSClient is the live-subscription surface the subscriber depends on.
type WSClient interface {
	Dial(ctx context.Context) error
	LogsSubscribe(ctx context.Context, programID, commitment string) (Subscription, error)
	Close() error
}

// Commitment levels accepted by Solana RPC.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// DefaultReadTimeout bounds a single HTTP RPC round trip.
const DefaultReadTimeout = 30 * time.Second
