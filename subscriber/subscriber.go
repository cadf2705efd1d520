// Package subscriber drives the live WebSocket logs subscription for a set
// of programs, reconnecting with capped exponential backoff when the
// connection drops.
package subscriber

import (
	"context"
	"fmt"
	"time"

	"github.com/solindex/soltrace/pipeline"
	"github.com/solindex/soltrace/rpcclient"
)

// Config controls reconnect behavior.
type Config struct {
	Commitment        string
	ReconnectBase     time.Duration
	ReconnectMax      time.Duration
	MaxBackoffAttempt int // attempts beyond this no longer increase the delay
}

func DefaultConfig() Config {
	return Config{
		Commitment:        rpcclient.CommitmentConfirmed,
		ReconnectBase:     500 * time.Millisecond,
		ReconnectMax:      15 * time.Minute,
		MaxBackoffAttempt: 10,
	}
}

// ReconnectFunc is called with the attempt count and chosen delay whenever
// the subscriber is about to sleep before reconnecting.
type ReconnectFunc func(attempt int, delay time.Duration)

// Subscriber manages one-or-more logsSubscribe streams, routing every
// notification through a shared Pipeline.
type Subscriber struct {
	ws          rpcclient.WSClient
	pipeline    *pipeline.Pipeline
	cfg         Config
	onReconnect ReconnectFunc
}

func New(ws rpcclient.WSClient, p *pipeline.Pipeline, cfg Config, onReconnect ReconnectFunc) *Subscriber {
	if onReconnect == nil {
		onReconnect = func(int, time.Duration) {}
	}
	return &Subscriber{ws: ws, pipeline: p, cfg: cfg, onReconnect: onReconnect}
}

// reconnectDelay computes min(base*2^min(attempt,10), 15m).
func reconnectDelay(base, max time.Duration, attempt, capAttempt int) time.Duration {
	effective := attempt
	if effective > capAttempt {
		effective = capAttempt
	}
	delay := base * (1 << uint(effective))
	if delay > max || delay <= 0 {
		delay = max
	}
	return delay
}

// Run subscribes to every program's logs and processes notifications until
// ctx is canceled, reconnecting on any connection failure with capped
// exponential backoff. It returns only once ctx is canceled, with ctx's
// error; every dial, subscribe or stream failure leads to a reconnect.
func (s *Subscriber) Run(ctx context.Context, programIDs []string) error {
	attempt := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := s.runOnce(ctx, programIDs)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			// A clean shutdown of runOnce (all subscriptions closed
			// without error) is still treated as reconnect-worthy: a
			// long-lived indexer should never just stop.
		}

		delay := reconnectDelay(s.cfg.ReconnectBase, s.cfg.ReconnectMax, attempt, s.cfg.MaxBackoffAttempt)
		s.onReconnect(attempt+1, delay)
		attempt++

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (s *Subscriber) runOnce(ctx context.Context, programIDs []string) error {
	if err := s.ws.Dial(ctx); err != nil {
		return fmt.Errorf("subscriber: dialing: %w", err)
	}
	defer s.ws.Close()

	subs := make([]rpcclient.Subscription, 0, len(programIDs))
	for _, programID := range programIDs {
		sub, err := s.ws.LogsSubscribe(ctx, programID, s.cfg.Commitment)
		if err != nil {
			return fmt.Errorf("subscriber: subscribing to %q: %w", programID, err)
		}
		subs = append(subs, sub)
	}

	merged := merge(ctx, subs)
	for notification := range merged {
		if notification.Err {
			continue
		}
		if _, err := s.pipeline.Process(ctx, 0, notification.Signature, notification.Logs, time.Time{}); err != nil {
			// A single transaction's processing failure does not tear
			// down the subscription; the pipeline counts it in its
			// insert-failure metric and the loop continues.
			continue
		}
	}

	return nil
}

// merge fans multiple subscriptions' notification channels into one,
// closing the output when every input is closed or ctx is done.
func merge(ctx context.Context, subs []rpcclient.Subscription) <-chan rpcclient.LogsNotification {
	out := make(chan rpcclient.LogsNotification, 100)

	done := make(chan struct{})
	remaining := len(subs)
	if remaining == 0 {
		close(out)
		return out
	}

	finish := func() {
		remaining--
		if remaining == 0 {
			close(done)
		}
	}

	for _, sub := range subs {
		sub := sub
		go func() {
			for {
				select {
				case n, ok := <-sub.Notifications():
					if !ok {
						finish()
						return
					}
					select {
					case out <- n:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		select {
		case <-done:
		case <-ctx.Done():
		}
		close(out)
	}()

	return out
}
