// Package retry implements the two retry policies the ingestion layer
// relies on: a generic capped-exponential backoff, and a rate-limit-aware
// variant that recognizes RPC throttling errors and waits noticeably
// longer for them.
package retry

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Operation is a unit of retryable work. A nil error signals success.
type Operation func() error

// WithBackoff retries operation up to maxRetries additional times (so at
// most maxRetries+1 attempts total), sleeping
// min(baseDelay*2^attempt, maxDelay) between attempts. Returns the last
// error if every attempt fails.
func WithBackoff(ctx context.Context, operation Operation, maxRetries int, baseDelay, maxDelay time.Duration) error {
	b := &capExpBackoff{
		base: baseDelay,
		max:  maxDelay,
	}
	return runWithBackoff(ctx, operation, b, maxRetries)
}

// WithRateLimit retries operation up to maxRetries additional times. When
// the failing error looks like an RPC rate-limit response (case-insensitive
// match on "rate limit", "429", or "too many requests"), it waits
// (attempt+1)*5s instead of the standard 100ms*2^attempt curve; both are
// capped at 60s.
func WithRateLimit(ctx context.Context, operation Operation, maxRetries int) error {
	b := &rateLimitBackoff{}
	return runWithBackoff(ctx, operation, b, maxRetries)
}

// capExpBackoff implements backoff.BackOff with the exact
// min(base*2^attempt, max) formula instead of the library's default curve.
type capExpBackoff struct {
	base    time.Duration
	max     time.Duration
	attempt int
}

func (b *capExpBackoff) NextBackOff() time.Duration {
	delay := b.base * (1 << uint(b.attempt))
	if delay > b.max || delay <= 0 {
		delay = b.max
	}
	b.attempt++
	return delay
}

func (b *capExpBackoff) Reset() { b.attempt = 0 }

// rateLimitBackoff implements backoff.BackOff with delay selection driven
// by whether the most recently reported error looks like a rate limit.
type rateLimitBackoff struct {
	attempt     int
	isRateLimit bool
}

const rateLimitCap = 60 * time.Second

func (b *rateLimitBackoff) NextBackOff() time.Duration {
	var delay time.Duration
	if b.isRateLimit {
		delay = time.Duration(b.attempt+1) * 5 * time.Second
	} else {
		delay = 100 * time.Millisecond * time.Duration(1<<uint(b.attempt))
	}
	if delay > rateLimitCap {
		delay = rateLimitCap
	}
	b.attempt++
	return delay
}

func (b *rateLimitBackoff) Reset() { b.attempt = 0; b.isRateLimit = false }

func looksLikeRateLimit(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "rate limit") ||
		strings.Contains(s, "429") ||
		strings.Contains(s, "too many requests")
}

// backOffDriver lets runWithBackoff update rate-limit-specific state (the
// isRateLimit flag) between attempts without runWithBackoff knowing which
// concrete policy it's driving.
type backOffDriver interface {
	backoff.BackOff
	observe(err error)
}

func (b *capExpBackoff) observe(error) {}

func (b *rateLimitBackoff) observe(err error) { b.isRateLimit = looksLikeRateLimit(err) }

func runWithBackoff(ctx context.Context, operation Operation, policy backOffDriver, maxRetries int) error {
	bounded := backoff.WithMaxRetries(policy, uint64(maxRetries))
	withCtx := backoff.WithContext(bounded, ctx)

	var lastErr error
	err := backoff.Retry(func() error {
		err := operation()
		if err != nil {
			lastErr = err
			policy.observe(err)
		}
		return err
	}, withCtx)

	if err != nil {
		if lastErr != nil {
			return lastErr
		}
		return err
	}
	return nil
}
