// Package walker performs historical backfill: for each configured
// program, it lists signatures via RPC and processes them with bounded
// concurrency, retrying transient RPC failures and deduplicating across
// the run.
package walker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/solindex/soltrace/pipeline"
	"github.com/solindex/soltrace/retry"
	"github.com/solindex/soltrace/rpcclient"
)

// Config controls the walker's concurrency and retry shape.
type Config struct {
	// Concurrency is the number of signature fetches allowed in flight at
	// once. A program's whole signature list runs through one fan-out
	// bounded by it; the list is not split into windows.
	Concurrency int
	// Limit is the number of most-recent signatures to fetch per program.
	Limit int
	// BatchDelay is paused between programs, to stay polite to the
	// upstream RPC endpoint.
	BatchDelay time.Duration
	// RetryAttempts bounds retries of a single signature fetch.
	RetryAttempts int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	// ProgressEvery controls how often a progress line is logged, in
	// number of completed signature tasks.
	ProgressEvery int
}

func DefaultConfig() Config {
	return Config{
		Concurrency:    10,
		Limit:          1000,
		BatchDelay:     100 * time.Millisecond,
		RetryAttempts:  3,
		RetryBaseDelay: 200 * time.Millisecond,
		RetryMaxDelay:  5 * time.Second,
		ProgressEvery:  100,
	}
}

// ProgressFunc is called each time the number of completed signature
// tasks for the current program reaches a multiple of
// Config.ProgressEvery, with the running totals for that program.
type ProgressFunc func(programID string, completed, total int)

// Walker drives the historical backfill for a set of programs.
type Walker struct {
	rpc      rpcclient.HTTPClient
	pipeline *pipeline.Pipeline
	cfg      Config
	progress ProgressFunc
}

func New(rpc rpcclient.HTTPClient, p *pipeline.Pipeline, cfg Config, progress ProgressFunc) *Walker {
	if progress == nil {
		progress = func(string, int, int) {}
	}
	return &Walker{rpc: rpc, pipeline: p, cfg: cfg, progress: progress}
}

// Summary reports how much work a single program's backfill did.
type Summary struct {
	ProgramID          string
	SignaturesFetched  int
	EventsStored       int
	SignaturesFailed   int
}

// Run backfills every program in turn, sleeping BatchDelay between
// programs. A deduplication set spanning the whole run (not just one
// program) prevents re-processing a signature that multiple configured
// programs happen to share. A signature already present in storage from
// an earlier run is skipped the same way, without being re-fetched.
func (w *Walker) Run(ctx context.Context, programIDs []string) ([]Summary, error) {
	seen := &sync.Map{}
	summaries := make([]Summary, 0, len(programIDs))

	for i, programID := range programIDs {
		summary, err := w.runProgram(ctx, programID, seen)
		if err != nil {
			return summaries, fmt.Errorf("walker: program %q: %w", programID, err)
		}
		summaries = append(summaries, summary)

		if i < len(programIDs)-1 && w.cfg.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return summaries, ctx.Err()
			case <-time.After(w.cfg.BatchDelay):
			}
		}
	}

	return summaries, nil
}

func (w *Walker) runProgram(ctx context.Context, programID string, seen *sync.Map) (Summary, error) {
	sigs, err := w.rpc.GetSignaturesForAddress(ctx, programID, w.cfg.Limit)
	if err != nil {
		return Summary{}, fmt.Errorf("fetching signatures: %w", err)
	}

	summary := Summary{ProgramID: programID, SignaturesFetched: len(sigs)}

	concurrency := w.cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := semaphore.NewWeighted(int64(2 * concurrency))

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)

	var mu sync.Mutex
	var completed int
	var storedCount int
	var failedCount int

	for _, sig := range sigs {
		sig := sig
		if _, alreadySeen := seen.LoadOrStore(sig.Signature, struct{}{}); alreadySeen {
			continue
		}
		if sig.Err {
			continue
		}
		// A signature already fully ingested by a previous run needs no
		// re-fetch or re-decode; a storage error here is not fatal to the
		// run, it just means this signature gets processed again.
		if exists, err := w.pipeline.Storage.ExistsSignature(ctx, sig.Signature); err == nil && exists {
			continue
		}

		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}

		group.Go(func() error {
			defer sem.Release(1)

			stored, err := w.processSignature(gctx, programID, sig.Signature)

			mu.Lock()
			completed++
			if err != nil {
				failedCount++
			} else {
				storedCount += stored
			}
			n := completed
			mu.Unlock()

			if w.cfg.ProgressEvery > 0 && n%w.cfg.ProgressEvery == 0 {
				w.progress(programID, n, len(sigs))
			}
			return nil // a single signature's failure does not abort the program
		})
	}

	if err := group.Wait(); err != nil {
		return summary, err
	}

	summary.EventsStored = storedCount
	summary.SignaturesFailed = failedCount
	return summary, nil
}

func (w *Walker) processSignature(ctx context.Context, programID, signature string) (int, error) {
	var tx rpcclient.Transaction
	err := retry.WithRateLimit(ctx, func() error {
		t, err := w.rpc.GetTransaction(ctx, signature)
		if err != nil {
			return err
		}
		tx = t
		return nil
	}, w.cfg.RetryAttempts)
	if err != nil {
		return 0, fmt.Errorf("fetching transaction %q: %w", signature, err)
	}

	stored, err := w.pipeline.Process(ctx, tx.Slot, signature, tx.Logs, time.Time{})
	if err != nil {
		return stored, fmt.Errorf("processing transaction %q: %w", signature, err)
	}
	return stored, nil
}
