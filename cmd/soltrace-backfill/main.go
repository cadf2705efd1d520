// Command soltrace-backfill walks historical Solana transaction signatures
// for a set of programs, decodes their Anchor events, and persists them.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/solindex/soltrace/applog"
	"github.com/solindex/soltrace/config"
	"github.com/solindex/soltrace/event"
	"github.com/solindex/soltrace/idl"
	"github.com/solindex/soltrace/metrics"
	"github.com/solindex/soltrace/pipeline"
	"github.com/solindex/soltrace/rpcclient"
	"github.com/solindex/soltrace/storage"
	"github.com/solindex/soltrace/walker"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		rpcURL      string
		programsRaw string
		dbURL       string
		idlDir      string
		limit       int
		batchSize   int
		batchDelay  int
		concurrency int
		maxRetries  int
	)

	cmd := &cobra.Command{
		Use:   "soltrace-backfill",
		Short: "Backfill historical Solana events from RPC",
	}

	flags := cmd.Flags()
	flags.StringVarP(&rpcURL, "rpc-url", "r", "https://api.mainnet-beta.solana.com", "Solana RPC URL")
	flags.StringVarP(&programsRaw, "programs", "p", "", "Comma-separated list of program IDs to index")
	flags.StringVarP(&dbURL, "db-url", "d", "sqlite:./soltrace.db", "Database URL")
	flags.StringVarP(&idlDir, "idl-dir", "i", "./idls", "IDL schema directory")
	flags.IntVarP(&limit, "limit", "l", 1000, "Number of signatures to fetch per program")
	flags.IntVarP(&batchSize, "batch-size", "b", 100, "Batch size (validated and logged; fetch fan-out is set by --concurrency)")
	flags.IntVar(&batchDelay, "batch-delay", 100, "Delay between batches (milliseconds)")
	flags.IntVarP(&concurrency, "concurrency", "c", 10, "Concurrent transaction fetches in flight")
	flags.IntVar(&maxRetries, "max-retries", 3, "Max retries per transaction fetch")
	logFlags := config.RegisterLogFlags(flags)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg := config.Backfill{
			RPCURL:       rpcURL,
			Programs:     config.SplitPrograms(programsRaw),
			DatabaseURL:  dbURL,
			IDLDir:       idlDir,
			Limit:        limit,
			BatchSize:    batchSize,
			BatchDelayMS: batchDelay,
			Concurrency:  concurrency,
			MaxRetries:   maxRetries,
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger, err := applog.New(applog.Config{Level: logFlags.Level, JSON: logFlags.JSON})
		if err != nil {
			return err
		}
		defer logger.Sync()

		return runBackfill(cmd.Context(), cfg, logFlags.MetricsAddr, logger)
	}

	return cmd
}

func runBackfill(ctx context.Context, cfg config.Backfill, metricsAddr string, logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting soltrace-backfill",
		zap.String("rpc_url", cfg.RPCURL),
		zap.Int("limit", cfg.Limit),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Strings("programs", cfg.Programs))

	registry, err := idl.LoadDir(afero.NewOsFs(), cfg.IDLDir)
	if err != nil {
		return fmt.Errorf("loading IDL schemas: %w", err)
	}
	logger.Info("loaded IDL schemas", zap.Int("count", registry.Len()), zap.String("dir", cfg.IDLDir))
	for _, p := range registry.Programs() {
		logger.Info("  schema", zap.String("address", p.Address), zap.Int("events", len(p.Events)))
	}

	backend, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer backend.Close(ctx)
	logger.Info("storage connected", zap.String("db_url", cfg.DatabaseURL))

	m, promRegistry := metrics.New()

	if metricsAddr != "" {
		go serveHealth(metricsAddr, metrics.NewHealthChecker(m), promRegistry, logger)
	}

	p := &pipeline.Pipeline{
		Orchestrator: event.NewOrchestrator(registry),
		Storage:      backend,
		Metrics:      m,
		Logger:       logger,
	}

	httpClient := rpcclient.NewHTTPClient(cfg.RPCURL)

	wcfg := walker.DefaultConfig()
	wcfg.Concurrency = cfg.Concurrency
	wcfg.Limit = cfg.Limit
	wcfg.BatchDelay = time.Duration(cfg.BatchDelayMS) * time.Millisecond
	wcfg.RetryAttempts = cfg.MaxRetries

	w := walker.New(httpClient, p, wcfg, func(programID string, completed, total int) {
		logger.Info("backfill progress", zap.String("program", programID), zap.Int("completed", completed), zap.Int("total", total))
	})

	summaries, err := w.Run(ctx, cfg.Programs)
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}

	var totalFetched, totalStored int
	for _, s := range summaries {
		totalFetched += s.SignaturesFetched
		totalStored += s.EventsStored
		logger.Info("program complete",
			zap.String("program", s.ProgramID),
			zap.Int("signatures_fetched", s.SignaturesFetched),
			zap.Int("events_stored", s.EventsStored),
			zap.Int("signatures_failed", s.SignaturesFailed))
	}

	snapshot := m.Snapshot()
	logger.Info("backfill complete",
		zap.Int("total_signatures_fetched", totalFetched),
		zap.Int("total_events_stored", totalStored),
		zap.Uint64("duplicate_events", snapshot.DuplicateEvents),
		zap.Uint64("decode_failures", snapshot.DecodeFailures))

	return nil
}

func serveHealth(addr string, health *metrics.HealthChecker, reg *prometheus.Registry, logger *zap.Logger) {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		result := health.Evaluate()
		w.Header().Set("Content-Type", "application/json")
		if result.Status == metrics.Unhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(result)
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	logger.Info("serving health and metrics", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Error("health server stopped", zap.Error(err))
	}
}
