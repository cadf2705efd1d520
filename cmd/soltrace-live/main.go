// Command soltrace-live subscribes to live Solana program logs over
// WebSocket and indexes decoded Anchor events as they arrive.
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
	"github.com/solindex/soltrace/subscriber"
)

// systemProgramID is Solana's built-in System Program address; an account
// owned by it is not itself a deployed program.
const systemProgramID = "11111111111111111111111111111111"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "soltrace-live",
		Short: "Real-time Solana event indexer using WebSocket logs",
	}
	root.AddCommand(newInitCmd(), newRunCmd())
	return root
}

func newInitCmd() *cobra.Command {
	var dbURL string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := applog.New(applog.DefaultConfig())
			if err != nil {
				return err
			}
			defer logger.Sync()

			logger.Info("initializing database", zap.String("db_url", dbURL))
			backend, err := storage.Open(cmd.Context(), dbURL)
			if err != nil {
				return fmt.Errorf("initializing database: %w", err)
			}
			defer backend.Close(cmd.Context())
			logger.Info("database initialized successfully", zap.String("db_url", dbURL))
			return nil
		},
	}
	cmd.Flags().StringVarP(&dbURL, "db-url", "d", "sqlite:./soltrace.db", "Database URL")
	return cmd
}

func newRunCmd() *cobra.Command {
	var (
		wsURL       string
		rpcURL      string
		programsRaw string
		dbURL       string
		idlDir      string
		commitment  string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start real-time event indexing",
	}

	flags := cmd.Flags()
	flags.StringVarP(&wsURL, "ws-url", "w", "wss://api.mainnet-beta.solana.com", "Solana RPC WebSocket URL")
	flags.StringVarP(&rpcURL, "rpc-url", "r", "https://api.mainnet-beta.solana.com", "Solana RPC HTTP URL")
	flags.StringVarP(&programsRaw, "programs", "p", "", "Comma-separated list of program IDs to index")
	flags.StringVarP(&dbURL, "db-url", "d", "sqlite:./soltrace.db", "Database URL")
	flags.StringVarP(&idlDir, "idl-dir", "i", "./idls", "IDL schema directory")
	flags.StringVarP(&commitment, "commitment", "c", "confirmed", "Log commitment level (processed, confirmed, finalized)")
	logFlags := config.RegisterLogFlags(flags)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg := config.Live{
			WSURL:       wsURL,
			RPCURL:      rpcURL,
			Programs:    config.SplitPrograms(programsRaw),
			DatabaseURL: dbURL,
			IDLDir:      idlDir,
			Commitment:  commitment,
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger, err := applog.New(applog.Config{Level: logFlags.Level, JSON: logFlags.JSON})
		if err != nil {
			return err
		}
		defer logger.Sync()

		return runLive(cmd.Context(), cfg, logFlags.MetricsAddr, logger)
	}

	return cmd
}

func runLive(ctx context.Context, cfg config.Live, healthAddr string, logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting soltrace-live",
		zap.String("rpc_url", cfg.RPCURL),
		zap.String("ws_url", cfg.WSURL),
		zap.String("commitment", cfg.Commitment),
		zap.Strings("programs", cfg.Programs))

	httpClient := rpcclient.NewHTTPClient(cfg.RPCURL)
	validatePrograms(ctx, httpClient, cfg.Programs, logger)

	registry, err := idl.LoadDir(afero.NewOsFs(), cfg.IDLDir)
	if err != nil {
		return fmt.Errorf("loading IDL schemas: %w", err)
	}
	logger.Info("loaded IDL schemas", zap.Int("count", registry.Len()), zap.String("dir", cfg.IDLDir))

	backend, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer backend.Close(ctx)
	logger.Info("storage connected", zap.String("db_url", cfg.DatabaseURL))

	m, promRegistry := metrics.New()
	health := metrics.NewHealthChecker(m)

	p := &pipeline.Pipeline{
		Orchestrator: event.NewOrchestrator(registry),
		Storage:      backend,
		Metrics:      m,
		Logger:       logger,
	}

	if healthAddr != "" {
		go serveHealth(healthAddr, health, promRegistry, logger)
	}

	wsClient := rpcclient.NewWSClient(cfg.WSURL)
	scfg := subscriber.DefaultConfig()
	scfg.Commitment = cfg.Commitment

	s := subscriber.New(wsClient, p, scfg, func(attempt int, delay time.Duration) {
		m.RecordWSReconnection()
		logger.Warn("reconnecting to websocket", zap.Int("attempt", attempt), zap.Duration("delay", delay))
	})

	err = s.Run(ctx, cfg.Programs)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("live subscriber: %w", err)
	}
	logger.Info("soltrace-live shutting down")
	return nil
}

func validatePrograms(ctx context.Context, httpClient rpcclient.HTTPClient, programIDs []string, logger *zap.Logger) {
	for _, programID := range programIDs {
		owner, err := httpClient.GetAccountOwner(ctx, programID)
		if err != nil {
			logger.Error("failed to fetch program account", zap.String("program", programID), zap.Error(err))
			continue
		}
		if owner == systemProgramID {
			logger.Warn("program is not a program (owner is System Program)", zap.String("program", programID))
		}
	}
	logger.Info("program IDs validated")
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
