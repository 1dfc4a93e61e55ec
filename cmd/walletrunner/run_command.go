package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/brojonat/walletrunner/service/config"
	"github.com/brojonat/walletrunner/service/db"
	"github.com/brojonat/walletrunner/service/metrics"
	natspkg "github.com/brojonat/walletrunner/service/nats"
	"github.com/brojonat/walletrunner/service/orchestrator"
	"github.com/brojonat/walletrunner/service/wallet"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run a workflow across the selected wallets",
		ArgsUsage: "<workflow>",
		Description: `Runs one of: activity, withdraw-and-swap, swap-to-stables, sweep, sync-stats.

With CYCLE_DELAY set the workflow repeats over all wallets until interrupted,
otherwise a single cycle runs. WALLET_RANGE (e.g. 3-10) or WALLET_IDS (e.g. 1,4,9)
narrow the wallets.

Example:
  walletrunner run activity --once`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Run a single cycle even when CYCLE_DELAY is set",
			},
			&cli.BoolFlag{
				Name:  "migrate",
				Usage: "Create the wallets table before running",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: workflow name")
			}
			cfg, err := config.LoadWithOverrides(flagOverrides(c))
			if err != nil {
				return err
			}
			if c.Bool("once") {
				cfg.CycleDelay = orchestrator.Range{}
			}

			logger := setupLogger(cfg.LogLevel)
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report, err := runWorkflow(ctx, cfg, c.Args().First(), c.Bool("migrate"), logger)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return outputJSON(summarize(report))
			}
			fmt.Fprintf(os.Stderr, "cycle %d: %d wallets, %d succeeded, %d failed in %s\n",
				report.Cycle, report.Wallets, report.Succeeded, report.Failed(), report.Elapsed.Round(time.Millisecond))
			return nil
		},
	}
}

// flagOverrides carries explicitly set global flags into the configuration,
// where they win over the environment and the config file.
func flagOverrides(c *cli.Context) map[string]string {
	overrides := map[string]string{}
	if c.IsSet("database-url") {
		overrides["DATABASE_URL"] = c.String("database-url")
	}
	if c.IsSet("log-level") {
		overrides["LOG_LEVEL"] = c.String("log-level")
	}
	if c.IsSet("encryption-keys") {
		overrides["KEY_ENCRYPTION_KEYS"] = strings.Join(c.StringSlice("encryption-keys"), ",")
	}
	return overrides
}

func runWorkflow(ctx context.Context, cfg *config.Config, name string, migrate bool, logger *slog.Logger) (orchestrator.CycleReport, error) {
	var report orchestrator.CycleReport

	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return report, fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbPool.Close()
	if err := dbPool.Ping(ctx); err != nil {
		return report, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("connected to database")

	metricsCollector := metrics.NewMetrics(nil)
	store := db.NewStore(dbPool, metricsCollector)
	if migrate {
		if err := store.Migrate(ctx); err != nil {
			return report, err
		}
	}

	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metrics.NewHandler(metricsCollector, nil),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("starting metrics HTTP server", "addr", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shutdown metrics server", "error", err)
			}
		}()
	}

	ledger, err := newSolanaClient(cfg, cfg.RPCProxy, metricsCollector, logger)
	if err != nil {
		return report, err
	}
	deps := wallet.Dependencies{
		Ledger:    ledger,
		LedgerFor: newProxiedLedgers(cfg, metricsCollector, logger).LedgerFor,
		Store:     store,
	}

	if cfg.NATSURL != "" {
		publisher, err := natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
		if err != nil {
			return report, fmt.Errorf("failed to create NATS publisher: %w", err)
		}
		defer publisher.Close()
		deps.Events = publisher
	}

	runner := orchestrator.NewRunner(name, cfg.RunnerConfig(), metricsCollector, logger)
	keys, err := cfg.KeyParser(logger)
	if err != nil {
		return report, err
	}
	workflows := wallet.NewWorkflows(runner, keys, deps, cfg.WalletSettings(), logger)
	workflow, err := workflows.Lookup(name)
	if err != nil {
		return report, err
	}

	records, err := store.ListWallets(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list wallets: %w", err)
	}
	selected := cfg.Selection().Apply(records)
	if len(selected) == 0 {
		return report, fmt.Errorf("no wallets selected (%d stored)", len(records))
	}
	logger.Info("starting workflow",
		"workflow", name,
		"wallets", len(selected),
		"concurrency", cfg.Concurrency,
		"cycle_delay", cfg.CycleDelay.String(),
	)

	report, err = orchestrator.Run(ctx, runner, selected, workflow)
	if errors.Is(err, context.Canceled) {
		logger.Info("shutdown signal received, stopping")
		return report, nil
	}
	return report, err
}

type failureSummary struct {
	WalletID int64  `json:"wallet_id"`
	Address  string `json:"address"`
	Class    string `json:"class"`
	Error    string `json:"error"`
}

type reportSummary struct {
	Cycle       int              `json:"cycle"`
	Wallets     int              `json:"wallets"`
	Succeeded   int              `json:"succeeded"`
	Failed      int              `json:"failed"`
	MaxInFlight int              `json:"max_in_flight"`
	Started     time.Time        `json:"started"`
	ElapsedMS   int64            `json:"elapsed_ms"`
	Failures    []failureSummary `json:"failures,omitempty"`
}

func summarize(r orchestrator.CycleReport) reportSummary {
	s := reportSummary{
		Cycle:       r.Cycle,
		Wallets:     r.Wallets,
		Succeeded:   r.Succeeded,
		Failed:      r.Failed(),
		MaxInFlight: r.MaxInFlight,
		Started:     r.Started,
		ElapsedMS:   r.Elapsed.Milliseconds(),
	}
	for _, f := range r.Failures {
		s.Failures = append(s.Failures, failureSummary{
			WalletID: f.WalletID,
			Address:  f.Address,
			Class:    string(f.Class),
			Error:    f.Err.Error(),
		})
	}
	return s
}
