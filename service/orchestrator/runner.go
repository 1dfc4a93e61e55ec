package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/brojonat/walletrunner/service/metrics"
	"golang.org/x/sync/semaphore"
)

// Wallet is the orchestrator's view of a wallet: just enough identity to log
// and report on it.
type Wallet interface {
	WalletID() int64
	WalletAddress() string
}

// Workflow is run once per wallet per cycle.
type Workflow[W Wallet] func(ctx context.Context, w W) error

// Config is the immutable pacing and admission configuration of a Runner.
type Config struct {
	// Concurrency caps the number of workflows in flight.
	Concurrency int
	Shuffle     bool
	// StartDelay is slept after admission, before the workflow starts.
	StartDelay Range
	// ActionDelay is slept after every action of a plan.
	ActionDelay Range
	// CycleDelay is slept between cycles. Zero runs a single cycle.
	CycleDelay Range
}

// Runner drives wallet workflows under a concurrency cap.
type Runner struct {
	name    string
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRunner creates a runner. name labels logs and metrics (e.g. "activity").
func NewRunner(name string, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Runner{
		name:    name,
		cfg:     cfg,
		logger:  logger.With("workflow", name),
		metrics: m,
	}
}

// Config returns the runner's configuration.
func (r *Runner) Config() Config { return r.cfg }

// WalletFailure is one wallet's failed workflow within a cycle.
type WalletFailure struct {
	WalletID int64
	Address  string
	Class    Class
	Err      error
}

// CycleReport summarises one pass over the wallet list.
type CycleReport struct {
	Cycle     int
	Wallets   int
	Succeeded int
	Failures  []WalletFailure
	// MaxInFlight is the highest number of workflows observed running at once.
	MaxInFlight int
	Started     time.Time
	Elapsed     time.Duration
}

// Failed is the number of wallets whose workflow returned an error.
func (c CycleReport) Failed() int { return len(c.Failures) }

// Run executes workflow for every wallet, then repeats after a pause drawn
// from CycleDelay until ctx is done. With a zero CycleDelay it runs once and
// returns that cycle's report. In repeat mode the last completed report is
// returned together with ctx.Err().
func Run[W Wallet](ctx context.Context, r *Runner, wallets []W, workflow Workflow[W]) (CycleReport, error) {
	var last CycleReport
	for cycle := 1; ; cycle++ {
		last = RunOnce(ctx, r, wallets, workflow)
		last.Cycle = cycle
		r.metrics.RecordCycle()
		r.logger.InfoContext(ctx, "cycle finished",
			"cycle", cycle,
			"wallets", last.Wallets,
			"succeeded", last.Succeeded,
			"failed", last.Failed(),
			"elapsed", last.Elapsed,
		)

		if r.cfg.CycleDelay.IsZero() {
			return last, nil
		}
		if err := ctx.Err(); err != nil {
			return last, err
		}

		pause := r.cfg.CycleDelay.Draw()
		r.logger.InfoContext(ctx, "sleeping before next cycle",
			"pause", pause,
			"next_run", time.Now().Add(pause).Format(time.DateTime),
		)
		if err := Sleep(ctx, pause); err != nil {
			return last, err
		}
	}
}

// RunOnce runs a single cycle: at most min(len(wallets), Concurrency)
// workflows in flight, each wallet isolated from the others' failures.
func RunOnce[W Wallet](ctx context.Context, r *Runner, wallets []W, workflow Workflow[W]) CycleReport {
	report := CycleReport{Wallets: len(wallets), Started: time.Now()}
	if len(wallets) == 0 {
		return report
	}

	order := make([]W, len(wallets))
	copy(order, wallets)
	if r.cfg.Shuffle {
		rand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	sem := semaphore.NewWeighted(int64(min(len(order), r.cfg.Concurrency)))

	var (
		mu       sync.Mutex
		inFlight int
		wg       sync.WaitGroup
	)
	record := func(w W, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			report.Succeeded++
			return
		}
		report.Failures = append(report.Failures, WalletFailure{
			WalletID: w.WalletID(),
			Address:  w.WalletAddress(),
			Class:    Classify(err),
			Err:      err,
		})
	}
	admit := func(delta int) {
		mu.Lock()
		inFlight += delta
		report.MaxInFlight = max(report.MaxInFlight, inFlight)
		mu.Unlock()
		r.metrics.RecordWalletAdmitted(float64(delta))
	}

	for _, w := range order {
		wg.Add(1)
		go func(w W) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				record(w, fmt.Errorf("wallet %d not started: %w", w.WalletID(), err))
				return
			}
			admit(1)
			defer func() {
				admit(-1)
				sem.Release(1)
			}()

			err := r.runWallet(ctx, w.WalletID(), w.WalletAddress(), func(ctx context.Context) error {
				return workflow(ctx, w)
			})
			record(w, err)
		}(w)
	}
	wg.Wait()

	report.Elapsed = time.Since(report.Started)
	return report
}

// runWallet applies the start delay, runs fn, and turns a panic into an error.
func (r *Runner) runWallet(ctx context.Context, id int64, address string, fn func(context.Context) error) (err error) {
	logger := r.logger.With("wallet_id", id, "wallet", address)

	if !r.cfg.StartDelay.IsZero() {
		delay := r.cfg.StartDelay.Draw()
		logger.InfoContext(ctx, "waiting before start", "delay", delay, "start_at", time.Now().Add(delay).Format(time.DateTime))
		if err := Sleep(ctx, delay); err != nil {
			return err
		}
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("workflow panicked: %v", p)
		}
		status := "success"
		if err != nil {
			status = "error"
			logger.ErrorContext(ctx, "wallet workflow failed", "error", err, "class", Classify(err))
		} else {
			logger.InfoContext(ctx, "wallet workflow finished", "elapsed", time.Since(start))
		}
		r.metrics.RecordWorkflowDuration(r.name, status, time.Since(start).Seconds())
	}()

	return fn(ctx)
}
