package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brojonat/walletrunner/service/metrics"
	"github.com/brojonat/walletrunner/service/solana"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testWallet struct{ id int64 }

func (w testWallet) WalletID() int64       { return w.id }
func (w testWallet) WalletAddress() string { return fmt.Sprintf("addr-%d", w.id) }

func makeWallets(n int) []testWallet {
	out := make([]testWallet, n)
	for i := range out {
		out[i] = testWallet{id: int64(i + 1)}
	}
	return out
}

// gauge tracks the number of concurrently running workflows.
type gauge struct {
	cur  atomic.Int64
	peak atomic.Int64
}

func (g *gauge) enter() {
	n := g.cur.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (g *gauge) exit() { g.cur.Add(-1) }

func TestRunOnce_ConcurrencyBound(t *testing.T) {
	tests := []struct {
		wallets     int
		concurrency int
	}{
		{wallets: 10, concurrency: 3},
		{wallets: 2, concurrency: 8},
		{wallets: 5, concurrency: 5},
		{wallets: 7, concurrency: 1},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("L=%d K=%d", tt.wallets, tt.concurrency), func(t *testing.T) {
			r := NewRunner("test", Config{Concurrency: tt.concurrency, Shuffle: true}, nil, nil)
			var g gauge

			report := RunOnce(context.Background(), r, makeWallets(tt.wallets), func(ctx context.Context, w testWallet) error {
				g.enter()
				defer g.exit()
				time.Sleep(5 * time.Millisecond)
				return nil
			})

			bound := int64(min(tt.wallets, tt.concurrency))
			assert.LessOrEqual(t, g.peak.Load(), bound)
			assert.LessOrEqual(t, report.MaxInFlight, int(bound))
			assert.Equal(t, tt.wallets, report.Succeeded)
			assert.Zero(t, report.Failed())
		})
	}
}

func TestRunOnce_FailureIsolation(t *testing.T) {
	r := NewRunner("test", Config{Concurrency: 3}, nil, nil)

	var mu sync.Mutex
	completed := map[int64]bool{}

	report := RunOnce(context.Background(), r, makeWallets(6), func(ctx context.Context, w testWallet) error {
		switch w.id {
		case 2:
			return errors.New("exchange unavailable")
		case 4:
			panic("nil record")
		case 5:
			return fmt.Errorf("confirm: %w", solana.ErrConfirmationTimedOut)
		}
		time.Sleep(time.Millisecond)
		mu.Lock()
		completed[w.id] = true
		mu.Unlock()
		return nil
	})

	assert.Equal(t, map[int64]bool{1: true, 3: true, 6: true}, completed)
	assert.Equal(t, 3, report.Succeeded)
	require.Equal(t, 3, report.Failed())

	byID := map[int64]WalletFailure{}
	for _, f := range report.Failures {
		byID[f.WalletID] = f
	}
	assert.Equal(t, ClassFatal, byID[2].Class)
	assert.Contains(t, byID[4].Err.Error(), "panicked")
	assert.Equal(t, ClassRetryable, byID[5].Class)
	assert.Equal(t, "addr-5", byID[5].Address)
}

func TestRunOnce_VisitsEveryWalletOnceWhenShuffled(t *testing.T) {
	r := NewRunner("test", Config{Concurrency: 4, Shuffle: true}, nil, nil)
	wallets := makeWallets(20)

	var mu sync.Mutex
	seen := map[int64]int{}
	RunOnce(context.Background(), r, wallets, func(ctx context.Context, w testWallet) error {
		mu.Lock()
		seen[w.id]++
		mu.Unlock()
		return nil
	})

	require.Len(t, seen, 20)
	for id, n := range seen {
		assert.Equal(t, 1, n, "wallet %d", id)
	}
	// caller's slice is untouched
	for i, w := range wallets {
		assert.Equal(t, int64(i+1), w.id)
	}
}

func TestRunOnce_Empty(t *testing.T) {
	r := NewRunner("test", Config{Concurrency: 2}, nil, nil)
	report := RunOnce(context.Background(), r, nil, func(ctx context.Context, w testWallet) error {
		t.Fatal("workflow must not run")
		return nil
	})
	assert.Zero(t, report.Wallets)
	assert.Zero(t, report.Succeeded)
}

func TestRunOnce_StartDelayHonoursCancel(t *testing.T) {
	r := NewRunner("test", Config{Concurrency: 2, StartDelay: Fixed(time.Hour)}, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var ran atomic.Bool
	report := RunOnce(ctx, r, makeWallets(3), func(ctx context.Context, w testWallet) error {
		ran.Store(true)
		return nil
	})

	assert.False(t, ran.Load())
	require.Equal(t, 3, report.Failed())
	for _, f := range report.Failures {
		assert.Equal(t, ClassCanceled, f.Class)
	}
}

func TestRun_SingleCycleWithoutDelay(t *testing.T) {
	r := NewRunner("test", Config{Concurrency: 2}, nil, nil)

	var calls atomic.Int64
	report, err := Run(context.Background(), r, makeWallets(3), func(ctx context.Context, w testWallet) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int64(3), calls.Load())
	assert.Equal(t, 1, report.Cycle)
}

func TestRun_RepeatsUntilCanceled(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	r := NewRunner("test", Config{Concurrency: 2, CycleDelay: Fixed(time.Millisecond)}, m, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int64
	report, err := Run(ctx, r, makeWallets(2), func(ctx context.Context, w testWallet) error {
		if calls.Add(1) >= 6 {
			cancel()
		}
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, report.Cycle, 3)

	families, err := reg.Gather()
	require.NoError(t, err)
	var cycles float64
	for _, f := range families {
		if f.GetName() == "orchestrator_cycles_total" {
			cycles = f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(report.Cycle), cycles)
}
