package wallet

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/walletrunner/service/orchestrator"
	"github.com/brojonat/walletrunner/service/solana"
	"github.com/shopspring/decimal"
)

// AmountRange is a closed interval of human amounts drawn in fixed steps.
type AmountRange struct {
	Min decimal.Decimal
	Max decimal.Decimal
	// Step is the draw granularity; zero means 0.001.
	Step decimal.Decimal
}

var defaultStep = decimal.New(1, -3)

// ParseAmountRange parses "min-max" (e.g. "0.05-0.1") or a single amount.
func ParseAmountRange(s string) (AmountRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return AmountRange{}, nil
	}
	lo, hi, found := strings.Cut(s, "-")
	if !found {
		hi = lo
	}
	minD, err := decimal.NewFromString(strings.TrimSpace(lo))
	if err != nil {
		return AmountRange{}, fmt.Errorf("parse amount range %q: %w", s, err)
	}
	maxD, err := decimal.NewFromString(strings.TrimSpace(hi))
	if err != nil {
		return AmountRange{}, fmt.Errorf("parse amount range %q: %w", s, err)
	}
	if minD.IsNegative() || maxD.LessThan(minD) {
		return AmountRange{}, fmt.Errorf("parse amount range %q: need 0 <= min <= max", s)
	}
	return AmountRange{Min: minD, Max: maxD}, nil
}

// Draw picks min + k*step for a uniform k, never exceeding max.
func (r AmountRange) Draw(decimals uint8) (solana.Amount, error) {
	return solana.AmountFromHuman(r.drawHuman(), decimals)
}

func (r AmountRange) drawHuman() decimal.Decimal {
	step := r.Step
	if step.IsZero() {
		step = defaultStep
	}
	if !r.Max.GreaterThan(r.Min) {
		return r.Min
	}
	steps := r.Max.Sub(r.Min).Div(step).IntPart()
	return r.Min.Add(step.Mul(decimal.NewFromInt(rand.Int64N(steps + 1))))
}

func (r AmountRange) String() string { return r.Min.String() + "-" + r.Max.String() }

// IntRange is a closed interval of counts.
type IntRange struct {
	Min int
	Max int
}

// ParseIntRange parses "min-max" or a single count.
func ParseIntRange(s string) (IntRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return IntRange{}, nil
	}
	lo, hi, found := strings.Cut(s, "-")
	if !found {
		hi = lo
	}
	minN, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return IntRange{}, fmt.Errorf("parse range %q: %w", s, err)
	}
	maxN, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return IntRange{}, fmt.Errorf("parse range %q: %w", s, err)
	}
	if minN < 0 || maxN < minN {
		return IntRange{}, fmt.Errorf("parse range %q: need 0 <= min <= max", s)
	}
	return IntRange{Min: minN, Max: maxN}, nil
}

// Draw returns a uniform count in [Min, Max].
func (r IntRange) Draw() int {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rand.IntN(r.Max-r.Min+1)
}

// Settings tune the workflows. They are read once at construction.
type Settings struct {
	SwapsPerCycle IntRange
	// SwapTokens are the stable tokens swaps move between SOL and.
	SwapTokens []solana.TokenDescriptor

	WithdrawAmount AmountRange
	WithdrawChain  string
	// WithdrawSettle is slept before polling for a withdrawal to land.
	WithdrawSettle time.Duration
	BalanceTimeout time.Duration
	BalancePoll    orchestrator.Range

	// CommissionReserve is the SOL kept back when swapping the native balance.
	CommissionReserve AmountRange
	// SweepReserve is the SOL left behind when sweeping to the deposit address.
	SweepReserve AmountRange
	// RefillAmount is the stable amount swapped back to SOL once the SOL
	// balance drops to the commission reserve.
	RefillAmount AmountRange

	ComputeUnitLimit uint32
	PriorityFee      uint64
}

// DefaultSettings mirror the pacing the workflows were tuned with.
func DefaultSettings() Settings {
	return Settings{
		SwapsPerCycle:     IntRange{Min: 1, Max: 3},
		SwapTokens:        []solana.TokenDescriptor{solana.USDC, solana.USDT},
		WithdrawAmount:    AmountRange{Min: decimal.RequireFromString("0.05"), Max: decimal.RequireFromString("0.1")},
		WithdrawChain:     "Solana",
		WithdrawSettle:    10 * time.Second,
		BalanceTimeout:    6 * time.Minute,
		BalancePoll:       orchestrator.Range{Min: 20 * time.Second, Max: 30 * time.Second},
		CommissionReserve: AmountRange{Min: decimal.RequireFromString("0.01"), Max: decimal.RequireFromString("0.02")},
		SweepReserve:      AmountRange{Min: decimal.RequireFromString("0.001"), Max: decimal.RequireFromString("0.002"), Step: decimal.New(1, -4)},
		RefillAmount:      AmountRange{Min: decimal.NewFromInt(5), Max: decimal.NewFromInt(10), Step: decimal.NewFromInt(1)},
	}
}
