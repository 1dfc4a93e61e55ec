package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/walletrunner/service/solana"
	solanago "github.com/gagliardetto/solana-go"
)

// ActionKind tags an Action.
type ActionKind string

const (
	ActionTransfer      ActionKind = "transfer"
	ActionTokenTransfer ActionKind = "token_transfer"
	ActionWithdraw      ActionKind = "withdraw"
	ActionAwaitBalance  ActionKind = "await_balance"
	ActionSweep         ActionKind = "sweep"
	ActionSwap          ActionKind = "swap"
	ActionSyncStats     ActionKind = "sync_stats"
)

// ErrActionFailed wraps an action whose Result reported failure without an error.
var ErrActionFailed = errors.New("action failed")

// Action describes one step of a wallet's plan. Which fields matter depends
// on Kind:
//
//	Transfer, TokenTransfer: Token, Amount, Recipient
//	Withdraw, AwaitBalance:  Token, Amount
//	Swap:                    Token (from), ToToken, Amount (zero swaps the spendable balance)
//	Sweep, SyncStats:        none
type Action struct {
	Kind      ActionKind
	Token     solana.TokenDescriptor
	ToToken   solana.TokenDescriptor
	Amount    solana.Amount
	Recipient solanago.PublicKey
}

func (a Action) String() string {
	switch a.Kind {
	case ActionTransfer, ActionTokenTransfer:
		return fmt.Sprintf("%s %s %s to %s", a.Kind, a.Amount, a.Token, a.Recipient)
	case ActionWithdraw, ActionAwaitBalance:
		return fmt.Sprintf("%s %s %s", a.Kind, a.Amount, a.Token)
	case ActionSwap:
		return fmt.Sprintf("%s %s %s -> %s", a.Kind, a.Amount, a.Token, a.ToToken)
	}
	return string(a.Kind)
}

// Plan is an ordered list of actions for one wallet.
type Plan []Action

// Result is the structured outcome of one action.
type Result struct {
	OK     bool
	Detail string
}

// Dispatcher interprets actions for wallets of type W.
type Dispatcher[W Wallet] interface {
	Dispatch(ctx context.Context, w W, a Action) (Result, error)
}

// ActionOutcome pairs an action with what happened when it ran.
type ActionOutcome struct {
	Action  Action
	Result  Result
	Err     error
	Elapsed time.Duration
}

// PlanReport lists the outcome of every action that ran.
type PlanReport struct {
	Outcomes []ActionOutcome
}

// Failed returns the outcomes that did not succeed.
func (p PlanReport) Failed() []ActionOutcome {
	var out []ActionOutcome
	for _, o := range p.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// RunPlan executes plan strictly in order. A failing action is logged and the
// plan continues. After every action, failed or not, a pause drawn from the
// runner's ActionDelay is slept. The returned error joins every action
// failure, or is ctx.Err() when the plan was cut short.
func RunPlan[W Wallet](ctx context.Context, r *Runner, w W, plan Plan, d Dispatcher[W]) (PlanReport, error) {
	logger := r.logger.With("wallet_id", w.WalletID(), "wallet", w.WalletAddress())
	logger.InfoContext(ctx, "starting plan", "actions", len(plan))

	var report PlanReport
	var errs []error
	for i, action := range plan {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		outcome, err := runAction(ctx, r, logger, i, w, action, d)
		report.Outcomes = append(report.Outcomes, outcome)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("action %d (%s): %w", i, action.Kind, err))
		}
	}
	return report, errors.Join(errs...)
}

func runAction[W Wallet](ctx context.Context, r *Runner, logger *slog.Logger, idx int, w W, action Action, d Dispatcher[W]) (outcome ActionOutcome, err error) {
	outcome.Action = action
	delay := r.cfg.ActionDelay.Draw()
	start := time.Now()

	defer func() {
		outcome.Elapsed = time.Since(start)
		if p := recover(); p != nil {
			err = fmt.Errorf("action panicked: %v", p)
		}
		outcome.Err = err

		status := "success"
		if err != nil {
			status = "error"
			logger.ErrorContext(ctx, "action failed", "index", idx, "action", action.String(), "error", err)
		} else {
			logger.InfoContext(ctx, "action finished", "index", idx, "action", action.String(), "detail", outcome.Result.Detail)
		}
		r.metrics.RecordActionDuration(string(action.Kind), status, outcome.Elapsed.Seconds())

		if delay > 0 {
			logger.InfoContext(ctx, "sleeping before next action", "delay", delay)
			_ = Sleep(ctx, delay)
		}
	}()

	outcome.Result, err = d.Dispatch(ctx, w, action)
	if err == nil && !outcome.Result.OK {
		err = fmt.Errorf("%w: %s", ErrActionFailed, outcome.Result.Detail)
	}
	return outcome, err
}
