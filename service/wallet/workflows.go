package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/brojonat/walletrunner/service/orchestrator"
	"github.com/brojonat/walletrunner/service/solana"
	"github.com/shopspring/decimal"
)

// Dependencies are the collaborators a Workflows value dispatches to.
// Withdrawer, Swapper, Stats and Events are optional; actions needing a
// missing collaborator fail.
type Dependencies struct {
	Ledger Ledger
	// LedgerFor, if set, builds a dedicated ledger for wallets that carry a
	// proxy.
	LedgerFor  func(rec *Record) (Ledger, error)
	Store      Store
	Withdrawer Withdrawer
	Swapper    Swapper
	Stats      StatsSource
	Events     EventPublisher
}

// Workflows builds per-wallet plans and runs them through the orchestrator.
type Workflows struct {
	runner     *orchestrator.Runner
	keys       *solana.KeyParser
	ledger     Ledger
	ledgerFor  func(rec *Record) (Ledger, error)
	settings   Settings
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewWorkflows wires the workflows. settings are copied.
func NewWorkflows(runner *orchestrator.Runner, keys *solana.KeyParser, deps Dependencies, settings Settings, logger *slog.Logger) *Workflows {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflows{
		runner:    runner,
		keys:      keys,
		ledger:    deps.Ledger,
		ledgerFor: deps.LedgerFor,
		settings:  settings,
		dispatcher: &Dispatcher{
			ledger:     deps.Ledger,
			store:      deps.Store,
			withdrawer: deps.Withdrawer,
			swapper:    deps.Swapper,
			stats:      deps.Stats,
			events:     deps.Events,
			settings:   settings,
			logger:     logger,
		},
		logger: logger,
	}
}

// Names of the workflows selectable with Lookup.
const (
	WorkflowActivity        = "activity"
	WorkflowWithdrawAndSwap = "withdraw-and-swap"
	WorkflowSwapToStables   = "swap-to-stables"
	WorkflowSweep           = "sweep"
	WorkflowSyncStats       = "sync-stats"
)

// Lookup returns the workflow registered under name.
func (w *Workflows) Lookup(name string) (orchestrator.Workflow[*Record], error) {
	all := w.all()
	if wf, ok := all[name]; ok {
		return wf, nil
	}
	names := make([]string, 0, len(all))
	for n := range all {
		names = append(names, n)
	}
	sort.Strings(names)
	return nil, fmt.Errorf("unknown workflow %q (have %v)", name, names)
}

func (w *Workflows) all() map[string]orchestrator.Workflow[*Record] {
	return map[string]orchestrator.Workflow[*Record]{
		WorkflowActivity:        w.Activity,
		WorkflowWithdrawAndSwap: w.WithdrawAndSwap,
		WorkflowSwapToStables:   w.SwapToStables,
		WorkflowSweep:           w.Sweep,
		WorkflowSyncStats:       w.SyncStats,
	}
}

// open parses the record's key. The key must be present and must derive the
// stored address. The returned session must not outlive the workflow call.
func (w *Workflows) open(ctx context.Context, rec *Record) (*Session, error) {
	if strings.TrimSpace(rec.PrivateKey) == "" {
		return nil, fmt.Errorf("wallet %d: %w: private key is empty", rec.ID, solana.ErrInvalidKeyFormat)
	}
	key, err := w.keys.ParseString(rec.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("wallet %d: %w", rec.ID, err)
	}
	if derived := key.PublicKey().String(); derived != rec.Address {
		w.logger.WarnContext(ctx, "stored address does not match private key",
			"wallet_id", rec.ID,
			"wallet", rec.Address,
			"derived", derived,
		)
		return nil, fmt.Errorf("wallet %d: %w: key derives %s, stored address is %s",
			rec.ID, solana.ErrInvalidKeyFormat, derived, rec.Address)
	}
	ledger := w.ledger
	if w.ledgerFor != nil && rec.Proxy != nil && *rec.Proxy != "" {
		if ledger, err = w.ledgerFor(rec); err != nil {
			return nil, fmt.Errorf("wallet %d: %w", rec.ID, err)
		}
	}
	return &Session{Record: rec, Key: key, Ledger: ledger}, nil
}

func (w *Workflows) run(ctx context.Context, rec *Record, plan orchestrator.Plan) error {
	s, err := w.open(ctx, rec)
	if err != nil {
		return err
	}
	_, err = orchestrator.RunPlan(ctx, w.runner, s, plan, w.dispatcher)
	return err
}

// Activity funds an empty wallet from the exchange, makes sure some stable
// balance and enough SOL for commissions exist, performs a random number of
// swaps and refreshes the wallet's statistics.
func (w *Workflows) Activity(ctx context.Context, rec *Record) error {
	s, err := w.open(ctx, rec)
	if err != nil {
		return err
	}
	owner := s.Key.PublicKey()
	bal, err := s.Ledger.Balance(ctx, owner, solana.NativeSOL)
	if err != nil {
		return fmt.Errorf("wallet %d: balance: %w", rec.ID, err)
	}

	var plan orchestrator.Plan
	fundNow := bal.IsZero()
	if fundNow {
		funding, err := w.fundingActions()
		if err != nil {
			return err
		}
		plan = append(plan, funding...)
	}

	stables, err := w.stableBalances(ctx, s)
	if err != nil {
		return fmt.Errorf("wallet %d: %w", rec.ID, err)
	}
	if !anyAbove(stables, initialSwapThreshold) {
		stable, err := w.randomStable()
		if err != nil {
			return err
		}
		plan = append(plan, orchestrator.Action{Kind: orchestrator.ActionSwap, Token: solana.NativeSOL, ToToken: stable})
	}

	if !fundNow && bal.Human().LessThanOrEqual(w.settings.CommissionReserve.Min) {
		refill, err := w.refillAction(stables)
		if err != nil {
			return fmt.Errorf("wallet %d: %w", rec.ID, err)
		}
		plan = append(plan, refill)
	}

	swaps := w.settings.SwapsPerCycle.Draw()
	for i := 0; i < swaps; i++ {
		a, err := w.randomSwap()
		if err != nil {
			return err
		}
		plan = append(plan, a)
	}
	plan = append(plan, orchestrator.Action{Kind: orchestrator.ActionSyncStats})

	w.logger.InfoContext(ctx, "wallet will run activity plan", "wallet_id", rec.ID, "actions", len(plan), "swaps", swaps)
	_, err = orchestrator.RunPlan(ctx, w.runner, s, plan, w.dispatcher)
	return err
}

// initialSwapThreshold is the stable balance below which a wallet counts as
// holding no stables.
var initialSwapThreshold = decimal.NewFromInt(10)

func (w *Workflows) stableBalances(ctx context.Context, s *Session) (map[string]solana.Amount, error) {
	out := make(map[string]solana.Amount, len(w.settings.SwapTokens))
	for _, tok := range w.settings.SwapTokens {
		bal, err := s.Ledger.Balance(ctx, s.Key.PublicKey(), tok)
		if err != nil {
			return nil, fmt.Errorf("%s balance: %w", tok.Symbol, err)
		}
		out[tok.Symbol] = bal
	}
	return out, nil
}

func anyAbove(balances map[string]solana.Amount, threshold decimal.Decimal) bool {
	for _, bal := range balances {
		if bal.Human().GreaterThan(threshold) {
			return true
		}
	}
	return false
}

// refillAction swaps a drawn stable amount back to SOL from a token that
// holds at least that much.
func (w *Workflows) refillAction(stables map[string]solana.Amount) (orchestrator.Action, error) {
	human := w.settings.RefillAmount.drawHuman()
	if !human.IsPositive() {
		return orchestrator.Action{}, fmt.Errorf("refill amount range %s is empty", w.settings.RefillAmount)
	}
	var candidates []orchestrator.Action
	for _, tok := range w.settings.SwapTokens {
		amount, err := solana.AmountFromHuman(human, tok.Decimals)
		if err != nil {
			return orchestrator.Action{}, fmt.Errorf("refill amount: %w", err)
		}
		if stables[tok.Symbol].Cmp(amount) >= 0 {
			candidates = append(candidates, orchestrator.Action{
				Kind: orchestrator.ActionSwap, Token: tok, ToToken: solana.NativeSOL, Amount: amount,
			})
		}
	}
	if len(candidates) == 0 {
		return orchestrator.Action{}, fmt.Errorf("%w: no stable balance covers %s", ErrCannotRefill, human)
	}
	return candidates[rand.IntN(len(candidates))], nil
}

// WithdrawAndSwap funds the wallet from the exchange and swaps the SOL,
// minus a commission reserve, into a stable token.
func (w *Workflows) WithdrawAndSwap(ctx context.Context, rec *Record) error {
	plan, err := w.fundingActions()
	if err != nil {
		return err
	}
	stable, err := w.randomStable()
	if err != nil {
		return err
	}
	plan = append(plan, orchestrator.Action{Kind: orchestrator.ActionSwap, Token: solana.NativeSOL, ToToken: stable})
	return w.run(ctx, rec, plan)
}

// SwapToStables swaps the spendable SOL into a stable token.
func (w *Workflows) SwapToStables(ctx context.Context, rec *Record) error {
	stable, err := w.randomStable()
	if err != nil {
		return err
	}
	return w.run(ctx, rec, orchestrator.Plan{
		{Kind: orchestrator.ActionSwap, Token: solana.NativeSOL, ToToken: stable},
	})
}

// Sweep swaps every stable token back to SOL and transfers the SOL, minus a
// small reserve, to the wallet's deposit address.
func (w *Workflows) Sweep(ctx context.Context, rec *Record) error {
	if rec.DepositAddress == nil || *rec.DepositAddress == "" {
		return fmt.Errorf("wallet %d: %w", rec.ID, ErrNoDepositAddress)
	}
	var plan orchestrator.Plan
	for _, tok := range w.settings.SwapTokens {
		plan = append(plan, orchestrator.Action{Kind: orchestrator.ActionSwap, Token: tok, ToToken: solana.NativeSOL})
	}
	plan = append(plan, orchestrator.Action{Kind: orchestrator.ActionSweep})
	return w.run(ctx, rec, plan)
}

// SyncStats refreshes the wallet's statistics in the store.
func (w *Workflows) SyncStats(ctx context.Context, rec *Record) error {
	return w.run(ctx, rec, orchestrator.Plan{{Kind: orchestrator.ActionSyncStats}})
}

func (w *Workflows) fundingActions() (orchestrator.Plan, error) {
	amount, err := w.settings.WithdrawAmount.Draw(solana.NativeDecimals)
	if err != nil {
		return nil, fmt.Errorf("withdraw amount: %w", err)
	}
	if amount.IsZero() {
		return nil, fmt.Errorf("withdraw amount range %s is empty", w.settings.WithdrawAmount)
	}
	return orchestrator.Plan{
		{Kind: orchestrator.ActionWithdraw, Token: solana.NativeSOL, Amount: amount},
		{Kind: orchestrator.ActionAwaitBalance, Token: solana.NativeSOL, Amount: amount},
	}, nil
}

func (w *Workflows) randomStable() (solana.TokenDescriptor, error) {
	if len(w.settings.SwapTokens) == 0 {
		return solana.TokenDescriptor{}, fmt.Errorf("no swap tokens configured")
	}
	return w.settings.SwapTokens[rand.IntN(len(w.settings.SwapTokens))], nil
}

// randomSwap moves the whole spendable balance between SOL and a stable
// token, in a random direction.
func (w *Workflows) randomSwap() (orchestrator.Action, error) {
	stable, err := w.randomStable()
	if err != nil {
		return orchestrator.Action{}, err
	}
	if rand.IntN(2) == 0 {
		return orchestrator.Action{Kind: orchestrator.ActionSwap, Token: solana.NativeSOL, ToToken: stable}, nil
	}
	return orchestrator.Action{Kind: orchestrator.ActionSwap, Token: stable, ToToken: solana.NativeSOL}, nil
}
