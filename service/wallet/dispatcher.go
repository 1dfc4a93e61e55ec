package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/walletrunner/service/nats"
	"github.com/brojonat/walletrunner/service/orchestrator"
	"github.com/brojonat/walletrunner/service/solana"
	solanago "github.com/gagliardetto/solana-go"
)

// Ledger is the chain access the workflows need. *solana.Client implements it.
type Ledger interface {
	Balance(ctx context.Context, owner solanago.PublicKey, token solana.TokenDescriptor) (solana.Amount, error)
	AwaitBalance(ctx context.Context, owner solanago.PublicKey, token solana.TokenDescriptor, atLeast solana.Amount, opts solana.AwaitBalanceOptions) (solana.Amount, error)
	Execute(ctx context.Context, ixs []solanago.Instruction, payer *solana.KeyPair, signers ...*solana.KeyPair) (*solana.Receipt, error)
}

// EventPublisher receives an event for every transaction that reached an outcome.
type EventPublisher interface {
	PublishTransaction(ctx context.Context, event *nats.TransactionEvent) error
}

// Session is a wallet record paired with its parsed key for the duration of
// one workflow call. Ledger, when set, replaces the dispatcher's ledger for
// this wallet, e.g. to route its RPC traffic through the wallet's proxy.
type Session struct {
	Record *Record
	Key    *solana.KeyPair
	Ledger Ledger
}

func (s *Session) WalletID() int64       { return s.Record.ID }
func (s *Session) WalletAddress() string { return s.Record.Address }

// Dispatcher interprets orchestrator actions against the chain and the
// external collaborators.
type Dispatcher struct {
	ledger     Ledger
	store      Store
	withdrawer Withdrawer
	swapper    Swapper
	stats      StatsSource
	events     EventPublisher
	settings   Settings
	logger     *slog.Logger
}

var _ orchestrator.Dispatcher[*Session] = (*Dispatcher)(nil)

func (d *Dispatcher) ledgerFor(s *Session) Ledger {
	if s.Ledger != nil {
		return s.Ledger
	}
	return d.ledger
}

// Dispatch runs a single action for s.
func (d *Dispatcher) Dispatch(ctx context.Context, s *Session, a orchestrator.Action) (orchestrator.Result, error) {
	switch a.Kind {
	case orchestrator.ActionTransfer:
		return d.transfer(ctx, s, a)
	case orchestrator.ActionTokenTransfer:
		return d.tokenTransfer(ctx, s, a)
	case orchestrator.ActionWithdraw:
		return d.withdraw(ctx, s, a)
	case orchestrator.ActionAwaitBalance:
		return d.awaitBalance(ctx, s, a)
	case orchestrator.ActionSwap:
		return d.swap(ctx, s, a)
	case orchestrator.ActionSweep:
		return d.sweep(ctx, s)
	case orchestrator.ActionSyncStats:
		return d.syncStats(ctx, s)
	}
	return orchestrator.Result{}, fmt.Errorf("unknown action kind %q", a.Kind)
}

func (d *Dispatcher) transfer(ctx context.Context, s *Session, a orchestrator.Action) (orchestrator.Result, error) {
	ix, err := solana.NativeTransfer(s.Key.PublicKey(), a.Recipient, a.Amount)
	if err != nil {
		return orchestrator.Result{}, err
	}
	return d.execute(ctx, s, a, []solanago.Instruction{ix})
}

func (d *Dispatcher) tokenTransfer(ctx context.Context, s *Session, a orchestrator.Action) (orchestrator.Result, error) {
	ixs, err := solana.TokenTransfer(s.Key.PublicKey(), a.Recipient, a.Token, a.Amount, true)
	if err != nil {
		return orchestrator.Result{}, err
	}
	return d.execute(ctx, s, a, ixs)
}

// execute lands ixs with the configured compute budget and publishes the receipt.
func (d *Dispatcher) execute(ctx context.Context, s *Session, a orchestrator.Action, ixs []solanago.Instruction) (orchestrator.Result, error) {
	ixs = solana.WithComputeBudget(ixs, d.settings.ComputeUnitLimit, d.settings.PriorityFee)
	receipt, err := d.ledgerFor(s).Execute(ctx, ixs, s.Key)
	if receipt != nil {
		d.publish(ctx, s, a, receipt)
	}
	if err != nil {
		return orchestrator.Result{}, err
	}
	return orchestrator.Result{
		OK:     true,
		Detail: fmt.Sprintf("%s %s %s | https://solscan.io/tx/%s", a.Kind, a.Amount, a.Token, receipt.Signature),
	}, nil
}

func (d *Dispatcher) publish(ctx context.Context, s *Session, a orchestrator.Action, r *solana.Receipt) {
	if d.events == nil {
		return
	}
	recipient := ""
	if !a.Recipient.IsZero() {
		recipient = a.Recipient.String()
	}
	event := nats.FromReceipt(s.Record.ID, s.Record.Address, string(a.Kind), a.Token, a.Amount, recipient, r)
	if err := d.events.PublishTransaction(ctx, event); err != nil {
		d.logger.WarnContext(ctx, "failed to publish transaction event",
			"wallet_id", s.Record.ID,
			"signature", event.Signature,
			"error", err,
		)
	}
}

func (d *Dispatcher) withdraw(ctx context.Context, s *Session, a orchestrator.Action) (orchestrator.Result, error) {
	if d.withdrawer == nil {
		return orchestrator.Result{}, fmt.Errorf("withdraw: no exchange configured")
	}
	res, err := d.withdrawer.Withdraw(ctx, WithdrawalRequest{
		Destination: s.Record.Address,
		Amount:      a.Amount,
		Asset:       a.Token.Symbol,
		Chain:       d.settings.WithdrawChain,
	})
	if err != nil {
		return orchestrator.Result{}, fmt.Errorf("withdraw: %w", err)
	}
	detail := fmt.Sprintf("withdraw %s %s: %s", a.Amount, a.Token, res.Detail)
	if res.ID != "" {
		detail += " (id " + res.ID + ")"
	}
	return orchestrator.Result{OK: res.OK, Detail: detail}, nil
}

func (d *Dispatcher) awaitBalance(ctx context.Context, s *Session, a orchestrator.Action) (orchestrator.Result, error) {
	if err := orchestrator.Sleep(ctx, d.settings.WithdrawSettle); err != nil {
		return orchestrator.Result{}, err
	}
	bal, err := d.ledgerFor(s).AwaitBalance(ctx, s.Key.PublicKey(), a.Token, a.Amount, solana.AwaitBalanceOptions{
		Timeout:     d.settings.BalanceTimeout,
		MinInterval: d.settings.BalancePoll.Min,
		MaxInterval: d.settings.BalancePoll.Max,
	})
	if err != nil {
		return orchestrator.Result{}, err
	}
	return orchestrator.Result{OK: true, Detail: fmt.Sprintf("balance %s %s", bal, a.Token)}, nil
}

// swap moves a.Amount of a.Token into a.ToToken. A zero amount swaps the
// spendable balance: everything for tokens, the balance minus a commission
// reserve for SOL.
func (d *Dispatcher) swap(ctx context.Context, s *Session, a orchestrator.Action) (orchestrator.Result, error) {
	if d.swapper == nil {
		return orchestrator.Result{}, fmt.Errorf("swap: no swapper configured")
	}
	amount := a.Amount
	if amount.IsZero() {
		var err error
		amount, err = d.spendable(ctx, s, a.Token)
		if err != nil {
			return orchestrator.Result{}, err
		}
		if amount.IsZero() {
			return orchestrator.Result{OK: true, Detail: fmt.Sprintf("no %s to swap", a.Token)}, nil
		}
	}
	return d.swapper.Swap(ctx, s.Key, a.Token, a.ToToken, amount)
}

func (d *Dispatcher) spendable(ctx context.Context, s *Session, tok solana.TokenDescriptor) (solana.Amount, error) {
	bal, err := d.ledgerFor(s).Balance(ctx, s.Key.PublicKey(), tok)
	if err != nil {
		return solana.Amount{}, err
	}
	if !tok.IsNative() {
		return bal, nil
	}
	reserve, err := d.settings.CommissionReserve.Draw(tok.Decimals)
	if err != nil {
		return solana.Amount{}, err
	}
	if bal.Cmp(reserve) <= 0 {
		return tok.Amount(0), nil
	}
	return bal.Sub(reserve)
}

// sweep sends the SOL balance, minus a small reserve, to the deposit address.
func (d *Dispatcher) sweep(ctx context.Context, s *Session) (orchestrator.Result, error) {
	if s.Record.DepositAddress == nil || *s.Record.DepositAddress == "" {
		return orchestrator.Result{}, ErrNoDepositAddress
	}
	dest, err := solanago.PublicKeyFromBase58(*s.Record.DepositAddress)
	if err != nil {
		return orchestrator.Result{}, fmt.Errorf("deposit address: %w", err)
	}

	bal, err := d.ledgerFor(s).Balance(ctx, s.Key.PublicKey(), solana.NativeSOL)
	if err != nil {
		return orchestrator.Result{}, err
	}
	reserve, err := d.settings.SweepReserve.Draw(solana.NativeDecimals)
	if err != nil {
		return orchestrator.Result{}, err
	}
	if bal.Cmp(reserve) <= 0 {
		return orchestrator.Result{}, fmt.Errorf("sweep: balance %s does not cover reserve %s", bal, reserve)
	}
	amount, err := bal.Sub(reserve)
	if err != nil {
		return orchestrator.Result{}, err
	}

	action := orchestrator.Action{Kind: orchestrator.ActionSweep, Token: solana.NativeSOL, Amount: amount, Recipient: dest}
	return d.transfer(ctx, s, action)
}

func (d *Dispatcher) syncStats(ctx context.Context, s *Session) (orchestrator.Result, error) {
	if d.stats == nil {
		return orchestrator.Result{}, fmt.Errorf("sync stats: no stats source configured")
	}
	stats, err := d.stats.WalletStats(ctx, s.Record.Address)
	if err != nil {
		return orchestrator.Result{}, fmt.Errorf("sync stats: %w", err)
	}
	if err := d.store.UpdateWalletStats(ctx, s.Record.ID, stats); err != nil {
		return orchestrator.Result{}, fmt.Errorf("sync stats: %w", err)
	}
	s.Record.Stats = stats
	s.Record.UpdatedAt = time.Now()
	return orchestrator.Result{
		OK: true,
		Detail: fmt.Sprintf("rank %q | volume %d | edge %.2f | trades %d",
			stats.Rank, stats.VolumeUSD, stats.TotalEdgeUSD, stats.TotalTrades),
	}, nil
}
