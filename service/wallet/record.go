package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/walletrunner/service/orchestrator"
	"github.com/brojonat/walletrunner/service/solana"
)

// ErrNoDepositAddress is returned by Sweep for wallets without a deposit address.
var ErrNoDepositAddress = errors.New("no deposit address configured")

// ErrCannotRefill is returned when the SOL balance is too low for commissions
// and no stable balance is large enough to swap back.
var ErrCannotRefill = errors.New("cannot refill SOL")

// Stats are the trailing usage statistics written back after each cycle.
type Stats struct {
	TotalTrades  int64
	VolumeUSD    int64
	TotalEdgeUSD float64
	Rank         string
	Completed    bool
}

// Record is a stored wallet. PrivateKey may be plain or encrypted; it is only
// parsed inside a workflow call.
type Record struct {
	ID             int64
	Address        string
	PrivateKey     string
	Proxy          *string
	DepositAddress *string
	InviteCode     string
	Stats          Stats
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (r *Record) WalletID() int64       { return r.ID }
func (r *Record) WalletAddress() string { return r.Address }

// LogValue keeps the private key out of logs.
func (r *Record) LogValue() slog.Value {
	return slog.GroupValue(slog.Int64("id", r.ID), slog.String("address", r.Address))
}

func (r *Record) String() string { return fmt.Sprintf("[%d | %s]", r.ID, r.Address) }

// Store is the wallet persistence collaborator.
type Store interface {
	ListWallets(ctx context.Context) ([]*Record, error)
	GetWalletByAddress(ctx context.Context, address string) (*Record, error)
	UpdateWalletStats(ctx context.Context, id int64, stats Stats) error
}

// WithdrawalRequest asks an exchange to send funds to a wallet.
type WithdrawalRequest struct {
	Destination string
	Amount      solana.Amount
	Asset       string
	Chain       string
}

// WithdrawalResult is the exchange's structured answer.
type WithdrawalResult struct {
	OK     bool
	ID     string
	Detail string
}

// Withdrawer moves funds from an exchange account to a wallet.
type Withdrawer interface {
	Withdraw(ctx context.Context, req WithdrawalRequest) (WithdrawalResult, error)
}

// Swapper executes a token swap on behalf of owner.
type Swapper interface {
	Swap(ctx context.Context, owner *solana.KeyPair, from, to solana.TokenDescriptor, amount solana.Amount) (orchestrator.Result, error)
}

// StatsSource reports a wallet's current usage statistics.
type StatsSource interface {
	WalletStats(ctx context.Context, address string) (Stats, error)
}
