package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/walletrunner/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetBlockHeight(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	IsBlockhashValid(ctx context.Context, hash solana.Hash, commitment rpc.CommitmentType) (*rpc.IsValidBlockhashResult, error)
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
	GetSignatureStatuses(ctx context.Context, searchHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	SimulateTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts *rpc.SimulateTransactionOpts) (*rpc.SimulateTransactionResponse, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
}

// Options tunes submission and confirmation. Zero values select defaults.
type Options struct {
	Commitment          rpc.CommitmentType
	SkipSimulation      bool
	ConfirmTimeout      time.Duration
	ConfirmPollInterval time.Duration
	// MaxRecompiles bounds how often an expired blockhash is refreshed before giving up.
	MaxRecompiles int
}

func (o Options) withDefaults() Options {
	if o.Commitment == "" {
		o.Commitment = rpc.CommitmentConfirmed
	}
	if o.ConfirmTimeout <= 0 {
		o.ConfirmTimeout = DefaultConfirmTimeout
	}
	if o.ConfirmPollInterval <= 0 {
		o.ConfirmPollInterval = DefaultConfirmPollInterval
	}
	if o.MaxRecompiles <= 0 {
		o.MaxRecompiles = 3
	}
	return o
}

// Client builds, submits and confirms transactions for wallets.
// It wraps the RPC client with domain-specific operations.
type Client struct {
	rpc       RPCClient
	obs       rpcObserver
	opts      Options
	submitter *Submitter
	confirmer *Confirmer
}

// NewClient creates a new Solana client.
// The endpoint parameter is used for metrics labeling (e.g., "mainnet", "devnet", or RPC hostname).
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger, opts Options) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	obs := rpcObserver{logger: logger, metrics: m, endpoint: endpoint}
	return &Client{
		rpc:  rpcClient,
		obs:  obs,
		opts: opts,
		submitter: &Submitter{
			rpc:        rpcClient,
			obs:        obs,
			simulate:   !opts.SkipSimulation,
			commitment: opts.Commitment,
		},
		confirmer: &Confirmer{
			rpc:          rpcClient,
			obs:          obs,
			pollInterval: opts.ConfirmPollInterval,
			target:       rpc.ConfirmationStatusType(opts.Commitment),
		},
	}
}

// Submitter exposes the client's submitter.
func (c *Client) Submitter() *Submitter { return c.submitter }

// Confirmer exposes the client's confirmer.
func (c *Client) Confirmer() *Confirmer { return c.confirmer }

// LatestBlockhash fetches a recent blockhash and its expiry height.
func (c *Client) LatestBlockhash(ctx context.Context) (Blockhash, error) {
	start := time.Now()
	res, err := c.rpc.GetLatestBlockhash(ctx, c.opts.Commitment)
	if err := c.obs.observe("GetLatestBlockhash", start, err); err != nil {
		return Blockhash{}, err
	}
	if res == nil || res.Value == nil {
		return Blockhash{}, transient("GetLatestBlockhash", errors.New("empty response"))
	}
	return Blockhash{Hash: res.Value.Blockhash, LastValidBlockHeight: res.Value.LastValidBlockHeight}, nil
}

// BlockHeight returns the current block height.
func (c *Client) BlockHeight(ctx context.Context) (uint64, error) {
	start := time.Now()
	h, err := c.rpc.GetBlockHeight(ctx, c.opts.Commitment)
	if err := c.obs.observe("GetBlockHeight", start, err); err != nil {
		return 0, err
	}
	return h, nil
}

// Receipt describes a transaction that reached a terminal outcome.
type Receipt struct {
	Signature solana.Signature
	Outcome   Outcome
	Budget    ComputeBudgetInfo
	Elapsed   time.Duration
}

// Execute compiles ixs against a fresh blockhash, submits it signed by payer
// and signers, and waits for a terminal outcome. The message is recompiled
// when the blockhash expired before submission. A non-nil Receipt is returned
// whenever a signature was obtained, even if confirmation failed.
func (c *Client) Execute(ctx context.Context, ixs []solana.Instruction, payer *KeyPair, signers ...*KeyPair) (*Receipt, error) {
	if payer == nil {
		return nil, fmt.Errorf("%w: payer", ErrMissingSigner)
	}
	budget, err := ScanComputeBudget(ixs)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	all := append([]*KeyPair{payer}, signers...)

	var sig solana.Signature
	submitted := false
	for attempt := 0; attempt <= c.opts.MaxRecompiles && !submitted; attempt++ {
		bh, err := c.LatestBlockhash(ctx)
		if err != nil {
			return nil, err
		}
		msg, err := CompileMessage(ixs, payer.PublicKey(), bh)
		if err != nil {
			return nil, err
		}
		height, err := c.BlockHeight(ctx)
		if err != nil {
			return nil, err
		}
		if msg.Expired(height) {
			c.obs.metrics.RecordBlockhashRecompile()
			c.obs.logger.WarnContext(ctx, "blockhash expired before submission, recompiling",
				"wallet", payer.PublicKey().String(),
				"attempt", attempt+1,
				"block_height", height,
				"last_valid_block_height", bh.LastValidBlockHeight,
			)
			continue
		}
		sig, err = c.submitter.Submit(ctx, msg, all...)
		if err != nil {
			return nil, err
		}
		submitted = true
	}
	if !submitted {
		return nil, ErrBlockhashExpired
	}

	c.obs.metrics.RecordPriorityFee(budget.MaxFee.Raw())
	outcome, err := c.confirmer.AwaitConfirmation(ctx, sig, c.opts.ConfirmTimeout)
	receipt := &Receipt{
		Signature: sig,
		Outcome:   outcome,
		Budget:    budget,
		Elapsed:   time.Since(started),
	}
	if err != nil {
		return receipt, err
	}

	c.obs.logger.InfoContext(ctx, "transaction landed",
		"wallet", payer.PublicKey().String(),
		"signature", sig.String(),
		"max_priority_fee", budget.MaxFee.String(),
		"elapsed", receipt.Elapsed,
	)
	return receipt, nil
}

// Balance returns owner's balance of token. A token account that does not
// exist yet reads as zero.
func (c *Client) Balance(ctx context.Context, owner solana.PublicKey, token TokenDescriptor) (Amount, error) {
	if token.IsNative() {
		start := time.Now()
		res, err := c.rpc.GetBalance(ctx, owner, c.opts.Commitment)
		if err := c.obs.observe("GetBalance", start, err); err != nil {
			return Amount{}, err
		}
		if res == nil {
			return Lamports(0), nil
		}
		return Lamports(res.Value), nil
	}

	ata, err := FindAssociatedTokenAddress(owner, token)
	if err != nil {
		return Amount{}, err
	}
	start := time.Now()
	res, err := c.rpc.GetTokenAccountBalance(ctx, ata, c.opts.Commitment)
	if isMissingAccount(err) {
		c.obs.metrics.RecordRPCCall("GetTokenAccountBalance", "success", c.obs.endpoint, time.Since(start).Seconds())
		return token.Amount(0), nil
	}
	if err := c.obs.observe("GetTokenAccountBalance", start, err); err != nil {
		return Amount{}, err
	}
	if res == nil || res.Value == nil {
		return token.Amount(0), nil
	}
	raw, err := strconv.ParseUint(res.Value.Amount, 10, 64)
	if err != nil {
		return Amount{}, fmt.Errorf("parse token balance %q: %w", res.Value.Amount, err)
	}
	return AmountFromRaw(raw, token.Decimals), nil
}

func isMissingAccount(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, rpc.ErrNotFound) {
		return true
	}
	var rpcErr *jsonrpc.RPCError
	return errors.As(err, &rpcErr) && strings.Contains(rpcErr.Message, "could not find account")
}

// AwaitBalanceOptions controls AwaitBalance polling.
type AwaitBalanceOptions struct {
	Timeout time.Duration
	// Each retry sleeps a uniformly drawn interval in [MinInterval, MaxInterval].
	MinInterval time.Duration
	MaxInterval time.Duration
}

// AwaitBalance polls owner's balance until it reaches atLeast or the timeout
// elapses, returning ErrBalanceTimeout in the latter case. Transient RPC
// failures are retried on the same schedule.
func (c *Client) AwaitBalance(ctx context.Context, owner solana.PublicKey, token TokenDescriptor, atLeast Amount, opts AwaitBalanceOptions) (Amount, error) {
	deadline := time.Now().Add(opts.Timeout)
	for {
		bal, err := c.Balance(ctx, owner, token)
		switch {
		case err != nil && !IsRetryable(err):
			return Amount{}, err
		case err != nil:
			c.obs.logger.WarnContext(ctx, "balance fetch failed, will retry",
				"wallet", owner.String(), "token", token.Symbol, "error", err)
		case bal.Cmp(atLeast) >= 0:
			return bal, nil
		}

		if !time.Now().Before(deadline) {
			return bal, fmt.Errorf("%w: %s %s below %s after %s",
				ErrBalanceTimeout, owner, token.Symbol, atLeast, opts.Timeout)
		}

		wait := jitter(opts.MinInterval, opts.MaxInterval)
		if remaining := time.Until(deadline); wait > remaining {
			wait = remaining
		}
		c.obs.logger.InfoContext(ctx, "awaiting balance",
			"wallet", owner.String(),
			"token", token.Symbol,
			"balance", bal.String(),
			"want", atLeast.String(),
			"retry_in", wait,
		)
		select {
		case <-ctx.Done():
			return bal, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func jitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}

// Diagnostics is a snapshot of a serialized transaction's fee directives and
// the validity of its blockhash.
type Diagnostics struct {
	Budget             ComputeBudgetInfo
	EffectiveLimit     uint32
	Transfers          []TransferSummary
	TxBlockhash        solana.Hash
	TxBlockhashValid   *bool
	LatestBlockhash    Blockhash
	CurrentBlockHeight uint64
}

// BlockhashDiagnostics inspects tx (typically produced by an external
// builder) and reports whether it can still land. A failing validity query is
// reported as a nil TxBlockhashValid rather than an error.
func (c *Client) BlockhashDiagnostics(ctx context.Context, tx *solana.Transaction) (*Diagnostics, error) {
	budget, err := ScanCompiledMessage(&tx.Message)
	if err != nil {
		return nil, err
	}
	latest, err := c.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	height, err := c.BlockHeight(ctx)
	if err != nil {
		return nil, err
	}

	d := &Diagnostics{
		Budget:             budget,
		EffectiveLimit:     budget.EffectiveLimit(),
		Transfers:          InspectMessage(&tx.Message),
		TxBlockhash:        tx.Message.RecentBlockhash,
		LatestBlockhash:    latest,
		CurrentBlockHeight: height,
	}

	start := time.Now()
	valid, err := c.rpc.IsBlockhashValid(ctx, tx.Message.RecentBlockhash, c.opts.Commitment)
	if err := c.obs.observe("IsBlockhashValid", start, err); err != nil {
		c.obs.logger.WarnContext(ctx, "blockhash validity query failed", "error", err)
	} else if valid != nil {
		v := valid.Value
		d.TxBlockhashValid = &v
	}

	if budget.MicroLamportPrice > 0 {
		fee, err := PriorityFeeLamports(d.EffectiveLimit, budget.MicroLamportPrice)
		if err != nil {
			return nil, err
		}
		c.obs.logger.InfoContext(ctx, "compute budget",
			"limit", d.EffectiveLimit,
			"micro_lamports", budget.MicroLamportPrice,
			"max_fee", Lamports(fee).String(),
		)
	} else {
		c.obs.logger.InfoContext(ctx, "compute budget", "limit", d.EffectiveLimit, "price", "unset")
	}
	c.obs.logger.InfoContext(ctx, "blockhashes",
		"tx", d.TxBlockhash.String(),
		"latest", latest.Hash.String(),
		"current_height", height,
		"last_valid", latest.LastValidBlockHeight,
		"valid", d.TxBlockhashValid,
	)
	return d, nil
}
