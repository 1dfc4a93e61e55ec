package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/walletrunner/service/metrics"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

const (
	DefaultConfirmTimeout      = 60 * time.Second
	DefaultConfirmPollInterval = time.Second
)

// Outcome is the terminal state of a submitted transaction.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeConfirmed
	OutcomeFailed
	OutcomeTimedOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "pending"
	}
}

// rpcObserver records timing and status for every RPC call made by the
// submitter, the confirmer and the client.
type rpcObserver struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string
}

func (o rpcObserver) observe(method string, start time.Time, err error) error {
	status := "success"
	if err != nil {
		status = "error"
		var httpErr *jsonrpc.HTTPError
		if errors.As(err, &httpErr) && httpErr.Code == 429 {
			o.metrics.RecordRateLimitHit(o.endpoint)
		}
	}
	o.metrics.RecordRPCCall(method, status, o.endpoint, time.Since(start).Seconds())
	if err == nil {
		return nil
	}
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("rpc %s: %w", method, err)
	}
	return transient(method, err)
}

// Submitter signs compiled messages, optionally simulates them and sends them.
type Submitter struct {
	rpc        RPCClient
	obs        rpcObserver
	simulate   bool
	commitment rpc.CommitmentType
}

// Submit signs msg with signers and sends it. When simulation is enabled a
// failing simulation returns a *SimulationError and nothing is sent.
func (s *Submitter) Submit(ctx context.Context, msg *CompiledMessage, signers ...*KeyPair) (solana.Signature, error) {
	keys := make(map[solana.PublicKey]solana.PrivateKey, len(signers))
	for _, kp := range signers {
		if kp != nil {
			keys[kp.PublicKey()] = kp.PrivateKey()
		}
	}
	for _, required := range msg.Signers() {
		if _, ok := keys[required]; !ok {
			return solana.Signature{}, fmt.Errorf("%w: %s", ErrMissingSigner, required)
		}
	}

	tx := msg.transaction()
	if _, err := tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if priv, ok := keys[pk]; ok {
			return &priv
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("sign transaction: %w", err)
	}

	if s.simulate {
		if err := s.simulateTx(ctx, tx); err != nil {
			return solana.Signature{}, err
		}
	}

	start := time.Now()
	sig, err := s.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       s.simulate,
		PreflightCommitment: s.commitment,
	})
	if err := s.obs.observe("SendTransaction", start, err); err != nil {
		return solana.Signature{}, err
	}

	s.obs.logger.DebugContext(ctx, "transaction sent",
		"signature", sig.String(),
		"payer", msg.Payer().String(),
		"wire_size", msg.WireSize(),
	)
	return sig, nil
}

func (s *Submitter) simulateTx(ctx context.Context, tx *solana.Transaction) error {
	start := time.Now()
	resp, err := s.rpc.SimulateTransactionWithOpts(ctx, tx, &rpc.SimulateTransactionOpts{
		SigVerify:  true,
		Commitment: s.commitment,
	})
	if err := s.obs.observe("SimulateTransaction", start, err); err != nil {
		return err
	}
	if resp == nil || resp.Value == nil {
		return &SimulationError{Reason: "empty simulation response"}
	}
	if resp.Value.Err != nil {
		return &SimulationError{Reason: fmt.Sprint(resp.Value.Err), Logs: resp.Value.Logs}
	}
	if resp.Value.UnitsConsumed != nil {
		s.obs.logger.DebugContext(ctx, "simulation succeeded", "units_consumed", *resp.Value.UnitsConsumed)
	}
	return nil
}

// Confirmer polls signature statuses until a terminal outcome.
type Confirmer struct {
	rpc          RPCClient
	obs          rpcObserver
	pollInterval time.Duration
	target       rpc.ConfirmationStatusType
}

// AwaitConfirmation polls on a fixed cadence, searching transaction history.
// An on-chain error yields OutcomeFailed with a *TransactionError; reaching
// the target commitment yields OutcomeConfirmed; exceeding timeout yields
// OutcomeTimedOut with ErrConfirmationTimedOut. Missing or pending statuses and
// transient fetch errors keep polling.
func (c *Confirmer) AwaitConfirmation(ctx context.Context, sig solana.Signature, timeout time.Duration) (Outcome, error) {
	started := time.Now()
	deadline := started.Add(timeout)
	polls := 0

	finish := func(o Outcome, err error) (Outcome, error) {
		c.obs.metrics.RecordTransactionOutcome(o.String(), polls, time.Since(started).Seconds())
		return o, err
	}

	for {
		polls++
		outcome, err := c.poll(ctx, sig)
		switch {
		case err != nil && outcome == OutcomeFailed:
			return finish(outcome, err)
		case err != nil:
			c.obs.logger.WarnContext(ctx, "signature status fetch failed, will retry",
				"signature", sig.String(),
				"poll", polls,
				"error", err,
			)
			c.obs.metrics.RecordRPCRetry("GetSignatureStatuses", "status_error")
		case outcome == OutcomeConfirmed:
			c.obs.logger.DebugContext(ctx, "transaction confirmed",
				"signature", sig.String(),
				"polls", polls,
			)
			return finish(outcome, nil)
		}

		if time.Now().After(deadline) {
			return finish(OutcomeTimedOut, fmt.Errorf("%w: %s after %s", ErrConfirmationTimedOut, sig, timeout))
		}

		select {
		case <-ctx.Done():
			return OutcomePending, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

// poll returns OutcomePending for unknown and in-flight signatures.
func (c *Confirmer) poll(ctx context.Context, sig solana.Signature) (Outcome, error) {
	start := time.Now()
	resp, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if errors.Is(err, rpc.ErrNotFound) {
		err = nil
	}
	if err := c.obs.observe("GetSignatureStatuses", start, err); err != nil {
		return OutcomePending, err
	}
	if resp == nil || len(resp.Value) == 0 || resp.Value[0] == nil {
		return OutcomePending, nil
	}

	status := resp.Value[0]
	if status.Err != nil {
		return OutcomeFailed, &TransactionError{Signature: sig, Reason: fmt.Sprint(status.Err)}
	}
	if reached(status.ConfirmationStatus, c.target) {
		return OutcomeConfirmed, nil
	}
	return OutcomePending, nil
}

func commitmentRank(s rpc.ConfirmationStatusType) int {
	switch s {
	case rpc.ConfirmationStatusProcessed:
		return 1
	case rpc.ConfirmationStatusConfirmed:
		return 2
	case rpc.ConfirmationStatusFinalized:
		return 3
	}
	return 0
}

func reached(status, target rpc.ConfirmationStatusType) bool {
	r := commitmentRank(status)
	return r > 0 && r >= commitmentRank(target)
}
