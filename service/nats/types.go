package nats

import (
	"time"

	"github.com/brojonat/walletrunner/service/solana"
)

// TransactionEvent is published to "walletrunner.txns.{wallet_address}" each
// time a wallet transaction reaches a terminal outcome.
type TransactionEvent struct {
	Signature string `json:"signature"`

	WalletID      int64  `json:"wallet_id"`
	WalletAddress string `json:"wallet_address"`
	Recipient     string `json:"recipient,omitempty"`

	Action string `json:"action"`
	// Amount is rendered in the token's human units.
	Amount    string `json:"amount,omitempty"`
	TokenType string `json:"token_type"`

	Outcome          string `json:"outcome"`
	ComputeUnitLimit uint32 `json:"compute_unit_limit"`
	MicroLamports    uint64 `json:"micro_lamports"`
	MaxFeeLamports   uint64 `json:"max_fee_lamports"`
	ConfirmMillis    int64  `json:"confirm_ms"`

	PublishedAt time.Time `json:"published_at"`
}

// FromReceipt builds an event for a wallet action that produced receipt.
func FromReceipt(walletID int64, wallet, action string, token solana.TokenDescriptor, amount solana.Amount, recipient string, r *solana.Receipt) *TransactionEvent {
	event := &TransactionEvent{
		Signature:        r.Signature.String(),
		WalletID:         walletID,
		WalletAddress:    wallet,
		Recipient:        recipient,
		Action:           action,
		TokenType:        token.Symbol,
		Outcome:          r.Outcome.String(),
		ComputeUnitLimit: r.Budget.ComputeUnitLimit,
		MicroLamports:    r.Budget.MicroLamportPrice,
		MaxFeeLamports:   r.Budget.MaxFee.Raw(),
		ConfirmMillis:    r.Elapsed.Milliseconds(),
		PublishedAt:      time.Now().UTC(),
	}
	if !amount.IsZero() {
		event.Amount = amount.Human().String()
	}
	return event
}
