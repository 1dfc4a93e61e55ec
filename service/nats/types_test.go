package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/brojonat/walletrunner/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromReceipt(t *testing.T) {
	var sig solanago.Signature
	sig[0] = 7
	budget, err := solana.NewComputeBudgetInfo(200_000, 5_000)
	require.NoError(t, err)
	receipt := &solana.Receipt{
		Signature: sig,
		Outcome:   solana.OutcomeConfirmed,
		Budget:    budget,
		Elapsed:   1500 * time.Millisecond,
	}

	event := FromReceipt(3, "WalletAddr", "sweep", solana.NativeSOL, solana.Lamports(1_250_000_000), "DepositAddr", receipt)

	assert.Equal(t, sig.String(), event.Signature)
	assert.Equal(t, int64(3), event.WalletID)
	assert.Equal(t, "sweep", event.Action)
	assert.Equal(t, "1.25", event.Amount)
	assert.Equal(t, "SOL", event.TokenType)
	assert.Equal(t, "confirmed", event.Outcome)
	assert.Equal(t, uint32(200_000), event.ComputeUnitLimit)
	assert.Equal(t, uint64(1_000), event.MaxFeeLamports)
	assert.Equal(t, int64(1500), event.ConfirmMillis)
	assert.False(t, event.PublishedAt.IsZero())

	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"recipient":"DepositAddr"`)
}

func TestFromReceipt_ZeroAmountOmitted(t *testing.T) {
	event := FromReceipt(1, "w", "swap", solana.USDC, solana.USDC.Amount(0), "", &solana.Receipt{Outcome: solana.OutcomeTimedOut})
	assert.Empty(t, event.Amount)
	assert.Equal(t, "timed_out", event.Outcome)

	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"amount"`)
	assert.NotContains(t, string(data), `"recipient"`)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "walletrunner.txns.abc", Subject("abc"))
}

func TestMockPublisher(t *testing.T) {
	m := NewMockPublisher()
	ctx := context.Background()

	require.NoError(t, m.PublishTransactionBatch(ctx, []*TransactionEvent{
		{Signature: "a", WalletAddress: "w1"},
		{Signature: "b", WalletAddress: "w2"},
		{Signature: "c", WalletAddress: "w1"},
	}))
	assert.Len(t, m.Events(), 3)
	assert.Len(t, m.EventsForWallet("w1"), 2)

	m.SetPublishError(errors.New("nats down"))
	assert.Error(t, m.PublishTransaction(ctx, &TransactionEvent{Signature: "d"}))
	assert.Len(t, m.Events(), 3)

	require.NoError(t, m.Close())
	assert.True(t, m.IsClosed())
}
