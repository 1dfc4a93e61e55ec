package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const (
	// MaxAccountLocks is the number of distinct accounts a transaction may reference.
	MaxAccountLocks = 64

	// MaxPacketSize is the largest serialized transaction the network accepts.
	MaxPacketSize = 1232
)

// Blockhash is a recent blockhash and the last block height at which a
// transaction referencing it is still accepted.
type Blockhash struct {
	Hash                 solana.Hash
	LastValidBlockHeight uint64
}

// CompiledMessage is an unsigned v0 message bound to a blockhash.
type CompiledMessage struct {
	message   solana.Message
	blockhash Blockhash
	payer     solana.PublicKey
	size      int
}

// CompileMessage orders accounts, deduplicates them and produces a v0 message
// with payer as the first signer. It performs no I/O.
func CompileMessage(ixs []solana.Instruction, payer solana.PublicKey, bh Blockhash) (*CompiledMessage, error) {
	if len(ixs) == 0 {
		return nil, ErrEmptyTransaction
	}
	if n := uniqueAccounts(ixs, payer); n > MaxAccountLocks {
		return nil, fmt.Errorf("%w: %d unique accounts, limit %d", ErrTooManyAccounts, n, MaxAccountLocks)
	}

	tx, err := solana.NewTransaction(ixs, bh.Hash, solana.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("compile message: %w", err)
	}
	tx.Message.SetVersion(solana.MessageVersionV0)

	// Unsigned marshal pads zero signatures, so this is the signed wire size.
	wire, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	if len(wire) > MaxPacketSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds packet limit of %d", ErrTooManyAccounts, len(wire), MaxPacketSize)
	}

	return &CompiledMessage{
		message:   tx.Message,
		blockhash: bh,
		payer:     payer,
		size:      len(wire),
	}, nil
}

func uniqueAccounts(ixs []solana.Instruction, payer solana.PublicKey) int {
	seen := map[solana.PublicKey]struct{}{payer: {}}
	for _, ix := range ixs {
		seen[ix.ProgramID()] = struct{}{}
		for _, meta := range ix.Accounts() {
			seen[meta.PublicKey] = struct{}{}
		}
	}
	return len(seen)
}

// Message returns a copy of the compiled message.
func (m *CompiledMessage) Message() solana.Message {
	msg := m.message
	msg.AccountKeys = append(solana.PublicKeySlice(nil), m.message.AccountKeys...)
	msg.Instructions = append([]solana.CompiledInstruction(nil), m.message.Instructions...)
	return msg
}

// Blockhash returns the blockhash the message is bound to.
func (m *CompiledMessage) Blockhash() Blockhash { return m.blockhash }

// Payer returns the fee payer.
func (m *CompiledMessage) Payer() solana.PublicKey { return m.payer }

// Signers returns every account whose signature the message requires, payer first.
func (m *CompiledMessage) Signers() []solana.PublicKey {
	return m.message.Signers()
}

// WireSize is the serialized size of the signed transaction in bytes.
func (m *CompiledMessage) WireSize() int { return m.size }

// Expired reports whether the blockhash can no longer land at currentHeight.
func (m *CompiledMessage) Expired(currentHeight uint64) bool {
	return currentHeight > m.blockhash.LastValidBlockHeight
}

// ComputeBudget scans the compiled instructions for fee directives.
func (m *CompiledMessage) ComputeBudget() (ComputeBudgetInfo, error) {
	return ScanCompiledMessage(&m.message)
}

// transaction returns an unsigned transaction carrying a copy of the message.
func (m *CompiledMessage) transaction() *solana.Transaction {
	return &solana.Transaction{Message: m.Message()}
}
