package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
)

// createIdempotentTag selects CreateIdempotent on the associated-token program.
const createIdempotentTag byte = 1

// NativeTransfer builds a system-program transfer of amount lamports.
func NativeTransfer(from, to solana.PublicKey, amount Amount) (solana.Instruction, error) {
	if amount.Decimals() != NativeDecimals {
		return nil, fmt.Errorf("native transfer needs %d decimals, got %d", NativeDecimals, amount.Decimals())
	}
	if amount.IsZero() {
		return nil, fmt.Errorf("native transfer of zero lamports to %s", to)
	}
	return system.NewTransferInstruction(amount.Raw(), from, to).Build(), nil
}

// CreateAssociatedTokenAccount builds an idempotent creation of owner's
// associated token account for tok, paid by payer.
func CreateAssociatedTokenAccount(payer, owner solana.PublicKey, tok TokenDescriptor) (solana.Instruction, error) {
	ata, err := FindAssociatedTokenAddress(owner, tok)
	if err != nil {
		return nil, err
	}
	accounts := solana.AccountMetaSlice{
		solana.Meta(payer).WRITE().SIGNER(),
		solana.Meta(ata).WRITE(),
		solana.Meta(owner),
		solana.Meta(tok.Mint),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(tok.Program),
	}
	return solana.NewInstruction(AssociatedTokenProgramID, accounts, []byte{createIdempotentTag}), nil
}

// TokenTransfer builds a TransferChecked between the associated token accounts
// of owner and recipient. The instruction targets tok.Program so Token-2022
// mints work. With createDestination the recipient's account is created first
// when missing, paid by owner.
func TokenTransfer(owner, recipient solana.PublicKey, tok TokenDescriptor, amount Amount, createDestination bool) ([]solana.Instruction, error) {
	if tok.IsNative() {
		ix, err := NativeTransfer(owner, recipient, amount)
		if err != nil {
			return nil, err
		}
		return []solana.Instruction{ix}, nil
	}
	if amount.Decimals() != tok.Decimals {
		return nil, fmt.Errorf("%s transfer needs %d decimals, got %d", tok.Symbol, tok.Decimals, amount.Decimals())
	}

	source, err := FindAssociatedTokenAddress(owner, tok)
	if err != nil {
		return nil, err
	}
	dest, err := FindAssociatedTokenAddress(recipient, tok)
	if err != nil {
		return nil, err
	}

	checked := token.NewTransferCheckedInstruction(
		amount.Raw(), tok.Decimals, source, tok.Mint, dest, owner, nil,
	).Build()
	data, err := checked.Data()
	if err != nil {
		return nil, fmt.Errorf("encode transfer: %w", err)
	}
	transfer := solana.NewInstruction(tok.Program, checked.Accounts(), data)

	var ixs []solana.Instruction
	if createDestination {
		create, err := CreateAssociatedTokenAccount(owner, recipient, tok)
		if err != nil {
			return nil, err
		}
		ixs = append(ixs, create)
	}
	return append(ixs, transfer), nil
}

// WithComputeBudget prepends fee directives to ixs. Zero values are omitted.
func WithComputeBudget(ixs []solana.Instruction, unitLimit uint32, microLamports uint64) []solana.Instruction {
	out := make([]solana.Instruction, 0, len(ixs)+2)
	if unitLimit > 0 {
		out = append(out, SetComputeUnitLimit(unitLimit))
	}
	if microLamports > 0 {
		out = append(out, SetComputeUnitPrice(microLamports))
	}
	return append(out, ixs...)
}
