package solana

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// Well-known program IDs used when building transactions.
var (
	// ComputeBudgetProgramID owns SetComputeUnitLimit / SetComputeUnitPrice.
	ComputeBudgetProgramID = solana.ComputeBudget

	// AssociatedTokenProgramID derives associated token accounts.
	AssociatedTokenProgramID = solana.SPLAssociatedTokenAccountProgramID
)

// TokenDescriptor identifies a token by its mint and owning program.
type TokenDescriptor struct {
	Symbol   string
	Mint     solana.PublicKey
	Program  solana.PublicKey
	Decimals uint8
}

// Well-known tokens.
var (
	NativeSOL = TokenDescriptor{
		Symbol:   "SOL",
		Mint:     solana.SolMint,
		Program:  solana.TokenProgramID,
		Decimals: NativeDecimals,
	}
	USDC = TokenDescriptor{
		Symbol:   "USDC",
		Mint:     solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"),
		Program:  solana.TokenProgramID,
		Decimals: 6,
	}
	USDT = TokenDescriptor{
		Symbol:   "USDT",
		Mint:     solana.MustPublicKeyFromBase58("Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"),
		Program:  solana.TokenProgramID,
		Decimals: 6,
	}
)

var knownTokens = []TokenDescriptor{NativeSOL, USDC, USDT}

// IsNative reports whether the descriptor is the chain's native asset.
func (t TokenDescriptor) IsNative() bool {
	return t.Mint.Equals(NativeSOL.Mint)
}

// Amount builds an amount of this token from raw units.
func (t TokenDescriptor) Amount(raw uint64) Amount {
	return AmountFromRaw(raw, t.Decimals)
}

func (t TokenDescriptor) String() string { return t.Symbol }

// TokenBySymbol looks up one of the well-known tokens, case-insensitively.
func TokenBySymbol(symbol string) (TokenDescriptor, error) {
	for _, t := range knownTokens {
		if strings.EqualFold(t.Symbol, symbol) {
			return t, nil
		}
	}
	return TokenDescriptor{}, fmt.Errorf("unknown token %q", symbol)
}
