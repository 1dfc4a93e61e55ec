package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// bumpCandidates is the number of bump seeds tried: 255 down to 0 inclusive.
const bumpCandidates = 256

// createProgramAddress is swapped in tests to count attempts.
var createProgramAddress = solana.CreateProgramAddress

// FindProgramAddress searches bump seeds from 255 down to 0 and returns the
// first address that lies off the ed25519 curve. The search is deterministic
// for a given seed list and program.
func FindProgramAddress(seeds [][]byte, program solana.PublicKey) (solana.PublicKey, uint8, error) {
	if len(seeds)+1 > solana.MaxSeeds {
		return solana.PublicKey{}, 0, fmt.Errorf("%w: %d seeds exceeds limit of %d", ErrNoViableAddress, len(seeds), solana.MaxSeeds-1)
	}
	for i, seed := range seeds {
		if len(seed) > solana.MaxSeedLength {
			return solana.PublicKey{}, 0, fmt.Errorf("%w: seed %d is %d bytes", ErrNoViableAddress, i, len(seed))
		}
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for n := 0; n < bumpCandidates; n++ {
		bump := uint8(255 - n)
		withBump[len(seeds)] = []byte{bump}
		addr, err := createProgramAddress(withBump, program)
		if err == nil {
			return addr, bump, nil
		}
	}
	return solana.PublicKey{}, 0, ErrNoViableAddress
}

// FindAssociatedTokenAddress derives the associated token account of owner for token.
// The token's own program is used as a seed, so Token-2022 mints resolve correctly.
func FindAssociatedTokenAddress(owner solana.PublicKey, token TokenDescriptor) (solana.PublicKey, error) {
	addr, _, err := FindProgramAddress(
		[][]byte{owner[:], token.Program[:], token.Mint[:]},
		AssociatedTokenProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("associated token address for %s: %w", token.Symbol, err)
	}
	return addr, nil
}
