package solana

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNativeTransfer(t *testing.T) {
	from := solana.NewWallet().PublicKey()
	to := solana.NewWallet().PublicKey()

	ix, err := NativeTransfer(from, to, Lamports(1_000))
	require.NoError(t, err)
	assert.Equal(t, solana.SystemProgramID, ix.ProgramID())

	_, err = NativeTransfer(from, to, Lamports(0))
	assert.Error(t, err)

	_, err = NativeTransfer(from, to, AmountFromRaw(5, 6))
	assert.Error(t, err)
}

func TestTokenTransfer_UsesDescriptorProgram(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	recipient := solana.NewWallet().PublicKey()

	t22 := TokenDescriptor{
		Symbol:   "T22",
		Mint:     solana.NewWallet().PublicKey(),
		Program:  solana.Token2022ProgramID,
		Decimals: 6,
	}

	ixs, err := TokenTransfer(owner, recipient, t22, t22.Amount(1_000_000), true)
	require.NoError(t, err)
	require.Len(t, ixs, 2)

	create, transfer := ixs[0], ixs[1]
	assert.Equal(t, AssociatedTokenProgramID, create.ProgramID())
	assert.Equal(t, solana.Token2022ProgramID, transfer.ProgramID())

	createData, err := create.Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{createIdempotentTag}, createData)
	assert.Equal(t, solana.Token2022ProgramID, create.Accounts()[5].PublicKey)

	wantSource, err := FindAssociatedTokenAddress(owner, t22)
	require.NoError(t, err)
	wantDest, err := FindAssociatedTokenAddress(recipient, t22)
	require.NoError(t, err)
	accts := transfer.Accounts()
	assert.Equal(t, wantSource, accts[0].PublicKey)
	assert.Equal(t, t22.Mint, accts[1].PublicKey)
	assert.Equal(t, wantDest, accts[2].PublicKey)
	assert.Equal(t, owner, accts[3].PublicKey)
	assert.True(t, accts[3].IsSigner)
}

func TestTokenTransfer_NativeFallsBackToSystem(t *testing.T) {
	ixs, err := TokenTransfer(solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), NativeSOL, Lamports(10), true)
	require.NoError(t, err)
	require.Len(t, ixs, 1)
	assert.Equal(t, solana.SystemProgramID, ixs[0].ProgramID())
}

func TestTokenTransfer_DecimalsMismatch(t *testing.T) {
	_, err := TokenTransfer(solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), USDC, Lamports(10), false)
	assert.Error(t, err)
}

func TestWithComputeBudget(t *testing.T) {
	ix, err := NativeTransfer(solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), Lamports(1))
	require.NoError(t, err)

	assert.Len(t, WithComputeBudget([]solana.Instruction{ix}, 0, 0), 1)

	out := WithComputeBudget([]solana.Instruction{ix}, 100_000, 2_000)
	require.Len(t, out, 3)
	info, err := ScanComputeBudget(out)
	require.NoError(t, err)
	assert.Equal(t, uint32(100_000), info.ComputeUnitLimit)
	assert.Equal(t, uint64(2_000), info.MicroLamportPrice)
	assert.Equal(t, ix, out[2])
}
