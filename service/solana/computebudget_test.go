package solana

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetComputeUnitLimit_Encoding(t *testing.T) {
	ix := SetComputeUnitLimit(200_000)
	data, err := ix.Data()
	require.NoError(t, err)

	assert.Equal(t, []byte{0x02, 0x40, 0x0d, 0x03, 0x00}, data)
	assert.Equal(t, ComputeBudgetProgramID, ix.ProgramID())
	assert.Empty(t, ix.Accounts())
}

func TestSetComputeUnitPrice_Encoding(t *testing.T) {
	ix := SetComputeUnitPrice(5000)
	data, err := ix.Data()
	require.NoError(t, err)

	assert.Equal(t, []byte{0x03, 0x88, 0x13, 0, 0, 0, 0, 0, 0}, data)
}

func TestComputeBudget_MatchesLibraryEncoder(t *testing.T) {
	lib, err := computebudget.NewSetComputeUnitLimitInstruction(1_400_000).ValidateAndBuild()
	require.NoError(t, err)
	want, err := lib.Data()
	require.NoError(t, err)
	got, err := SetComputeUnitLimit(1_400_000).Data()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	libPrice, err := computebudget.NewSetComputeUnitPriceInstruction(123_456_789).ValidateAndBuild()
	require.NoError(t, err)
	want, err = libPrice.Data()
	require.NoError(t, err)
	got, err = SetComputeUnitPrice(123_456_789).Data()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeComputeBudget_RoundTrip(t *testing.T) {
	for _, units := range []uint32{0, 1, 200_000, 1_400_000, ^uint32(0)} {
		d, ok := DecodeComputeBudget(SetComputeUnitLimit(units))
		require.True(t, ok)
		assert.Equal(t, DirectiveUnitLimit, d.Kind)
		assert.Equal(t, units, d.Units)
	}
	for _, price := range []uint64{0, 1, 5000, ^uint64(0)} {
		d, ok := DecodeComputeBudget(SetComputeUnitPrice(price))
		require.True(t, ok)
		assert.Equal(t, DirectiveUnitPrice, d.Kind)
		assert.Equal(t, price, d.Price)
	}
}

func TestDecodeComputeBudget_NotApplicable(t *testing.T) {
	tests := []struct {
		name string
		ix   solana.Instruction
	}{
		{"wrong program", solana.NewInstruction(solana.SystemProgramID, nil, []byte{0x02, 1, 0, 0, 0})},
		{"empty data", solana.NewInstruction(ComputeBudgetProgramID, nil, nil)},
		{"unknown tag", solana.NewInstruction(ComputeBudgetProgramID, nil, []byte{0x01, 0, 0, 0, 0})},
		{"short limit", solana.NewInstruction(ComputeBudgetProgramID, nil, []byte{0x02, 1, 0, 0})},
		{"short price", solana.NewInstruction(ComputeBudgetProgramID, nil, []byte{0x03, 1, 0, 0, 0, 0, 0, 0})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := DecodeComputeBudget(tt.ix)
			assert.False(t, ok)
		})
	}
}

func TestScanComputeBudget_LastWins(t *testing.T) {
	from := solana.NewWallet().PublicKey()
	to := solana.NewWallet().PublicKey()
	ixs := []solana.Instruction{
		SetComputeUnitLimit(100_000),
		SetComputeUnitPrice(10),
		system.NewTransferInstruction(1, from, to).Build(),
		SetComputeUnitLimit(300_000),
		SetComputeUnitPrice(20_000),
	}

	info, err := ScanComputeBudget(ixs)
	require.NoError(t, err)
	assert.Equal(t, uint32(300_000), info.ComputeUnitLimit)
	assert.Equal(t, uint64(20_000), info.MicroLamportPrice)
	assert.Equal(t, uint64(6000), info.MaxFee.Raw())
	assert.Equal(t, uint8(NativeDecimals), info.MaxFee.Decimals())
}

func TestScanComputeBudget_Unset(t *testing.T) {
	info, err := ScanComputeBudget(nil)
	require.NoError(t, err)
	assert.Zero(t, info.ComputeUnitLimit)
	assert.Zero(t, info.MicroLamportPrice)
	assert.True(t, info.MaxFee.IsZero())
	assert.Equal(t, DefaultComputeUnitLimit, info.EffectiveLimit())
}

func TestScanCompiledMessage(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	ixs := []solana.Instruction{
		SetComputeUnitLimit(250_000),
		SetComputeUnitPrice(1_000),
		system.NewTransferInstruction(5, payer, solana.NewWallet().PublicKey()).Build(),
	}
	msg, err := CompileMessage(ixs, payer, Blockhash{Hash: solana.Hash{1}, LastValidBlockHeight: 10})
	require.NoError(t, err)

	compiled := msg.Message()
	info, err := ScanCompiledMessage(&compiled)
	require.NoError(t, err)
	assert.Equal(t, uint32(250_000), info.ComputeUnitLimit)
	assert.Equal(t, uint64(1_000), info.MicroLamportPrice)
	assert.Equal(t, uint64(250), info.MaxFee.Raw())
}

func TestPriorityFeeLamports(t *testing.T) {
	t.Run("reference example", func(t *testing.T) {
		fee, err := PriorityFeeLamports(200_000, 5_000)
		require.NoError(t, err)
		assert.Equal(t, uint64(1000), fee)
	})

	t.Run("zero inputs", func(t *testing.T) {
		fee, err := PriorityFeeLamports(0, 5_000)
		require.NoError(t, err)
		assert.Zero(t, fee)
		fee, err = PriorityFeeLamports(200_000, 0)
		require.NoError(t, err)
		assert.Zero(t, fee)
	})

	t.Run("floors", func(t *testing.T) {
		fee, err := PriorityFeeLamports(3, 333_333)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), fee)
		fee, err = PriorityFeeLamports(3, 333_334)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), fee)
	})

	t.Run("monotonic in both arguments", func(t *testing.T) {
		limits := []uint32{0, 1, 1000, 200_000, 1_400_000, ^uint32(0)}
		prices := []uint64{0, 1, 999_999, 1_000_000, 5_000_000, 1 << 40}
		for i := 1; i < len(limits); i++ {
			for _, p := range prices {
				a, err := PriorityFeeLamports(limits[i-1], p)
				require.NoError(t, err)
				b, err := PriorityFeeLamports(limits[i], p)
				require.NoError(t, err)
				assert.LessOrEqual(t, a, b)
			}
		}
		for i := 1; i < len(prices); i++ {
			for _, l := range limits {
				a, err := PriorityFeeLamports(l, prices[i-1])
				require.NoError(t, err)
				b, err := PriorityFeeLamports(l, prices[i])
				require.NoError(t, err)
				assert.LessOrEqual(t, a, b)
			}
		}
	})

	t.Run("wide product stays exact", func(t *testing.T) {
		// The product exceeds 64 bits but the quotient does not.
		fee, err := PriorityFeeLamports(1_400_000, 1<<50)
		require.NoError(t, err)
		assert.Equal(t, uint64(1576259869579673), fee)
	})

	t.Run("overflow", func(t *testing.T) {
		_, err := PriorityFeeLamports(^uint32(0), ^uint64(0))
		assert.ErrorIs(t, err, ErrFeeOverflow)
	})
}

func TestPriorityFeeUpperBound(t *testing.T) {
	fee, err := PriorityFeeUpperBound(3, 333_333)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), fee)

	fee, err = PriorityFeeUpperBound(200_000, 5_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), fee)

	fee, err = PriorityFeeUpperBound(0, 0)
	require.NoError(t, err)
	assert.Zero(t, fee)
}
