package wallet

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmountRange(t *testing.T) {
	r, err := ParseAmountRange("0.05-0.1")
	require.NoError(t, err)
	assert.True(t, r.Min.Equal(decimal.RequireFromString("0.05")))
	assert.True(t, r.Max.Equal(decimal.RequireFromString("0.1")))

	r, err = ParseAmountRange("0.5")
	require.NoError(t, err)
	assert.True(t, r.Min.Equal(r.Max))

	for _, bad := range []string{"0.2-0.1", "x-1", "1-y"} {
		_, err := ParseAmountRange(bad)
		assert.Error(t, err, bad)
	}
}

func TestAmountRange_DrawStaysOnGrid(t *testing.T) {
	r := AmountRange{Min: decimal.RequireFromString("0.001"), Max: decimal.RequireFromString("0.002"), Step: decimal.New(1, -4)}
	for i := 0; i < 200; i++ {
		a, err := r.Draw(9)
		require.NoError(t, err)
		raw := a.Raw()
		assert.GreaterOrEqual(t, raw, uint64(1_000_000))
		assert.LessOrEqual(t, raw, uint64(2_000_000))
		assert.Zero(t, raw%100_000, "step of 0.0001 SOL")
	}

	fixed := AmountRange{Min: decimal.RequireFromString("1.5"), Max: decimal.RequireFromString("1.5")}
	a, err := fixed.Draw(6)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000), a.Raw())
}

func TestIntRange(t *testing.T) {
	r, err := ParseIntRange("2-5")
	require.NoError(t, err)
	assert.Equal(t, IntRange{Min: 2, Max: 5}, r)
	for i := 0; i < 100; i++ {
		n := r.Draw()
		assert.GreaterOrEqual(t, n, 2)
		assert.LessOrEqual(t, n, 5)
	}

	r, err = ParseIntRange("3")
	require.NoError(t, err)
	assert.Equal(t, 3, r.Draw())

	_, err = ParseIntRange("5-2")
	assert.Error(t, err)
	_, err = ParseIntRange("-1")
	assert.Error(t, err)
}

func TestRecord_LogValueHidesKey(t *testing.T) {
	rec := &Record{ID: 4, Address: "Addr4", PrivateKey: "super-secret"}

	var sb strings.Builder
	logger := slog.New(slog.NewJSONHandler(&sb, nil))
	logger.Info("wallet", "record", rec)

	assert.Contains(t, sb.String(), "Addr4")
	assert.NotContains(t, sb.String(), "super-secret")
	assert.Equal(t, "[4 | Addr4]", rec.String())
}

func TestSelection_Apply(t *testing.T) {
	records := []*Record{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}, {ID: 5}}
	ids := func(rs []*Record) []int64 {
		var out []int64
		for _, r := range rs {
			out = append(out, r.ID)
		}
		return out
	}

	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids(Selection{}.Apply(records)))
	assert.Equal(t, []int64{2, 3, 4}, ids(Selection{Range: IntRange{Min: 2, Max: 4}}.Apply(records)))
	assert.Equal(t, []int64{1, 5}, ids(Selection{IDs: []int64{5, 1, 9}}.Apply(records)))
	// range wins over ids
	assert.Equal(t, []int64{3}, ids(Selection{Range: IntRange{Min: 3, Max: 3}, IDs: []int64{1}}.Apply(records)))
}
