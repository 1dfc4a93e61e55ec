package solana

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	// NativeDecimals is the number of decimals of SOL (lamports per SOL = 10^9).
	NativeDecimals = 9

	// LamportsPerSOL is the number of lamports in one SOL.
	LamportsPerSOL = 1_000_000_000

	// maxDecimals bounds decimals so that 10^decimals fits in a uint64.
	maxDecimals = 19
)

var (
	errNegativeAmount = errors.New("amount must not be negative")
	errAmountOverflow = errors.New("amount overflows u64 raw units")
	errBadDecimals    = errors.New("decimals out of range")
)

// Amount is a fixed-point token quantity. The raw view is an integer count of
// the smallest unit; the human view is raw / 10^decimals.
type Amount struct {
	raw      uint64
	decimals uint8
}

// AmountFromRaw builds an Amount from smallest-unit integer value.
func AmountFromRaw(raw uint64, decimals uint8) Amount {
	return Amount{raw: raw, decimals: decimals}
}

// Lamports is AmountFromRaw with native decimals.
func Lamports(raw uint64) Amount {
	return AmountFromRaw(raw, NativeDecimals)
}

// AmountFromHuman converts a decimal quantity into raw units. Digits beyond
// decimals are truncated toward zero.
func AmountFromHuman(human decimal.Decimal, decimals uint8) (Amount, error) {
	if decimals > maxDecimals {
		return Amount{}, fmt.Errorf("%w: %d", errBadDecimals, decimals)
	}
	if human.Sign() < 0 {
		return Amount{}, errNegativeAmount
	}
	raw := human.Shift(int32(decimals)).Truncate(0).BigInt()
	if !raw.IsUint64() {
		return Amount{}, errAmountOverflow
	}
	return Amount{raw: raw.Uint64(), decimals: decimals}, nil
}

// AmountFromString parses a decimal string such as "0.015".
func AmountFromString(s string, decimals uint8) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return AmountFromHuman(d, decimals)
}

// AmountFromFloat converts a float (e.g. a randomized configuration value).
// The float is first rendered at the target precision.
func AmountFromFloat(f float64, decimals uint8) (Amount, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Amount{}, fmt.Errorf("invalid amount %v", f)
	}
	return AmountFromHuman(decimal.NewFromFloat(f), decimals)
}

// Raw returns the integer smallest-unit value.
func (a Amount) Raw() uint64 { return a.raw }

// Decimals returns the decimal exponent tying raw and human views.
func (a Amount) Decimals() uint8 { return a.decimals }

// Human returns raw / 10^decimals as an exact decimal.
func (a Amount) Human() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(a.raw), -int32(a.decimals))
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a.raw == 0 }

// Cmp compares two amounts by value; different decimals are compared on the human view.
func (a Amount) Cmp(b Amount) int {
	if a.decimals == b.decimals {
		switch {
		case a.raw < b.raw:
			return -1
		case a.raw > b.raw:
			return 1
		}
		return 0
	}
	return a.Human().Cmp(b.Human())
}

// Sub returns a-b. Both must share decimals and the result must not be negative.
func (a Amount) Sub(b Amount) (Amount, error) {
	if a.decimals != b.decimals {
		return Amount{}, fmt.Errorf("decimals mismatch: %d vs %d", a.decimals, b.decimals)
	}
	if b.raw > a.raw {
		return Amount{}, fmt.Errorf("%w: %s - %s", errNegativeAmount, a, b)
	}
	return Amount{raw: a.raw - b.raw, decimals: a.decimals}, nil
}

// String renders the human view with 5 fractional digits.
func (a Amount) String() string {
	return a.Human().StringFixed(5)
}

// MarshalText renders the exact human view, e.g. "0.000005".
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.Human().String()), nil
}
