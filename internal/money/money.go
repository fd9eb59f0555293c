// Package money implements the Money value type used throughout the wallet
// core: signed integer minor units (cents), so arithmetic never drifts the
// way binary floating point would.
package money

import (
	"strings"

	"github.com/shopspring/decimal"

	walleterrors "pixwallet/internal/errors"
)

// PixMax is the maximum amount, in cents, a single Pix transfer may move
// (R$ 20,000.00).
const PixMax int64 = 2_000_000

// Zero is the additive identity.
var Zero = Money{cents: 0}

// Money is an immutable signed count of minor units (cents).
type Money struct {
	cents int64
}

// FromMinorUnits builds a Money directly from a cents count.
func FromMinorUnits(cents int64) Money {
	return Money{cents: cents}
}

// FromMajorUnitsString parses a decimal major-unit string ("10.50") into
// Money, rounding half-up to 2 decimal places. Empty or non-numeric input
// fails with INVALID_AMOUNT.
func FromMajorUnitsString(s string) (Money, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Money{}, walleterrors.New(walleterrors.InvalidAmount, "amount cannot be empty")
	}

	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return Money{}, walleterrors.Newf(walleterrors.InvalidAmount, "amount %q is not a valid decimal", s)
	}

	cents := d.Mul(decimal.NewFromInt(100)).Round(0)
	return Money{cents: cents.IntPart()}, nil
}

// ToMajorUnitsString renders the amount as a 2-decimal major-unit string,
// e.g. "10.50".
func (m Money) ToMajorUnitsString() string {
	return decimal.NewFromInt(m.cents).Div(decimal.NewFromInt(100)).StringFixed(2)
}

// Cents returns the underlying signed minor-unit count.
func (m Money) Cents() int64 { return m.cents }

func (m Money) Add(other Money) Money      { return Money{cents: m.cents + other.cents} }
func (m Money) Subtract(other Money) Money { return Money{cents: m.cents - other.cents} }
func (m Money) Multiply(n int64) Money     { return Money{cents: m.cents * n} }
func (m Money) Negate() Money              { return Money{cents: -m.cents} }

func (m Money) Abs() Money {
	if m.cents < 0 {
		return Money{cents: -m.cents}
	}
	return m
}

func (m Money) IsZero() bool     { return m.cents == 0 }
func (m Money) IsPositive() bool { return m.cents > 0 }
func (m Money) IsNegative() bool { return m.cents < 0 }

func (m Money) IsLessThan(other Money) bool           { return m.cents < other.cents }
func (m Money) IsLessThanOrEqual(other Money) bool     { return m.cents <= other.cents }
func (m Money) IsGreaterThan(other Money) bool         { return m.cents > other.cents }
func (m Money) IsGreaterThanOrEqual(other Money) bool  { return m.cents >= other.cents }
func (m Money) Equal(other Money) bool                 { return m.cents == other.cents }

// Compare returns -1, 0, or 1 following the usual comparator convention.
func (m Money) Compare(other Money) int {
	switch {
	case m.cents < other.cents:
		return -1
	case m.cents > other.cents:
		return 1
	default:
		return 0
	}
}

// ValidateForPix enforces the Pix amount boundaries: must be positive and at
// most PixMax.
func (m Money) ValidateForPix() error {
	if m.cents <= 0 {
		return walleterrors.New(walleterrors.InvalidAmount, "pix amount must be greater than zero")
	}
	if m.cents > PixMax {
		return walleterrors.Newf(walleterrors.AmountOutOfRange, "pix amount %s exceeds the limit of R$ 20,000.00", m.ToMajorUnitsString())
	}
	return nil
}

// ValidateForBalance enforces that an amount used for a wallet mutation is
// strictly positive.
func (m Money) ValidateForBalance() error {
	if m.cents <= 0 {
		return walleterrors.New(walleterrors.InvalidAmount, "amount must be positive")
	}
	return nil
}

func (m Money) String() string {
	return "R$ " + m.ToMajorUnitsString()
}
