// Package formulas holds the fixed-precision arithmetic used by vault accounting.
package formulas

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places kept for assets, shares and ratios.
const Scale int32 = 18

// BasisPoints is the denominator of every bps-expressed rate or cap.
const BasisPoints int64 = 10_000

// ErrDivisionByZero is returned when a conversion denominator is zero.
var ErrDivisionByZero = errors.New("formulas: division by zero")

// Rounding selects the direction MulDiv rounds at Scale.
type Rounding int

const (
	// Down truncates toward zero (all vault quantities are non-negative).
	Down Rounding = iota
	// Up rounds away from zero whenever a remainder exists.
	Up
)

// MulDiv computes a*b/c rounded to Scale decimal places in the given direction.
//
// The product a*b is exact; only the final quotient is rounded, so
// MulDiv(x, y, z, Down) <= x*y/z <= MulDiv(x, y, z, Up) always holds.
func MulDiv(a, b, c decimal.Decimal, rounding Rounding) (decimal.Decimal, error) {
	if c.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	q, r := a.Mul(b).QuoRem(c, Scale)
	if rounding == Up && !r.IsZero() {
		q = q.Add(ulp)
	}
	return q, nil
}

// MustMulDiv is MulDiv for callers that have already excluded a zero denominator.
func MustMulDiv(a, b, c decimal.Decimal, rounding Rounding) decimal.Decimal {
	v, err := MulDiv(a, b, c, rounding)
	if err != nil {
		panic(err)
	}
	return v
}

// Ratio returns part/whole at Scale, rounded down. A zero whole yields zero.
func Ratio(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return MustMulDiv(part, decimal.NewFromInt(1), whole, Down)
}

// BpsToRatio converts basis points into a fraction (5000 -> 0.5).
func BpsToRatio(bps int64) decimal.Decimal {
	return decimal.NewFromInt(bps).Div(decimal.NewFromInt(BasisPoints))
}

// ApplyBps returns amount*bps/10000 rounded down.
func ApplyBps(amount decimal.Decimal, bps int64) decimal.Decimal {
	return MustMulDiv(amount, decimal.NewFromInt(bps), decimal.NewFromInt(BasisPoints), Down)
}

// Min returns the smaller of two decimals.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// ClampZero returns v, or zero when v is negative.
func ClampZero(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

var ulp = decimal.New(1, -Scale)
