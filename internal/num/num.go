// Package num pins the numeric semantics used for prices, quantities,
// balances, and PnL: fixed-scale decimals with 18 fractional digits,
// half-to-even rounding on division, and saturation to the
// representable range instead of unbounded growth.
package num

import "github.com/shopspring/decimal"

// Scale is the number of fractional digits carried by monetary values.
const Scale = 18

// limit is the saturation bound: values are clamped to (-10^18, 10^18).
var limit = decimal.New(1, 18)

// Clamp saturates d to the representable range. The second return is
// true when saturation occurred.
func Clamp(d decimal.Decimal) (decimal.Decimal, bool) {
	if d.GreaterThanOrEqual(limit) {
		return limit.Sub(decimal.New(1, -Scale)), true
	}
	if d.LessThanOrEqual(limit.Neg()) {
		return limit.Neg().Add(decimal.New(1, -Scale)), true
	}
	return d, false
}

// Add returns a+b saturated to the representable range.
func Add(a, b decimal.Decimal) (decimal.Decimal, bool) {
	return Clamp(a.Add(b))
}

// Sub returns a-b saturated to the representable range.
func Sub(a, b decimal.Decimal) (decimal.Decimal, bool) {
	return Clamp(a.Sub(b))
}

// Mul returns a*b truncated to Scale and saturated.
func Mul(a, b decimal.Decimal) (decimal.Decimal, bool) {
	return Clamp(a.Mul(b).Truncate(Scale))
}

// Div returns a/b rounded half-to-even at Scale. Division by zero
// returns zero with the overflow flag set.
func Div(a, b decimal.Decimal) (decimal.Decimal, bool) {
	if b.IsZero() {
		return decimal.Zero, true
	}
	return Clamp(a.DivRound(b, Scale+4).RoundBank(Scale))
}
