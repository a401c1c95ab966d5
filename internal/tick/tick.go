// Package tick quantizes decimal prices into signed integer ticks so they
// can be used as exact, orderable keys in the book's price-indexed maps.
package tick

import "github.com/shopspring/decimal"

// Tick is a signed, fixed-scale integer price. All book indexing and price
// comparisons use Tick rather than a floating-point or decimal price.
type Tick int64

// Scale is the number of Tick units per whole unit of price (four
// fractional digits of precision).
const Scale = 10_000

var scaleDec = decimal.NewFromInt(Scale)

var (
	maxTickDec = decimal.NewFromInt(maxInt64)
	minTickDec = decimal.NewFromInt(minInt64)
)

// FromDecimal converts a decimal price to its Tick representation. It rounds
// half-to-even at the target scale and saturates to the signed 64-bit range
// on overflow rather than wrapping.
func FromDecimal(price decimal.Decimal) Tick {
	scaled := price.Mul(scaleDec).RoundBank(0)
	if scaled.GreaterThan(maxTickDec) {
		return Tick(maxInt64)
	}
	if scaled.LessThan(minTickDec) {
		return Tick(minInt64)
	}
	return Tick(scaled.IntPart())
}

// ToDecimal converts a Tick back to its decimal price. This is the exact
// inverse of FromDecimal whenever the original price was representable at
// Scale.
func ToDecimal(t Tick) decimal.Decimal {
	return decimal.NewFromInt(int64(t)).Div(scaleDec)
}

const (
	maxInt64 = 1<<63 - 1
	minInt64 = -1 << 63
)
