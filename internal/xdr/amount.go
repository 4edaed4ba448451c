package xdr

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Stellar amounts are 7-decimal fixed point; one stroop is 10^-7 units.
const AmountDecimals = 7

var stroopScale = decimal.New(1, AmountDecimals)

// ToStroops converts a decimal amount to its int64 stroop representation.
// The amount must be non-negative and have at most 7 decimal places.
func ToStroops(d decimal.Decimal) (int64, error) {
	scaled := d.Mul(stroopScale)
	if scaled.Exponent() < 0 && !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("xdr: amount %s has more than %d decimal places", d, AmountDecimals)
	}
	if scaled.IsNegative() {
		return 0, fmt.Errorf("xdr: negative amount %s", d)
	}
	if scaled.Cmp(decimal.NewFromInt(math.MaxInt64)) > 0 {
		return 0, fmt.Errorf("xdr: amount %s overflows int64 stroops", d)
	}
	return scaled.IntPart(), nil
}

// FromStroops converts an int64 stroop count to a decimal amount.
func FromStroops(v int64) decimal.Decimal {
	return decimal.New(v, -AmountDecimals)
}
