package xdr

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Int128 is a signed 128-bit integer in XDR's (hi, lo) split form.
type Int128 struct {
	Hi int64
	Lo uint64
}

// UInt128 is an unsigned 128-bit integer in XDR's (hi, lo) split form.
type UInt128 struct {
	Hi uint64
	Lo uint64
}

var (
	two64      = new(big.Int).Lsh(big.NewInt(1), 64)
	int128Max  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	int128Min  = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
	uint128Max = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
)

// BigInt returns the full signed value.
func (v Int128) BigInt() *big.Int {
	out := new(big.Int).SetInt64(v.Hi)
	out.Mul(out, two64)
	return out.Add(out, new(big.Int).SetUint64(v.Lo))
}

// Decimal returns the value as a 7-decimal fixed-point amount.
func (v Int128) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(v.BigInt(), -AmountDecimals)
}

// Int128FromDecimal converts a 7-decimal amount into its i128 stroop form.
func Int128FromDecimal(d decimal.Decimal) (Int128, error) {
	scaled := d.Mul(stroopScale)
	if !scaled.Equal(scaled.Truncate(0)) {
		return Int128{}, fmt.Errorf("xdr: amount %s has more than %d decimal places", d, AmountDecimals)
	}
	i := scaled.BigInt()
	if i.Cmp(int128Max) > 0 || i.Cmp(int128Min) < 0 {
		return Int128{}, fmt.Errorf("xdr: amount %s overflows i128", d)
	}
	whole := new(big.Int).Set(i)
	if whole.Sign() < 0 {
		whole.Add(whole, new(big.Int).Lsh(big.NewInt(1), 128))
	}
	lo := new(big.Int).Mod(whole, two64)
	hi := new(big.Int).Div(whole, two64)
	return Int128{Hi: int64(hi.Uint64()), Lo: lo.Uint64()}, nil
}

// BigInt returns the full unsigned value.
func (v UInt128) BigInt() *big.Int {
	out := new(big.Int).SetUint64(v.Hi)
	out.Mul(out, two64)
	return out.Add(out, new(big.Int).SetUint64(v.Lo))
}

// Decimal returns the value as a 7-decimal fixed-point amount.
func (v UInt128) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(v.BigInt(), -AmountDecimals)
}

// UInt128FromDecimal converts a non-negative 7-decimal amount into its u128
// stroop form.
func UInt128FromDecimal(d decimal.Decimal) (UInt128, error) {
	scaled := d.Mul(stroopScale)
	if !scaled.Equal(scaled.Truncate(0)) {
		return UInt128{}, fmt.Errorf("xdr: amount %s has more than %d decimal places", d, AmountDecimals)
	}
	i := scaled.BigInt()
	if i.Sign() < 0 {
		return UInt128{}, fmt.Errorf("xdr: negative amount %s for u128", d)
	}
	if i.Cmp(uint128Max) > 0 {
		return UInt128{}, fmt.Errorf("xdr: amount %s overflows u128", d)
	}
	lo := new(big.Int).Mod(i, two64)
	hi := new(big.Int).Div(i, two64)
	return UInt128{Hi: hi.Uint64(), Lo: lo.Uint64()}, nil
}
