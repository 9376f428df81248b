package math

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// BasisPoints is the number of basis points in one whole unit.
const BasisPoints = 10000

var (
	// ErrInvalidAmount is returned when a decimal amount cannot be parsed or is not positive
	ErrInvalidAmount = errors.New("invalid amount")

	bpsFactor = decimal.NewFromInt(BasisPoints)
)

// Pow10 returns 10^n as a new big.Int
func Pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// ToDecimal converts a fixed-point integer with the given number of decimals
// into an exact decimal value. A nil input converts to zero.
func ToDecimal(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// FromDecimal converts a decimal amount into its fixed-point integer
// representation. Digits beyond the token precision are truncated.
func FromDecimal(d decimal.Decimal, decimals uint8) *big.Int {
	return d.Shift(int32(decimals)).BigInt()
}

// ParseUnits parses a human readable token amount such as "0.01" into raw units.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, s, err)
	}

	raw := FromDecimal(d, decimals)
	if raw.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %q must be positive at %d decimals", ErrInvalidAmount, s, decimals)
	}
	return raw, nil
}

// FormatUnits renders raw units as a decimal string without trailing zeros
func FormatUnits(raw *big.Int, decimals uint8) string {
	return ToDecimal(raw, decimals).String()
}

// Rescale converts an amount between two decimal bases, e.g. wei (18) to a
// 6-decimal token. Scaling down truncates toward zero.
func Rescale(raw *big.Int, from, to uint8) *big.Int {
	if raw == nil {
		return new(big.Int)
	}

	switch {
	case from == to:
		return new(big.Int).Set(raw)
	case from < to:
		return new(big.Int).Mul(raw, Pow10(to-from))
	default:
		return new(big.Int).Quo(raw, Pow10(from-to))
	}
}

// SpreadBps returns profit / notional expressed in basis points.
// Both values must share the same fixed-point base.
func SpreadBps(profit, notional *big.Int) float64 {
	if profit == nil || notional == nil || notional.Sign() == 0 {
		return 0
	}

	ratio := decimal.NewFromBigInt(profit, 0).Div(decimal.NewFromBigInt(notional, 0))
	bps, _ := ratio.Mul(bpsFactor).Float64()
	return bps
}

// Float converts a decimal to float64 for display and JSON payloads
func Float(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
