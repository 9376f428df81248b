package utils

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/michaelpento.lv/arbscan/types"
	fixed "github.com/michaelpento.lv/arbscan/utils/math"
)

// RoundTrip holds the raw amounts of a base -> quote -> base swap pair
type RoundTrip struct {
	AmountIn     *big.Int // base units
	Intermediate *big.Int // quote units
	AmountOut    *big.Int // base units
	GasCost      *big.Int // base units
}

// Profit is the evaluated result of a round trip
type Profit struct {
	Gross     *big.Int
	Net       *big.Int
	SpreadBps float64

	GrossNative decimal.Decimal
	NetNative   decimal.Decimal
	GasNative   decimal.Decimal

	GrossFiat decimal.Decimal
	NetFiat   decimal.Decimal
	GasFiat   decimal.Decimal

	Status types.Status
}

// ProfitCalculator calculates round trip profits for one base token
type ProfitCalculator struct {
	baseDecimals uint8
}

// NewProfitCalculator creates a new profit calculator
func NewProfitCalculator(baseDecimals uint8) *ProfitCalculator {
	return &ProfitCalculator{
		baseDecimals: baseDecimals,
	}
}

// Calculate derives gross and net profit, spread and fiat values. The
// reference price is the fiat value of one whole base token.
func (p *ProfitCalculator) Calculate(rt RoundTrip, referencePrice decimal.Decimal) (*Profit, error) {
	if rt.AmountIn == nil || rt.AmountOut == nil || rt.GasCost == nil {
		return nil, errors.New("invalid parameters")
	}
	if rt.AmountIn.Sign() <= 0 {
		return nil, errors.New("amount in must be positive")
	}
	if !referencePrice.IsPositive() {
		return nil, errors.New("reference price must be positive")
	}

	// Calculate profit (output - input), then subtract gas
	gross := new(big.Int).Sub(rt.AmountOut, rt.AmountIn)
	net := new(big.Int).Sub(gross, rt.GasCost)

	profit := &Profit{
		Gross:       gross,
		Net:         net,
		SpreadBps:   fixed.SpreadBps(gross, rt.AmountIn),
		GrossNative: fixed.ToDecimal(gross, p.baseDecimals),
		NetNative:   fixed.ToDecimal(net, p.baseDecimals),
		GasNative:   fixed.ToDecimal(rt.GasCost, p.baseDecimals),
		Status:      Classify(gross, net),
	}
	profit.GrossFiat = profit.GrossNative.Mul(referencePrice)
	profit.NetFiat = profit.NetNative.Mul(referencePrice)
	profit.GasFiat = profit.GasNative.Mul(referencePrice)

	return profit, nil
}

// Classify decides the status from integer profits. With a positive
// reference price the sign of net fiat profit equals the sign of net.
func Classify(gross, net *big.Int) types.Status {
	switch {
	case gross.Sign() <= 0:
		return types.StatusLoss
	case net.Sign() <= 0:
		return types.StatusPositiveSpreadNoProfit
	default:
		return types.StatusProfitable
	}
}
