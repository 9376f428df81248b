package utils

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelpento.lv/arbscan/types"
)

func wei(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad number " + s)
	}
	return v
}

func TestCalculateProfitableRoundTrip(t *testing.T) {
	calc := NewProfitCalculator(18)

	// 0.01 WETH -> 25 USDC -> 0.0105 WETH, gas 3e13 wei
	profit, err := calc.Calculate(RoundTrip{
		AmountIn:     wei("10000000000000000"),
		Intermediate: big.NewInt(25_000_000),
		AmountOut:    wei("10500000000000000"),
		GasCost:      wei("30000000000000"),
	}, decimal.NewFromInt(2500))
	require.NoError(t, err)

	assert.Equal(t, "500000000000000", profit.Gross.String())
	assert.Equal(t, "470000000000000", profit.Net.String())
	assert.Equal(t, float64(500), profit.SpreadBps)
	assert.Equal(t, "0.0005", profit.GrossNative.String())
	assert.True(t, profit.GrossFiat.Equal(decimal.RequireFromString("1.25")))
	assert.True(t, profit.GasFiat.Equal(decimal.RequireFromString("0.075")))
	assert.True(t, profit.NetFiat.Equal(profit.GrossFiat.Sub(profit.GasFiat)))
	assert.Equal(t, types.StatusProfitable, profit.Status)
}

func TestCalculateStatusInvariants(t *testing.T) {
	calc := NewProfitCalculator(18)
	price := decimal.NewFromInt(3000)
	in := wei("1000000000000000000")

	tests := []struct {
		name   string
		out    *big.Int
		gas    *big.Int
		status types.Status
	}{
		{"loss", wei("990000000000000000"), big.NewInt(1), types.StatusLoss},
		{"break even counts as loss", wei("1000000000000000000"), big.NewInt(0), types.StatusLoss},
		{"spread eaten by gas", wei("1000000000000000100"), big.NewInt(100), types.StatusPositiveSpreadNoProfit},
		{"profitable", wei("1000000000000000101"), big.NewInt(100), types.StatusProfitable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profit, err := calc.Calculate(RoundTrip{AmountIn: in, AmountOut: tt.out, GasCost: tt.gas}, price)
			require.NoError(t, err)
			assert.Equal(t, tt.status, profit.Status)

			// netProfit == grossProfit - gasCost
			assert.Equal(t, 0, new(big.Int).Sub(profit.Gross, tt.gas).Cmp(profit.Net))

			// Profitable iff net fiat > 0
			assert.Equal(t, profit.NetFiat.IsPositive(), profit.Status == types.StatusProfitable)
			if profit.Gross.Sign() <= 0 {
				assert.Equal(t, types.StatusLoss, profit.Status)
			}
		})
	}
}

func TestCalculateRejectsInvalidInput(t *testing.T) {
	calc := NewProfitCalculator(18)

	_, err := calc.Calculate(RoundTrip{AmountIn: big.NewInt(1)}, decimal.NewFromInt(1))
	assert.Error(t, err)

	_, err = calc.Calculate(RoundTrip{AmountIn: big.NewInt(0), AmountOut: big.NewInt(1), GasCost: big.NewInt(0)}, decimal.NewFromInt(1))
	assert.Error(t, err)

	_, err = calc.Calculate(RoundTrip{AmountIn: big.NewInt(1), AmountOut: big.NewInt(1), GasCost: big.NewInt(0)}, decimal.Zero)
	assert.Error(t, err)
}
