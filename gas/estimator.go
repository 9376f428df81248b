package gas

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/arbscan/dex"
	fixed "github.com/michaelpento.lv/arbscan/utils/math"
)

// NativeDecimals is the precision of gas prices and fees (wei)
const NativeDecimals uint8 = 18

// Estimator projects the cost of a round trip from the current gas price
type Estimator struct {
	logger   *zap.Logger
	gasUnits uint64
}

// Cost is a gas cost projection for one round trip
type Cost struct {
	GasPrice *big.Int // wei per gas
	Wei      *big.Int
	Base     *big.Int // in base-token units
}

// NewEstimator creates a new gas estimator for a fixed gas budget
func NewEstimator(gasUnits uint64, logger *zap.Logger) *Estimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Estimator{
		logger:   logger,
		gasUnits: gasUnits,
	}
}

// GasUnits returns the gas budget of one round trip
func (e *Estimator) GasUnits() uint64 {
	return e.gasUnits
}

// Estimate reads the gas price from the quoter and projects the round trip cost
func (e *Estimator) Estimate(ctx context.Context, quoter dex.Quoter, baseDecimals uint8) (*Cost, error) {
	gasPrice, err := quoter.GasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	cost := e.CostAt(gasPrice, baseDecimals)
	e.logger.Debug("Projected gas cost",
		zap.String("gasPrice", gasPrice.String()),
		zap.String("costWei", cost.Wei.String()),
	)
	return cost, nil
}

// CostAt projects the round trip cost at a given gas price
func (e *Estimator) CostAt(gasPrice *big.Int, baseDecimals uint8) *Cost {
	// Calculate total cost
	gasUnitsBig := new(big.Int).SetUint64(e.gasUnits)
	wei := new(big.Int).Mul(gasPrice, gasUnitsBig)

	return &Cost{
		GasPrice: new(big.Int).Set(gasPrice),
		Wei:      wei,
		Base:     fixed.Rescale(wei, NativeDecimals, baseDecimals),
	}
}

// Gwei renders a wei gas price in gwei
func Gwei(wei *big.Int) float64 {
	return fixed.Float(fixed.ToDecimal(wei, 9))
}

// Native renders a wei amount in whole native units
func Native(wei *big.Int) decimal.Decimal {
	return fixed.ToDecimal(wei, NativeDecimals)
}
