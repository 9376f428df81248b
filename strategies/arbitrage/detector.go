package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/arbscan/config"
	"github.com/michaelpento.lv/arbscan/dex"
	"github.com/michaelpento.lv/arbscan/gas"
	"github.com/michaelpento.lv/arbscan/types"
	"github.com/michaelpento.lv/arbscan/utils"
	fixed "github.com/michaelpento.lv/arbscan/utils/math"
	"github.com/michaelpento.lv/arbscan/utils/metrics"
)

// Pricing holds the per-sweep inputs shared by every combination on a chain
type Pricing struct {
	SweepID        string
	ReferencePrice decimal.Decimal
	GasCost        *gas.Cost
}

// SweepReport is the outcome of one full sweep over a chain
type SweepReport struct {
	SweepID        string
	ChainID        string
	StartedAt      time.Time
	Duration       time.Duration
	GasPrice       *big.Int
	ReferencePrice decimal.Decimal
	ReferenceLive  bool
	Combinations   int
	Unavailable    int
	Results        []*types.ScanResult
}

// Detector evaluates base -> quote -> base round trips on a chain
type Detector struct {
	cfg       *config.Config
	estimator *gas.Estimator
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewDetector creates a new round trip detector
func NewDetector(cfg *config.Config, estimator *gas.Estimator, m *metrics.Metrics, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if estimator == nil {
		estimator = gas.NewEstimator(cfg.GasUnits, logger)
	}
	return &Detector{
		cfg:       cfg,
		estimator: estimator,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// RouteLabel renders the fee tier pair of a round trip
func RouteLabel(entryFee, exitFee uint32) string {
	return fmt.Sprintf("%d→%d", entryFee, exitFee)
}

// ReferencePrice quotes one whole base token into the quote token at the
// reference fee tier. The configured default is used when no live price is
// available; the flag reports whether the price is live.
func (d *Detector) ReferencePrice(ctx context.Context, chain config.ChainConfig, quoter dex.Quoter) (decimal.Decimal, bool, error) {
	fallback := decimal.NewFromFloat(d.cfg.DefaultFiatPrice)

	quote, err := quoter.QuoteExactInputSingle(ctx, dex.QuoteParams{
		TokenIn:  chain.BaseToken,
		TokenOut: chain.QuoteToken,
		AmountIn: fixed.Pow10(chain.BaseDecimals),
		Fee:      d.cfg.ReferenceFeeTier,
	})
	if err != nil {
		if ctx.Err() != nil {
			return decimal.Zero, false, ctx.Err()
		}
		d.logger.Warn("Reference price unavailable, using default",
			zap.String("chain", chain.ID),
			zap.Error(err),
			zap.String("default", fallback.String()),
		)
		return fallback, false, nil
	}

	price := fixed.ToDecimal(quote.AmountOut, chain.QuoteDecimals)
	if !price.IsPositive() {
		d.logger.Warn("Non-positive reference price, using default",
			zap.String("chain", chain.ID),
			zap.String("price", price.String()),
		)
		return fallback, false, nil
	}

	return price, true, nil
}

// Evaluate runs one round trip: base -> quote at entryFee, then the exact
// intermediate amount quote -> base at exitFee.
func (d *Detector) Evaluate(
	ctx context.Context,
	chain config.ChainConfig,
	quoter dex.Quoter,
	amountIn *big.Int,
	entryFee, exitFee uint32,
	pricing Pricing,
) (*types.ScanResult, error) {
	if pricing.GasCost == nil {
		return nil, errors.New("missing gas cost")
	}

	// Leg 1: base -> quote
	leg1, err := quoter.QuoteExactInputSingle(ctx, dex.QuoteParams{
		TokenIn:  chain.BaseToken,
		TokenOut: chain.QuoteToken,
		AmountIn: amountIn,
		Fee:      entryFee,
	})
	if err != nil {
		return nil, fmt.Errorf("leg 1 at fee %d: %w", entryFee, err)
	}
	if leg1.AmountOut.Sign() <= 0 {
		return nil, fmt.Errorf("leg 1 at fee %d: %w: zero output", entryFee, dex.ErrQuoteUnavailable)
	}

	// Leg 2: quote -> base with the exact leg 1 output
	leg2, err := quoter.QuoteExactInputSingle(ctx, dex.QuoteParams{
		TokenIn:  chain.QuoteToken,
		TokenOut: chain.BaseToken,
		AmountIn: leg1.AmountOut,
		Fee:      exitFee,
	})
	if err != nil {
		return nil, fmt.Errorf("leg 2 at fee %d: %w", exitFee, err)
	}

	calc := utils.NewProfitCalculator(chain.BaseDecimals)
	profit, err := calc.Calculate(utils.RoundTrip{
		AmountIn:     amountIn,
		Intermediate: leg1.AmountOut,
		AmountOut:    leg2.AmountOut,
		GasCost:      pricing.GasCost.Base,
	}, pricing.ReferencePrice)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate profit: %w", err)
	}

	route := RouteLabel(entryFee, exitFee)
	result := &types.ScanResult{
		ID:       resultID(pricing.SweepID, chain.ID, route, amountIn),
		SweepID:  pricing.SweepID,
		ChainID:  chain.ID,
		Route:    route,
		EntryFee: entryFee,
		ExitFee:  exitFee,

		AmountInRaw:     new(big.Int).Set(amountIn),
		IntermediateRaw: new(big.Int).Set(leg1.AmountOut),
		AmountOutRaw:    new(big.Int).Set(leg2.AmountOut),
		GrossProfitRaw:  profit.Gross,
		GasCostRaw:      new(big.Int).Set(pricing.GasCost.Base),
		NetProfitRaw:    profit.Net,

		AmountIn:     fixed.ToDecimal(amountIn, chain.BaseDecimals),
		Intermediate: fixed.ToDecimal(leg1.AmountOut, chain.QuoteDecimals),
		AmountOut:    fixed.ToDecimal(leg2.AmountOut, chain.BaseDecimals),

		GrossProfitNative: profit.GrossNative,
		NetProfitNative:   profit.NetNative,
		GasCostNative:     profit.GasNative,

		GrossProfitFiat: fixed.Float(profit.GrossFiat),
		NetProfitFiat:   fixed.Float(profit.NetFiat),
		GasCostFiat:     fixed.Float(profit.GasFiat),

		SpreadBps:      profit.SpreadBps,
		ReferencePrice: fixed.Float(pricing.ReferencePrice),
		Status:         profit.Status,
		Timestamp:      d.now(),
	}

	return result, nil
}

// Sweep evaluates every trade amount against every entry/exit fee tier pair
// on one chain. Combinations without a pool are skipped. Connection errors
// and cancellation abort the sweep.
func (d *Detector) Sweep(ctx context.Context, chain config.ChainConfig, quoter dex.Quoter) (*SweepReport, error) {
	logger := d.logger.With(zap.String("chain", chain.ID))

	report := &SweepReport{
		SweepID:   uuid.NewString(),
		ChainID:   chain.ID,
		StartedAt: d.now(),
	}

	amounts, err := d.cfg.TradeAmountsRaw(chain.BaseDecimals)
	if err != nil {
		return nil, fmt.Errorf("invalid trade amounts: %w", err)
	}

	// Get gas cost once per sweep
	cost, err := d.estimator.Estimate(ctx, quoter, chain.BaseDecimals)
	if err != nil {
		return nil, err
	}
	report.GasPrice = cost.GasPrice

	// Get reference price once per sweep
	refPrice, live, err := d.ReferencePrice(ctx, chain, quoter)
	if err != nil {
		return nil, err
	}
	report.ReferencePrice = refPrice
	report.ReferenceLive = live

	if d.metrics != nil {
		d.metrics.Chain.GasPriceGwei.WithLabelValues(chain.ID).Set(gas.Gwei(cost.GasPrice))
		d.metrics.Chain.ReferencePrice.WithLabelValues(chain.ID).Set(fixed.Float(refPrice))
	}

	pricing := Pricing{
		SweepID:        report.SweepID,
		ReferencePrice: refPrice,
		GasCost:        cost,
	}

	for _, amountIn := range amounts {
		for _, entryFee := range d.cfg.FeeTiers {
			for _, exitFee := range d.cfg.FeeTiers {
				report.Combinations++

				result, err := d.Evaluate(ctx, chain, quoter, amountIn, entryFee, exitFee, pricing)
				if err != nil {
					if errors.Is(err, dex.ErrQuoteUnavailable) {
						report.Unavailable++
						logger.Debug("Combination unavailable",
							zap.String("route", RouteLabel(entryFee, exitFee)),
							zap.String("amountIn", amountIn.String()),
							zap.Error(err),
						)
						continue
					}
					if ctx.Err() != nil {
						return nil, ctx.Err()
					}
					return nil, err
				}

				d.observe(result)
				report.Results = append(report.Results, result)
			}
		}
	}

	report.Duration = d.now().Sub(report.StartedAt)
	if d.metrics != nil {
		d.metrics.Scan.SweepDuration.Observe(report.Duration.Seconds())
	}

	logger.Debug("Sweep complete",
		zap.String("sweepId", report.SweepID),
		zap.Int("results", len(report.Results)),
		zap.Int("unavailable", report.Unavailable),
		zap.Duration("duration", report.Duration),
	)

	return report, nil
}

func (d *Detector) observe(result *types.ScanResult) {
	if d.metrics == nil {
		return
	}
	d.metrics.Scan.Results.WithLabelValues(result.ChainID, string(result.Status)).Inc()
	d.metrics.Scan.SpreadBps.Observe(result.SpreadBps)
}

func resultID(sweepID, chainID, route string, amountIn *big.Int) string {
	h := xxhash.New()
	_, _ = h.WriteString(sweepID)
	_, _ = h.WriteString(chainID)
	_, _ = h.WriteString(route)
	_, _ = h.WriteString(amountIn.String())
	return fmt.Sprintf("%016x", h.Sum64())
}
