package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Status classifies the outcome of a round trip
type Status string

const (
	StatusLoss                   Status = "LOSS"
	StatusPositiveSpreadNoProfit Status = "POSITIVE_SPREAD_NO_PROFIT"
	StatusProfitable             Status = "PROFITABLE"
)

// ScanResult is the evaluated outcome of one base -> quote -> base round trip
type ScanResult struct {
	ID       string `json:"id"`
	SweepID  string `json:"sweepId"`
	ChainID  string `json:"chainId"`
	Route    string `json:"route"`
	EntryFee uint32 `json:"entryFee"`
	ExitFee  uint32 `json:"exitFee"`

	// Raw fixed-point amounts. Amounts in base-token units unless noted.
	AmountInRaw     *big.Int `json:"-"`
	IntermediateRaw *big.Int `json:"-"` // quote-token units
	AmountOutRaw    *big.Int `json:"-"`
	GrossProfitRaw  *big.Int `json:"-"`
	GasCostRaw      *big.Int `json:"-"`
	NetProfitRaw    *big.Int `json:"-"`

	AmountIn     decimal.Decimal `json:"amountIn"`
	Intermediate decimal.Decimal `json:"intermediateAmount"`
	AmountOut    decimal.Decimal `json:"amountOut"`

	GrossProfitNative decimal.Decimal `json:"grossProfitNative"`
	NetProfitNative   decimal.Decimal `json:"netProfitNative"`
	GasCostNative     decimal.Decimal `json:"gasCostNative"`

	GrossProfitFiat float64 `json:"grossProfitFiat"`
	NetProfitFiat   float64 `json:"netProfitFiat"`
	GasCostFiat     float64 `json:"gasCostFiat"`

	SpreadBps      float64   `json:"spreadBps"`
	ReferencePrice float64   `json:"referencePrice"`
	Status         Status    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
}

// Clone returns a copy that shares no big.Int pointers with the receiver
func (r *ScanResult) Clone() *ScanResult {
	if r == nil {
		return nil
	}
	c := *r
	c.AmountInRaw = cloneInt(r.AmountInRaw)
	c.IntermediateRaw = cloneInt(r.IntermediateRaw)
	c.AmountOutRaw = cloneInt(r.AmountOutRaw)
	c.GrossProfitRaw = cloneInt(r.GrossProfitRaw)
	c.GasCostRaw = cloneInt(r.GasCostRaw)
	c.NetProfitRaw = cloneInt(r.NetProfitRaw)
	return &c
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// Statistics holds the running counters of a scan session
type Statistics struct {
	TotalScans          uint64  `json:"totalScans"`
	SkippedTicks        uint64  `json:"skippedTicks"`
	PositiveSpreadCount uint64  `json:"positiveSpreadCount"`
	NegativeSpreadCount uint64  `json:"negativeSpreadCount"`
	ProfitableCount     uint64  `json:"profitableCount"`
	UnavailableCount    uint64  `json:"unavailableCount"`
	ChainErrorCount     uint64  `json:"chainErrorCount"`
	SampleCount         uint64  `json:"sampleCount"`
	AvgSpreadBps        float64 `json:"avgSpreadBps"`
	MinSpreadBps        float64 `json:"minSpreadBps"`
	MaxSpreadBps        float64 `json:"maxSpreadBps"`
	CurrentChain        string  `json:"currentChain"`
}

// ChainStatus is the per-chain metadata shown on the status page
type ChainStatus struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	ChainID        uint64         `json:"chainId"`
	NativeSymbol   string         `json:"nativeSymbol"`
	Explorer       string         `json:"explorer"`
	Quoter         common.Address `json:"quoter"`
	BaseToken      common.Address `json:"baseToken"`
	QuoteToken     common.Address `json:"quoteToken"`
	Balance        string         `json:"balance,omitempty"`
	GasPriceGwei   float64        `json:"gasPriceGwei,omitempty"`
	ReferencePrice float64        `json:"referencePrice,omitempty"`
	LastSweep      *time.Time     `json:"lastSweep,omitempty"`
	LastError      string         `json:"lastError,omitempty"`
	Stale          bool           `json:"stale,omitempty"`
}

// ScannerState is the full in-memory state exposed by the status endpoint
type ScannerState struct {
	IsRunning     bool          `json:"isRunning"`
	IsDryRun      bool          `json:"isDryRun"`
	StartTime     *time.Time    `json:"startTime,omitempty"`
	Uptime        time.Duration `json:"uptime"`
	UptimeSeconds float64       `json:"uptimeSeconds"`
	Statistics    Statistics    `json:"statistics"`
	Opportunities []*ScanResult `json:"opportunities"`
	LastResults   []*ScanResult `json:"lastResults"`
	Chains        []ChainStatus `json:"chains"`
	Config        interface{}   `json:"config,omitempty"`
}
