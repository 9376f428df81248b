package scanner

import (
	"math"
	"sync"

	"github.com/michaelpento.lv/arbscan/types"
)

// Aggregator keeps running statistics over every result since the last reset.
// Spread statistics are online: sum, count, min and max.
type Aggregator struct {
	mu    sync.Mutex
	stats types.Statistics
	sum   float64
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Record folds one result into the statistics
func (a *Aggregator) Record(result *types.ScanResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if result.GrossProfitRaw != nil && result.GrossProfitRaw.Sign() > 0 {
		a.stats.PositiveSpreadCount++
	} else {
		a.stats.NegativeSpreadCount++
	}
	if result.Status == types.StatusProfitable {
		a.stats.ProfitableCount++
	}

	bps := result.SpreadBps
	if a.stats.SampleCount == 0 {
		a.stats.MinSpreadBps = bps
		a.stats.MaxSpreadBps = bps
	} else {
		a.stats.MinSpreadBps = math.Min(a.stats.MinSpreadBps, bps)
		a.stats.MaxSpreadBps = math.Max(a.stats.MaxSpreadBps, bps)
	}
	a.stats.SampleCount++
	a.sum += bps
	a.stats.AvgSpreadBps = a.sum / float64(a.stats.SampleCount)
}

func (a *Aggregator) IncTotalScans() {
	a.mu.Lock()
	a.stats.TotalScans++
	a.mu.Unlock()
}

func (a *Aggregator) IncSkipped() {
	a.mu.Lock()
	a.stats.SkippedTicks++
	a.mu.Unlock()
}

func (a *Aggregator) AddUnavailable(n int) {
	a.mu.Lock()
	a.stats.UnavailableCount += uint64(n)
	a.mu.Unlock()
}

func (a *Aggregator) IncChainErrors() {
	a.mu.Lock()
	a.stats.ChainErrorCount++
	a.mu.Unlock()
}

func (a *Aggregator) SetCurrentChain(id string) {
	a.mu.Lock()
	a.stats.CurrentChain = id
	a.mu.Unlock()
}

// Snapshot returns a copy of the current statistics
func (a *Aggregator) Snapshot() types.Statistics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Reset zeroes every counter
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.stats = types.Statistics{}
	a.sum = 0
	a.mu.Unlock()
}
