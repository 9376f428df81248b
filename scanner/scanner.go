package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/arbscan/config"
	"github.com/michaelpento.lv/arbscan/dex"
	"github.com/michaelpento.lv/arbscan/gas"
	"github.com/michaelpento.lv/arbscan/strategies/arbitrage"
	"github.com/michaelpento.lv/arbscan/types"
	fixed "github.com/michaelpento.lv/arbscan/utils/math"
	"github.com/michaelpento.lv/arbscan/utils/metrics"
)

// ErrAlreadyRunning is returned by Start while a scan session is active
var ErrAlreadyRunning = errors.New("scanner already running")

// Event types pushed to the notifier
const (
	EventOpportunity = "opportunity"
	EventSweep       = "sweep"
	EventChainError  = "chain_error"
	EventStarted     = "started"
	EventStopped     = "stopped"
)

// Sweeper runs one full sweep over a chain
type Sweeper interface {
	Sweep(ctx context.Context, chain config.ChainConfig, quoter dex.Quoter) (*arbitrage.SweepReport, error)
}

// Event is a scanner notification
type Event struct {
	Type      string      `json:"type"`
	Chain     string      `json:"chain,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Notifier receives scanner events
type Notifier interface {
	Publish(event Event)
}

// StartResult is reported by Start
type StartResult struct {
	Success   bool           `json:"success"`
	IsRunning bool           `json:"isRunning"`
	IsDryRun  bool           `json:"isDryRun"`
	Config    config.Summary `json:"config"`
	Error     string         `json:"error,omitempty"`
}

// StopResult is reported by Stop
type StopResult struct {
	Success   bool `json:"success"`
	IsRunning bool `json:"isRunning"`
}

// SweepSummary is the payload of sweep events
type SweepSummary struct {
	SweepID        string  `json:"sweepId"`
	Results        int     `json:"results"`
	Unavailable    int     `json:"unavailable"`
	Profitable     int     `json:"profitable"`
	GasPriceGwei   float64 `json:"gasPriceGwei"`
	ReferencePrice float64 `json:"referencePrice"`
	DurationMs     int64   `json:"durationMs"`
}

// chainSnapshot is the last observed state of a chain
type chainSnapshot struct {
	GasPriceGwei   float64
	ReferencePrice float64
	LastSweep      time.Time
	LastError      string
}

// run is one scan session between Start and Stop
type run struct {
	generation uint64
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// Scanner drives periodic sweeps over the configured chains
type Scanner struct {
	cfg      *config.Config
	chains   []config.ChainConfig
	quoters  map[string]dex.Quoter
	sweeper  Sweeper
	selector ChainSelector
	stats    *Aggregator
	store    *OpportunityStore
	cache    *lru.Cache
	metrics  *metrics.Metrics
	notifier Notifier
	logger   *zap.Logger

	mu          sync.RWMutex
	running     bool
	generation  uint64
	current     *run
	startTime   time.Time
	lastResults []*types.ScanResult

	busy atomic.Bool
}

// New creates a scanner. Every configured chain needs a quoter.
func New(cfg *config.Config, quoters map[string]dex.Quoter, sweeper Sweeper, m *metrics.Metrics, logger *zap.Logger) (*Scanner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	registry, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	for _, id := range registry.IDs() {
		if _, ok := quoters[id]; !ok {
			return nil, fmt.Errorf("no quoter for chain %s", id)
		}
	}

	cache, err := lru.New(registry.Len())
	if err != nil {
		return nil, fmt.Errorf("failed to create chain cache: %w", err)
	}

	return &Scanner{
		cfg:      cfg,
		chains:   registry.All(),
		quoters:  quoters,
		sweeper:  sweeper,
		selector: NewRoundRobin(),
		stats:    NewAggregator(),
		store:    NewOpportunityStore(MaxOpportunities),
		cache:    cache,
		metrics:  m,
		logger:   logger,
	}, nil
}

// SetNotifier registers the event sink. Call before Start.
func (s *Scanner) SetNotifier(n Notifier) {
	s.notifier = n
}

// Config returns the effective configuration summary
func (s *Scanner) Config() config.Summary {
	return s.cfg.Summary()
}

// Chains returns the configured chains in sweep order
func (s *Scanner) Chains() []config.ChainConfig {
	return append([]config.ChainConfig(nil), s.chains...)
}

// Quoter returns the quoter of a chain
func (s *Scanner) Quoter(chainID string) (dex.Quoter, bool) {
	q, ok := s.quoters[chainID]
	return q, ok
}

func (s *Scanner) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Start resets the session state and begins sweeping, one tick immediately
// and then every scan interval. The session ends when Stop is called or ctx
// is done.
func (s *Scanner) Start(ctx context.Context) (StartResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return StartResult{
			Success:   false,
			IsRunning: true,
			IsDryRun:  true,
			Config:    s.cfg.Summary(),
			Error:     ErrAlreadyRunning.Error(),
		}, ErrAlreadyRunning
	}

	// Reset state
	s.stats.Reset()
	s.store.Reset()
	s.selector.Reset()
	s.cache.Purge()
	s.lastResults = nil
	s.startTime = time.Now()
	s.generation++
	s.running = true

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{generation: s.generation, cancel: cancel}
	s.current = r

	r.wg.Add(1)
	go s.loop(runCtx, r)

	if s.metrics != nil {
		s.metrics.Scan.Running.Set(1)
	}
	s.logger.Info("Scanner started",
		zap.Duration("interval", s.cfg.ScanInterval),
		zap.Strings("chains", s.cfg.Summary().Chains),
	)
	s.publish(Event{Type: EventStarted, Data: s.cfg.Summary()})

	return StartResult{
		Success:   true,
		IsRunning: true,
		IsDryRun:  true,
		Config:    s.cfg.Summary(),
	}, nil
}

// Stop ends the session and aborts in-flight calls. It is safe to call at any time.
func (s *Scanner) Stop() StopResult {
	s.mu.Lock()
	r := s.current
	wasRunning := s.running
	s.current = nil
	s.running = false
	s.mu.Unlock()

	if r != nil {
		r.cancel()
		r.wg.Wait()
	}

	if wasRunning {
		if s.metrics != nil {
			s.metrics.Scan.Running.Set(0)
		}
		s.logger.Info("Scanner stopped")
		s.publish(Event{Type: EventStopped})
	}

	return StopResult{Success: true, IsRunning: false}
}

func (s *Scanner) loop(ctx context.Context, r *run) {
	defer r.wg.Done()

	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	s.launch(ctx, r)
	for {
		select {
		case <-ctx.Done():
			s.expire(r)
			return
		case <-ticker.C:
			s.launch(ctx, r)
		}
	}
}

// expire ends a session whose parent context is done. A session already
// replaced or stopped is left alone.
func (s *Scanner) expire(r *run) {
	s.mu.Lock()
	if s.current != r {
		s.mu.Unlock()
		return
	}
	s.current = nil
	s.running = false
	s.mu.Unlock()
	r.cancel()

	if s.metrics != nil {
		s.metrics.Scan.Running.Set(0)
	}
	s.logger.Info("Scanner stopped", zap.String("reason", "context done"))
	s.publish(Event{Type: EventStopped})
}

func (s *Scanner) launch(ctx context.Context, r *run) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		s.tick(ctx, r.generation)
	}()
}

// tick sweeps the next chain. Ticks never overlap: a tick that fires while
// another is in flight is skipped.
func (s *Scanner) tick(ctx context.Context, generation uint64) {
	if !s.isCurrent(generation) {
		return
	}

	if !s.busy.CompareAndSwap(false, true) {
		s.stats.IncSkipped()
		if s.metrics != nil {
			s.metrics.Scan.SkippedTicks.Inc()
		}
		s.logger.Debug("Previous sweep still running, skipping tick")
		return
	}
	defer s.busy.Store(false)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recovered from panic in tick", zap.Any("panic", r))
		}
	}()

	s.mu.Lock()
	if !s.running || s.generation != generation {
		s.mu.Unlock()
		return
	}
	s.stats.IncTotalScans()
	chain := s.selector.Next(s.chains)
	s.stats.SetCurrentChain(chain.ID)
	uptime := time.Since(s.startTime)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.Scan.Ticks.Inc()
	}

	logger := s.logger.With(zap.String("chain", chain.ID))
	logger.Debug("Sweeping chain", zap.Duration("uptime", uptime))

	report, err := s.sweeper.Sweep(ctx, chain, s.quoters[chain.ID])

	s.mu.Lock()
	defer s.mu.Unlock()

	// Discard results of a session that has been stopped or restarted
	if !s.running || s.generation != generation {
		logger.Debug("Discarding stale sweep")
		return
	}

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.stats.IncChainErrors()
		if s.metrics != nil {
			s.metrics.Chain.Errors.WithLabelValues(chain.ID).Inc()
		}
		s.updateChain(chain.ID, func(c *chainSnapshot) {
			c.LastError = err.Error()
		})
		logger.Error("Chain sweep failed", zap.Error(err))
		s.publish(Event{Type: EventChainError, Chain: chain.ID, Data: err.Error()})
		return
	}

	s.apply(chain, report)
}

// apply folds a sweep into the session state. Callers hold s.mu.
func (s *Scanner) apply(chain config.ChainConfig, report *arbitrage.SweepReport) {
	profitable := 0
	for _, result := range report.Results {
		s.stats.Record(result)
		if s.store.Push(result) {
			profitable++
			if s.metrics != nil {
				s.metrics.Scan.Opportunities.Inc()
			}
			s.logger.Info("Profitable round trip detected",
				zap.String("chain", result.ChainID),
				zap.String("route", result.Route),
				zap.String("amountIn", result.AmountIn.String()),
				zap.Float64("spreadBps", result.SpreadBps),
				zap.Float64("netProfitFiat", result.NetProfitFiat),
			)
			s.publish(Event{Type: EventOpportunity, Chain: chain.ID, Data: result.Clone()})
		}
	}
	s.stats.AddUnavailable(report.Unavailable)
	s.lastResults = report.Results

	summary := SweepSummary{
		SweepID:        report.SweepID,
		Results:        len(report.Results),
		Unavailable:    report.Unavailable,
		Profitable:     profitable,
		ReferencePrice: fixed.Float(report.ReferencePrice),
		DurationMs:     report.Duration.Milliseconds(),
	}
	if report.GasPrice != nil {
		summary.GasPriceGwei = gas.Gwei(report.GasPrice)
	}

	s.updateChain(chain.ID, func(c *chainSnapshot) {
		c.GasPriceGwei = summary.GasPriceGwei
		c.ReferencePrice = summary.ReferencePrice
		c.LastSweep = report.StartedAt
		c.LastError = ""
	})
	s.publish(Event{Type: EventSweep, Chain: chain.ID, Data: summary})
}

func (s *Scanner) updateChain(id string, fn func(c *chainSnapshot)) {
	snap := chainSnapshot{}
	if v, ok := s.cache.Get(id); ok {
		snap = v.(chainSnapshot)
	}
	fn(&snap)
	s.cache.Add(id, snap)
}

func (s *Scanner) isCurrent(generation uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running && s.generation == generation
}

func (s *Scanner) publish(event Event) {
	if s.notifier == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	s.notifier.Publish(event)
}

// Snapshot returns a deep copy of the scanner state
func (s *Scanner) Snapshot() types.ScannerState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := types.ScannerState{
		IsRunning:     s.running,
		IsDryRun:      true,
		Statistics:    s.stats.Snapshot(),
		Opportunities: s.store.List(),
		LastResults:   make([]*types.ScanResult, 0, len(s.lastResults)),
		Chains:        make([]types.ChainStatus, 0, len(s.chains)),
		Config:        s.cfg.Summary(),
	}

	if !s.startTime.IsZero() {
		start := s.startTime
		state.StartTime = &start
		if s.running {
			state.Uptime = time.Since(start)
			state.UptimeSeconds = state.Uptime.Seconds()
		}
	}

	for _, r := range s.lastResults {
		state.LastResults = append(state.LastResults, r.Clone())
	}

	for _, c := range s.chains {
		status := types.ChainStatus{
			ID:           c.ID,
			Name:         c.Name,
			ChainID:      c.ChainID,
			NativeSymbol: c.NativeSymbol,
			Explorer:     c.ExplorerURL,
			Quoter:       c.Quoter,
			BaseToken:    c.BaseToken,
			QuoteToken:   c.QuoteToken,
		}
		if v, ok := s.cache.Peek(c.ID); ok {
			snap := v.(chainSnapshot)
			status.GasPriceGwei = snap.GasPriceGwei
			status.ReferencePrice = snap.ReferencePrice
			status.LastError = snap.LastError
			if !snap.LastSweep.IsZero() {
				last := snap.LastSweep
				status.LastSweep = &last
			}
		}
		state.Chains = append(state.Chains, status)
	}

	return state
}
