package scanner

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/michaelpento.lv/arbscan/config"
	"github.com/michaelpento.lv/arbscan/dex"
	"github.com/michaelpento.lv/arbscan/strategies/arbitrage"
	"github.com/michaelpento.lv/arbscan/types"
	"github.com/michaelpento.lv/arbscan/utils/metrics"
	"github.com/michaelpento.lv/arbscan/utils/testutils"
)

const waitFor = 2 * time.Second

type sweepFunc func(ctx context.Context, chain config.ChainConfig) (*arbitrage.SweepReport, error)

// mockSweeper records the chains it sweeps and delegates to fn
type mockSweeper struct {
	mu     sync.Mutex
	chains []string
	fn     sweepFunc
}

func (m *mockSweeper) Sweep(ctx context.Context, chain config.ChainConfig, _ dex.Quoter) (*arbitrage.SweepReport, error) {
	m.mu.Lock()
	m.chains = append(m.chains, chain.ID)
	m.mu.Unlock()

	if m.fn == nil {
		return &arbitrage.SweepReport{ChainID: chain.ID, StartedAt: time.Now()}, nil
	}
	return m.fn(ctx, chain)
}

func (m *mockSweeper) swept() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.chains...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingNotifier) Publish(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingNotifier) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func newTestScanner(t *testing.T, sweeper Sweeper, ids ...string) *Scanner {
	cfg := testutils.TestConfig(t, ids...)
	cfg.ScanInterval = time.Hour

	quoters := make(map[string]dex.Quoter, len(ids))
	for _, id := range ids {
		quoters[id] = testutils.NewFakeQuoter()
	}

	s, err := New(cfg, quoters, sweeper, metrics.New("test_scanner"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Stop() })
	return s
}

func currentGeneration(s *Scanner) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

func waitForScans(t *testing.T, s *Scanner, n uint64) {
	require.Eventually(t, func() bool {
		return s.Snapshot().Statistics.TotalScans >= n && !s.busy.Load()
	}, waitFor, 5*time.Millisecond)
}

func profitableResult(chain string, bps float64) *types.ScanResult {
	return &types.ScanResult{
		ChainID:        chain,
		Route:          "500→3000",
		GrossProfitRaw: big.NewInt(1),
		SpreadBps:      bps,
		Status:         types.StatusProfitable,
		Timestamp:      time.Now(),
	}
}

func TestNewRequiresQuoterPerChain(t *testing.T) {
	cfg := testutils.TestConfig(t, "a", "b")
	_, err := New(cfg, map[string]dex.Quoter{"a": testutils.NewFakeQuoter()}, &mockSweeper{}, nil, nil)
	assert.ErrorContains(t, err, "no quoter for chain b")
}

func TestStartStop(t *testing.T) {
	s := newTestScanner(t, &mockSweeper{}, "a", "b")
	assert.False(t, s.Running())

	res, err := s.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.IsRunning)
	assert.True(t, res.IsDryRun)
	assert.Equal(t, []string{"a", "b"}, res.Config.Chains)
	assert.True(t, s.Running())

	// Immediate first tick
	waitForScans(t, s, 1)
	gen := currentGeneration(s)

	// Starting twice leaves the session untouched
	res, err = s.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.False(t, res.Success)
	assert.True(t, res.IsRunning)
	assert.Equal(t, gen, currentGeneration(s))
	assert.Equal(t, uint64(1), s.Snapshot().Statistics.TotalScans)

	assert.Equal(t, StopResult{Success: true, IsRunning: false}, s.Stop())
	assert.False(t, s.Running())

	// Stop is idempotent
	assert.Equal(t, StopResult{Success: true, IsRunning: false}, s.Stop())
}

func TestSessionEndsWithParentContext(t *testing.T) {
	notifier := &recordingNotifier{}
	s := newTestScanner(t, &mockSweeper{}, "a")
	s.SetNotifier(notifier)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := s.Start(ctx)
	require.NoError(t, err)
	waitForScans(t, s, 1)

	cancel()
	require.Eventually(t, func() bool {
		seen := notifier.types()
		return !s.Running() && len(seen) > 0 && seen[len(seen)-1] == EventStopped
	}, waitFor, 5*time.Millisecond)
	assert.False(t, s.Snapshot().IsRunning)

	// A fresh session can be started after the parent context ended
	res, err := s.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	waitForScans(t, s, 1)
	assert.True(t, s.Running())
}

func TestStartResetsState(t *testing.T) {
	sweeper := &mockSweeper{fn: func(ctx context.Context, chain config.ChainConfig) (*arbitrage.SweepReport, error) {
		return &arbitrage.SweepReport{
			ChainID: chain.ID,
			Results: []*types.ScanResult{profitableResult(chain.ID, 12)},
		}, nil
	}}
	s := newTestScanner(t, sweeper, "a", "b")

	_, err := s.Start(context.Background())
	require.NoError(t, err)
	waitForScans(t, s, 1)
	require.Equal(t, 1, s.store.Len())

	s.Stop()
	state := s.Snapshot()
	assert.Equal(t, uint64(1), state.Statistics.ProfitableCount)

	_, err = s.Start(context.Background())
	require.NoError(t, err)
	waitForScans(t, s, 1)

	// Fresh session: one scan, round robin restarted at the first chain
	state = s.Snapshot()
	assert.Equal(t, uint64(1), state.Statistics.TotalScans)
	assert.Equal(t, uint64(1), state.Statistics.ProfitableCount)
	assert.Len(t, state.Opportunities, 1)
	assert.Equal(t, []string{"a", "a"}, sweeper.swept())
}

func TestTickRoundRobin(t *testing.T) {
	sweeper := &mockSweeper{}
	s := newTestScanner(t, sweeper, "a", "b", "c")

	_, err := s.Start(context.Background())
	require.NoError(t, err)
	waitForScans(t, s, 1)

	ctx := context.Background()
	gen := currentGeneration(s)
	for i := 0; i < 4; i++ {
		s.tick(ctx, gen)
	}

	assert.Equal(t, []string{"a", "b", "c", "a", "b"}, sweeper.swept())
	state := s.Snapshot()
	assert.Equal(t, uint64(5), state.Statistics.TotalScans)
	assert.Equal(t, "b", state.Statistics.CurrentChain)
}

func TestTickIgnoredWhenIdleOrStale(t *testing.T) {
	sweeper := &mockSweeper{}
	s := newTestScanner(t, sweeper, "a")

	s.tick(context.Background(), 0)
	assert.Empty(t, sweeper.swept())

	_, err := s.Start(context.Background())
	require.NoError(t, err)
	waitForScans(t, s, 1)

	s.tick(context.Background(), currentGeneration(s)-1)
	assert.Len(t, sweeper.swept(), 1)
}

func TestConcurrentTickSkipped(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	sweeper := &mockSweeper{fn: func(ctx context.Context, chain config.ChainConfig) (*arbitrage.SweepReport, error) {
		entered <- struct{}{}
		<-release
		return &arbitrage.SweepReport{ChainID: chain.ID, Results: []*types.ScanResult{profitableResult(chain.ID, 5)}}, nil
	}}
	s := newTestScanner(t, sweeper, "a", "b")

	_, err := s.Start(context.Background())
	require.NoError(t, err)

	select {
	case <-entered:
	case <-time.After(waitFor):
		t.Fatal("first tick never started")
	}

	// A second tick while the first is in flight is skipped
	s.tick(context.Background(), currentGeneration(s))

	state := s.Snapshot()
	assert.Equal(t, uint64(1), state.Statistics.TotalScans)
	assert.Equal(t, uint64(1), state.Statistics.SkippedTicks)
	assert.Equal(t, uint64(0), state.Statistics.SampleCount)

	close(release)
	require.Eventually(t, func() bool {
		return s.Snapshot().Statistics.SampleCount == 1
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{"a"}, sweeper.swept())
}

func TestStopAbortsInFlightSweep(t *testing.T) {
	entered := make(chan struct{}, 1)
	sweeper := &mockSweeper{fn: func(ctx context.Context, chain config.ChainConfig) (*arbitrage.SweepReport, error) {
		entered <- struct{}{}
		<-ctx.Done()
		return &arbitrage.SweepReport{Results: []*types.ScanResult{profitableResult(chain.ID, 5)}}, ctx.Err()
	}}
	s := newTestScanner(t, sweeper, "a")

	_, err := s.Start(context.Background())
	require.NoError(t, err)
	<-entered

	done := make(chan StopResult)
	go func() { done <- s.Stop() }()

	select {
	case res := <-done:
		assert.True(t, res.Success)
	case <-time.After(waitFor):
		t.Fatal("stop did not abort the in-flight sweep")
	}

	state := s.Snapshot()
	assert.False(t, state.IsRunning)
	assert.Empty(t, state.LastResults)
	assert.Empty(t, state.Opportunities)
	assert.Equal(t, uint64(0), state.Statistics.ChainErrorCount)
}

func TestChainErrorSkipsChain(t *testing.T) {
	sweeper := &mockSweeper{fn: func(ctx context.Context, chain config.ChainConfig) (*arbitrage.SweepReport, error) {
		if chain.ID == "a" {
			return nil, fmt.Errorf("%w: connection refused", dex.ErrChainConnection)
		}
		return &arbitrage.SweepReport{ChainID: chain.ID, StartedAt: time.Now(), Results: []*types.ScanResult{profitableResult(chain.ID, 7)}}, nil
	}}
	notifier := &recordingNotifier{}
	s := newTestScanner(t, sweeper, "a", "b")
	s.SetNotifier(notifier)

	_, err := s.Start(context.Background())
	require.NoError(t, err)
	waitForScans(t, s, 1)

	s.tick(context.Background(), currentGeneration(s))

	state := s.Snapshot()
	assert.True(t, state.IsRunning)
	assert.Equal(t, uint64(2), state.Statistics.TotalScans)
	assert.Equal(t, uint64(1), state.Statistics.ChainErrorCount)
	assert.Equal(t, uint64(1), state.Statistics.ProfitableCount)
	require.Len(t, state.Chains, 2)
	assert.Contains(t, state.Chains[0].LastError, "connection refused")
	assert.NotNil(t, state.Chains[1].LastSweep)

	assert.Contains(t, notifier.types(), EventChainError)
	assert.Contains(t, notifier.types(), EventOpportunity)
	assert.Contains(t, notifier.types(), EventSweep)
}

func TestPanicInTickIsRecovered(t *testing.T) {
	calls := 0
	sweeper := &mockSweeper{fn: func(ctx context.Context, chain config.ChainConfig) (*arbitrage.SweepReport, error) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		return &arbitrage.SweepReport{ChainID: chain.ID}, nil
	}}
	s := newTestScanner(t, sweeper, "a")

	_, err := s.Start(context.Background())
	require.NoError(t, err)
	waitForScans(t, s, 1)

	s.tick(context.Background(), currentGeneration(s))
	assert.Equal(t, uint64(2), s.Snapshot().Statistics.TotalScans)
	assert.True(t, s.Running())
}

func TestScannerWithDetector(t *testing.T) {
	cfg := testutils.TestConfig(t, "testnet")
	cfg.ScanInterval = time.Hour

	q := testutils.NewFakeQuoter()
	in := testutils.Units(t, "0.01", 18)
	mid := testutils.Units(t, "25", 6)
	q.SetQuote(testutils.BaseToken, 500, in, mid)
	q.SetQuote(testutils.QuoteToken, 3000, mid, testutils.Units(t, "0.0105", 18))
	q.SetQuote(testutils.QuoteToken, 500, mid, testutils.Units(t, "0.0099", 18))

	m := metrics.New("test_scanner_detector")
	detector := arbitrage.NewDetector(cfg, nil, m, zaptest.NewLogger(t))
	s, err := New(cfg, map[string]dex.Quoter{"testnet": q}, detector, m, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Stop()

	_, err = s.Start(context.Background())
	require.NoError(t, err)
	waitForScans(t, s, 1)

	require.Eventually(t, func() bool {
		return len(s.Snapshot().LastResults) > 0
	}, waitFor, 5*time.Millisecond)

	state := s.Snapshot()
	stats := state.Statistics
	assert.Equal(t, uint64(1), stats.TotalScans)
	assert.Equal(t, uint64(1), stats.ProfitableCount)
	assert.Equal(t, uint64(2), stats.UnavailableCount)
	assert.Equal(t, uint64(2), stats.SampleCount)
	require.Len(t, state.LastResults, 2)

	require.Len(t, state.Opportunities, 1)
	assert.Equal(t, "500→3000", state.Opportunities[0].Route)
	assert.InDelta(t, 500, state.Opportunities[0].SpreadBps, 1e-9)
	assert.Equal(t, 0.1, state.Chains[0].GasPriceGwei)
}
