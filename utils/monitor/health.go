package monitor

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/arbscan/types"
)

// StateSource exposes the scanner state to the monitor
type StateSource interface {
	Snapshot() types.ScannerState
}

// HealthMonitor samples the scanner state on an interval, exports it as
// gauges and warns about chains that stopped producing sweeps
type HealthMonitor struct {
	source     StateSource
	interval   time.Duration
	staleAfter time.Duration
	logger     *zap.Logger
	now        func() time.Time

	metrics struct {
		uptime        prometheus.Gauge
		opportunities prometheus.Gauge
		goroutines    prometheus.Gauge
		sweepAge      *prometheus.GaugeVec
	}

	mu    sync.Mutex
	stale map[string]bool
	last  types.ScannerState
}

// NewHealthMonitor registers the monitor gauges on reg. A chain whose last
// sweep is older than staleAfter while the scanner runs is reported stale.
func NewHealthMonitor(source StateSource, reg prometheus.Registerer, namespace string, interval, staleAfter time.Duration, logger *zap.Logger) *HealthMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &HealthMonitor{
		source:     source,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     logger.With(zap.String("component", "health")),
		now:        time.Now,
		stale:      make(map[string]bool),
	}

	factory := promauto.With(reg)
	m.metrics.uptime = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Seconds since the current scan session started",
	})
	m.metrics.opportunities = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "opportunities_stored",
		Help:      "Profitable results currently held in memory",
	})
	m.metrics.goroutines = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "goroutines",
		Help:      "Current number of goroutines",
	})
	m.metrics.sweepAge = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_sweep_age_seconds",
		Help:      "Seconds since the last successful sweep of a chain",
	}, []string{"chain"})

	return m
}

// Run samples until ctx is done
func (m *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.collect()
		}
	}
}

// collect takes one sample of the scanner state
func (m *HealthMonitor) collect() {
	state := m.source.Snapshot()
	now := m.now()

	m.metrics.uptime.Set(state.UptimeSeconds)
	m.metrics.opportunities.Set(float64(len(state.Opportunities)))
	m.metrics.goroutines.Set(float64(runtime.NumGoroutine()))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = state

	for _, chain := range state.Chains {
		if chain.LastSweep == nil {
			m.metrics.sweepAge.DeleteLabelValues(chain.ID)
		} else {
			m.metrics.sweepAge.WithLabelValues(chain.ID).Set(now.Sub(*chain.LastSweep).Seconds())
		}

		stale := state.IsRunning && state.StartTime != nil && m.isStale(now, *state.StartTime, chain.LastSweep)
		switch {
		case stale && !m.stale[chain.ID]:
			m.logger.Warn("Chain has not completed a sweep recently",
				zap.String("chain", chain.ID),
				zap.String("last_error", chain.LastError),
				zap.Duration("stale_after", m.staleAfter),
			)
		case !stale && m.stale[chain.ID]:
			m.logger.Info("Chain sweeps recovered", zap.String("chain", chain.ID))
		}
		m.stale[chain.ID] = stale
	}
}

func (m *HealthMonitor) isStale(now, started time.Time, lastSweep *time.Time) bool {
	if m.staleAfter <= 0 {
		return false
	}
	since := started
	if lastSweep != nil && lastSweep.After(started) {
		since = *lastSweep
	}
	return now.Sub(since) > m.staleAfter
}

// StaleChains returns the chains flagged stale by the last sample
func (m *HealthMonitor) StaleChains() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for _, chain := range m.last.Chains {
		if m.stale[chain.ID] {
			out = append(out, chain.ID)
		}
	}
	return out
}
