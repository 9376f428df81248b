package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const DefaultNamespace = "arbscan"

// Quote call results
const (
	ResultOK          = "ok"
	ResultUnavailable = "unavailable"
	ResultConnection  = "connection_error"
	ResultCanceled    = "canceled"
)

var logger = zap.NewNop()

// Initialize sets the logger used by the metrics handler
func Initialize(log *zap.Logger) {
	if log != nil {
		logger = log
	}
}

// Metrics groups all scanner collectors registered on one registry
type Metrics struct {
	registry *prometheus.Registry

	Scan  *ScanMetrics
	Quote *QuoteMetrics
	Chain *ChainMetrics
}

type ScanMetrics struct {
	Ticks         prometheus.Counter
	SkippedTicks  prometheus.Counter
	SweepDuration prometheus.Histogram
	Results       *prometheus.CounterVec
	SpreadBps     prometheus.Histogram
	Opportunities prometheus.Counter
	Running       prometheus.Gauge
}

type QuoteMetrics struct {
	Calls   *prometheus.CounterVec
	Latency *prometheus.HistogramVec
}

type ChainMetrics struct {
	Errors         *prometheus.CounterVec
	GasPriceGwei   *prometheus.GaugeVec
	ReferencePrice *prometheus.GaugeVec
}

// New creates the scanner metrics on a fresh registry
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry: reg,
		Scan:     NewScanMetrics(reg, namespace),
		Quote:    NewQuoteMetrics(reg, namespace),
		Chain:    NewChainMetrics(reg, namespace),
	}
}

// Registry returns the registry backing the collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      zap.NewStdLog(logger),
		ErrorHandling: promhttp.ContinueOnError,
	})
}

func NewScanMetrics(reg prometheus.Registerer, namespace string) *ScanMetrics {
	factory := promauto.With(reg)
	return &ScanMetrics{
		Ticks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total number of scheduler ticks that ran a sweep",
		}),
		SkippedTicks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_skipped_total",
			Help:      "Total number of ticks skipped because a sweep was in flight",
		}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Time taken to sweep one chain",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		Results: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_results_total",
			Help:      "Total number of evaluated round trips by status",
		}, []string{"chain", "status"}),
		SpreadBps: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "spread_bps",
			Help:      "Round trip spread in basis points",
			Buckets:   prometheus.LinearBuckets(-100, 10, 21),
		}),
		Opportunities: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunities_total",
			Help:      "Total number of profitable round trips detected",
		}),
		Running: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running",
			Help:      "1 while the scanner is running",
		}),
	}
}

func NewQuoteMetrics(reg prometheus.Registerer, namespace string) *QuoteMetrics {
	factory := promauto.With(reg)
	return &QuoteMetrics{
		Calls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_calls_total",
			Help:      "Total number of quoter calls by result",
		}, []string{"chain", "result"}),
		Latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quote_latency_seconds",
			Help:      "Quoter call latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}, []string{"chain"}),
	}
}

func NewChainMetrics(reg prometheus.Registerer, namespace string) *ChainMetrics {
	factory := promauto.With(reg)
	return &ChainMetrics{
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_errors_total",
			Help:      "Total number of chain sweeps aborted by connection errors",
		}, []string{"chain"}),
		GasPriceGwei: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gas_price_gwei",
			Help:      "Last observed gas price in gwei",
		}, []string{"chain"}),
		ReferencePrice: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reference_price",
			Help:      "Last reference price of one base token in quote units",
		}, []string{"chain"}),
	}
}
