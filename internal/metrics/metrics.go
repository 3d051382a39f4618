package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "makerwatch"

// Metrics groups the collectors exported by the poller. A nil *Metrics is valid
// and records nothing, so components can be built without a registry.
type Metrics struct {
	rpcCalls     *prometheus.CounterVec
	rpcLatency   *prometheus.HistogramVec
	probes       *prometheus.CounterVec
	liveRecords  *prometheus.GaugeVec
	scanDuration *prometheus.HistogramVec
	jobRuns      *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	supply       *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Contract reads segmented by method and outcome.",
		}, []string{"method", "outcome"}),
		rpcLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "Latency of contract reads.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "probes_total",
			Help:      "Sparse id probes segmented by scanner and result (live, empty, failed).",
		}, []string{"scanner", "result"}),
		liveRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "live_records",
			Help:      "Live records found by the last completed pass.",
		}, []string{"scanner"}),
		scanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "pass_duration_seconds",
			Help:      "Wall time of a complete scan pass.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"scanner"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "runs_total",
			Help:      "Periodic job runs segmented by outcome.",
		}, []string{"job", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "run_duration_seconds",
			Help:      "Duration of periodic job runs.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		supply: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "token",
			Name:      "total_supply",
			Help:      "Last observed scaled total supply.",
		}, []string{"token"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.rpcCalls,
			m.rpcLatency,
			m.probes,
			m.liveRecords,
			m.scanDuration,
			m.jobRuns,
			m.jobDuration,
			m.supply,
		)
	}
	return m
}

// ObserveRPC records a single contract read.
func (m *Metrics) ObserveRPC(method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.rpcCalls.WithLabelValues(method, outcome).Inc()
	m.rpcLatency.WithLabelValues(method).Observe(d.Seconds())
}

// ObserveProbe counts one probe result.
func (m *Metrics) ObserveProbe(scanner, result string) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(scanner, result).Inc()
}

// ObservePass records the outcome of a finished scan pass.
func (m *Metrics) ObservePass(scanner string, live int, d time.Duration) {
	if m == nil {
		return
	}
	m.liveRecords.WithLabelValues(scanner).Set(float64(live))
	m.scanDuration.WithLabelValues(scanner).Observe(d.Seconds())
}

// ObserveJob records a periodic job run.
func (m *Metrics) ObserveJob(job, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

// SetSupply publishes the last scaled supply of token.
func (m *Metrics) SetSupply(token string, value float64) {
	if m == nil {
		return
	}
	m.supply.WithLabelValues(token).Set(value)
}
