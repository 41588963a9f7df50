package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sslscope"

// Metrics holds the collectors shared by the fetch and build pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	tickFetches   *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	buildDuration prometheus.Histogram
	rpcRetries    *prometheus.CounterVec
	sessions      prometheus.Gauge
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		tickFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_fetches_total",
			Help:      "Tick window fetches by result.",
		}, []string{"result"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_fetch_duration_seconds",
			Help:      "Time spent reading and normalizing a tick window.",
			Buckets:   prometheus.DefBuckets,
		}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "profile_build_duration_seconds",
			Help:      "Time spent building chart entries from a tick window.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		rpcRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_retries_total",
			Help:      "Retried eth_call attempts by method selector.",
		}, []string{"method"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chart_sessions",
			Help:      "Chart sessions held by the API server.",
		}),
	}

	for _, c := range []prometheus.Collector{m.tickFetches, m.fetchDuration, m.buildDuration, m.rpcRetries, m.sessions} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return m, nil
}

// ObserveFetch records a tick window fetch.
func (m *Metrics) ObserveFetch(start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.tickFetches.WithLabelValues(result).Inc()
	m.fetchDuration.Observe(time.Since(start).Seconds())
}

// SkipFetch records a fetch avoided because cached data already covered the window.
func (m *Metrics) SkipFetch() {
	if m == nil {
		return
	}
	m.tickFetches.WithLabelValues("skipped").Inc()
}

// ObserveBuild records a profile build.
func (m *Metrics) ObserveBuild(start time.Time) {
	if m == nil {
		return
	}
	m.buildDuration.Observe(time.Since(start).Seconds())
}

// RPCRetry records one retried contract call.
func (m *Metrics) RPCRetry(method string) {
	if m == nil {
		return
	}
	m.rpcRetries.WithLabelValues(method).Inc()
}

// SetSessions reports the number of live chart sessions.
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.sessions.Set(float64(n))
}
