// Package metrics exposes tracker counters on a private Prometheus registry.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ivtracker"

// Tick outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeClosed      = "market_closed"
	OutcomeNoPrice     = "no_price"
	OutcomeNoSymbol    = "no_symbol"
	OutcomeHistoryFail = "history_failed"
	OutcomeFallback    = "hv_fallback"
	OutcomeStoreFail   = "store_failed"
	OutcomePanic       = "panic"
)

type Metrics struct {
	registry *prometheus.Registry

	ticks    *prometheus.CounterVec
	rejected *prometheus.CounterVec
	lastIV   *prometheus.GaugeVec
	upsert   prometheus.Histogram
	sessions prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Polling iterations by outcome.",
		}, []string{"outcome"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_samples_total",
			Help:      "Samples the volatility model rejected, by reason.",
		}, []string{"reason"}),
		lastIV: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_iv_percent",
			Help:      "Latest volatility value per tracked symbol.",
		}, []string{"symbol"}),
		upsert: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upsert_duration_seconds",
			Help:      "Time to merge a computed window into the store.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Accepted session starts.",
		}),
	}
	m.registry.MustRegister(m.ticks, m.rejected, m.lastIV, m.upsert, m.sessions)
	return m
}

func (m *Metrics) Tick(outcome string) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Rejected(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.rejected.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) LastIV(sym string, v float64) {
	if m == nil {
		return
	}
	m.lastIV.WithLabelValues(sym).Set(v)
}

func (m *Metrics) ObserveUpsert(d time.Duration) {
	if m == nil {
		return
	}
	m.upsert.Observe(d.Seconds())
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
