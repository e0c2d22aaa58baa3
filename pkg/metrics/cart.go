package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CartSyncMetrics exports remote cart operation outcomes and debounce behaviour.
type CartSyncMetrics struct {
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
	flushes  *prometheus.CounterVec
	stale    *prometheus.CounterVec
	sessions prometheus.Gauge
}

// NewCartSyncMetrics registers the cart metrics on the provided registerer.
func NewCartSyncMetrics(reg prometheus.Registerer) *CartSyncMetrics {
	if reg == nil {
		return &CartSyncMetrics{}
	}
	m := &CartSyncMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cart_remote_duration_seconds",
			Help:    "Latency of remote cart service calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cart_remote_ops_total",
			Help: "Remote cart operations by terminal phase.",
		}, []string{"op", "phase"}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cart_debounce_flushes_total",
			Help: "Debounce timer firings, split by whether a write was sent.",
		}, []string{"controller", "result"}),
		stale: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cart_stale_responses_total",
			Help: "Remote responses older than the newest local edit.",
		}, []string{"op"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cart_active_sessions",
			Help: "Cart sessions currently held in memory.",
		}),
	}
	reg.MustRegister(m.duration, m.outcomes, m.flushes, m.stale, m.sessions)
	return m
}

// ObserveOp records a terminal phase of a remote operation.
func (m *CartSyncMetrics) ObserveOp(op, phase string, elapsed time.Duration) {
	if m == nil || m.outcomes == nil {
		return
	}
	op = normalizeLabel(op)
	m.outcomes.WithLabelValues(op, normalizeLabel(phase)).Inc()
	m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveFlush records one debounce firing.
func (m *CartSyncMetrics) ObserveFlush(controller string, sent bool) {
	if m == nil || m.flushes == nil {
		return
	}
	result := "skipped"
	if sent {
		result = "sent"
	}
	m.flushes.WithLabelValues(normalizeLabel(controller), result).Inc()
}

func (m *CartSyncMetrics) ObserveStale(op string) {
	if m == nil || m.stale == nil {
		return
	}
	m.stale.WithLabelValues(normalizeLabel(op)).Inc()
}

func (m *CartSyncMetrics) SetActiveSessions(n int) {
	if m == nil || m.sessions == nil {
		return
	}
	m.sessions.Set(float64(n))
}
