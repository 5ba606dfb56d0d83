package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics records outbound escrow call activity against the ledger
// submission service.
type LedgerMetrics struct {
	attempts *prometheus.CounterVec
	retries  *prometheus.CounterVec
	failures *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// Ledger returns the lazily-initialised ledger metrics registry.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bountyx",
				Subsystem: "ledger",
				Name:      "attempts_total",
				Help:      "Total ledger escrow calls segmented by operation and outcome.",
			}, []string{"op", "outcome"}),
			retries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bountyx",
				Subsystem: "ledger",
				Name:      "retries_total",
				Help:      "Total transient ledger failures that triggered a retry.",
			}, []string{"op"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bountyx",
				Subsystem: "ledger",
				Name:      "failures_total",
				Help:      "Total ledger calls surfaced as failed segmented by operation and code.",
			}, []string{"op", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "bountyx",
				Subsystem: "ledger",
				Name:      "call_duration_seconds",
				Help:      "Latency distribution for ledger escrow calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
		}
		prometheus.MustRegister(
			ledgerRegistry.attempts,
			ledgerRegistry.retries,
			ledgerRegistry.failures,
			ledgerRegistry.latency,
		)
	})
	return ledgerRegistry
}

// ObserveCall records one completed ledger call.
func (m *LedgerMetrics) ObserveCall(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveRetry records a transient failure that will be retried.
func (m *LedgerMetrics) ObserveRetry(op string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(op).Inc()
}

// ObserveFailure records a ledger call surfaced to the engine as failed.
func (m *LedgerMetrics) ObserveFailure(op, code string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(op, code).Inc()
}
