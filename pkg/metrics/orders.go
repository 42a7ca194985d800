package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics records checkout, payment, and download activity.
type OrderMetrics struct {
	checkoutDuration *prometheus.HistogramVec
	checkouts        *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	downloads        *prometheus.CounterVec
}

// NewOrderMetrics registers the order metrics on the provided registerer.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	checkoutDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Duration of checkout executions in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_total",
		Help: "Checkout attempts by outcome.",
	}, []string{"outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_transitions_total",
		Help: "Payment state transitions by target status and source.",
	}, []string{"status", "source"})
	downloads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "download_urls_issued_total",
		Help: "Signed download URLs issued.",
	}, []string{"outcome"})
	reg.MustRegister(checkoutDuration, checkouts, transitions, downloads)
	return &OrderMetrics{
		checkoutDuration: checkoutDuration,
		checkouts:        checkouts,
		transitions:      transitions,
		downloads:        downloads,
	}
}

// ObserveCheckout records one checkout attempt and its duration.
func (m *OrderMetrics) ObserveCheckout(outcome string, duration time.Duration) {
	if m == nil || m.checkouts == nil {
		return
	}
	label := normalizeLabel(outcome)
	m.checkouts.WithLabelValues(label).Inc()
	m.checkoutDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// IncPaymentTransition counts a payment status change. Source is "client" or
// "webhook".
func (m *OrderMetrics) IncPaymentTransition(status, source string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(status), normalizeLabel(source)).Inc()
}

// IncDownloadIssued counts a signed URL issuance attempt.
func (m *OrderMetrics) IncDownloadIssued(outcome string) {
	if m == nil || m.downloads == nil {
		return
	}
	m.downloads.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
