package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Provisioning outcomes.
const (
	OutcomeProvisioned = "provisioned"
	OutcomeDuplicate   = "duplicate"
	OutcomeRetry       = "retry"
	OutcomeFailed      = "failed"
	OutcomeSkipped     = "skipped"
)

// PipelineMetrics tracks payment reconciliation and provisioning.
type PipelineMetrics struct {
	provisionAttempts *prometheus.CounterVec
	provisionDuration prometheus.Histogram
	provisionFailures prometheus.Counter
	paymentOutcomes   *prometheus.CounterVec
	webhookRejected   *prometheus.CounterVec
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	m := &PipelineMetrics{
		provisionAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gamehost_provisioning_attempts_total",
			Help: "Provisioning job attempts by outcome.",
		}, []string{"outcome"}),
		provisionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gamehost_provisioning_duration_seconds",
			Help:    "Time spent allocating a server.",
			Buckets: prometheus.DefBuckets,
		}),
		// Alert on any increase: the order is paid but no server exists.
		provisionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gamehost_provisioning_failed_orders_total",
			Help: "Paid orders that exhausted provisioning attempts.",
		}),
		paymentOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gamehost_payment_outcomes_total",
			Help: "Gateway outcomes applied to invoices.",
		}, []string{"gateway", "status"}),
		webhookRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gamehost_payment_webhook_rejected_total",
			Help: "Gateway notifications rejected before processing.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.provisionAttempts, m.provisionDuration, m.provisionFailures, m.paymentOutcomes, m.webhookRejected)
	return m
}

func (m *PipelineMetrics) ObserveProvisioning(outcome string, duration time.Duration) {
	if m == nil || m.provisionAttempts == nil {
		return
	}
	m.provisionAttempts.WithLabelValues(normalizeLabel(outcome)).Inc()
	m.provisionDuration.Observe(duration.Seconds())
	if outcome == OutcomeFailed {
		m.provisionFailures.Inc()
	}
}

func (m *PipelineMetrics) IncPaymentOutcome(gateway, status string) {
	if m == nil || m.paymentOutcomes == nil {
		return
	}
	m.paymentOutcomes.WithLabelValues(normalizeLabel(gateway), normalizeLabel(status)).Inc()
}

func (m *PipelineMetrics) IncWebhookRejected(reason string) {
	if m == nil || m.webhookRejected == nil {
		return
	}
	m.webhookRejected.WithLabelValues(normalizeLabel(reason)).Inc()
}
