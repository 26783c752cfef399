package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outbox dispatch outcomes.
const (
	DispatchPublished = "published"
	DispatchRetry     = "retry"
	DispatchParked    = "parked"
)

// OutboxMetrics counts publisher dispatch results per event type.
type OutboxMetrics struct {
	dispatched *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	m := &OutboxMetrics{
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gamehost_outbox_dispatch_total",
			Help: "Outbox rows handled by the publisher by event type and outcome.",
		}, []string{"event_type", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.dispatched)
	}
	return m
}

func (m *OutboxMetrics) IncDispatch(eventType, outcome string) {
	if m == nil || m.dispatched == nil {
		return
	}
	m.dispatched.WithLabelValues(normalizeLabel(eventType), outcome).Inc()
}
