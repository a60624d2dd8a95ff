package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Published prometheus.Counter
	Failures  prometheus.Counter
	Pending   prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Published: f.NewCounter(prometheus.CounterOpts{
			Name: "edms_audit_outbox_published_total",
			Help: "Audit entries relayed to Kafka",
		}),
		Failures: f.NewCounter(prometheus.CounterOpts{
			Name: "edms_audit_outbox_failures_total",
			Help: "Audit entries the broker did not acknowledge",
		}),
		Pending: f.NewGauge(prometheus.GaugeOpts{
			Name: "edms_audit_outbox_pending",
			Help: "Unpublished rows seen by the last flush",
		}),
	}
}

func (m *Metrics) incPublished(n int) {
	if m != nil {
		m.Published.Add(float64(n))
	}
}

func (m *Metrics) incFailures(n int) {
	if m != nil && n > 0 {
		m.Failures.Add(float64(n))
	}
}

func (m *Metrics) setPending(n int) {
	if m != nil {
		m.Pending.Set(float64(n))
	}
}
