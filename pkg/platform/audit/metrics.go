package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit ledger.
type Metrics struct {
	EntriesAppended *prometheus.CounterVec
	PersistFailures prometheus.Counter
	PersistDuration prometheus.Histogram
}

// NewMetrics registers ledger metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EntriesAppended: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edms_audit_entries_appended_total",
			Help: "Total number of audit entries appended, by action",
		}, []string{"action"}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "edms_audit_persist_failures_total",
			Help: "Total number of audit appends that failed and aborted their operation",
		}),
		PersistDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "edms_audit_persist_duration_seconds",
			Help:    "Time spent persisting one audit entry",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) incAppended(action Action) {
	if m == nil {
		return
	}
	m.EntriesAppended.WithLabelValues(string(action)).Inc()
}

func (m *Metrics) incPersistFailures() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

func (m *Metrics) observePersistDuration(seconds float64) {
	if m == nil {
		return
	}
	m.PersistDuration.Observe(seconds)
}
