package printing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the print ledger.
type Metrics struct {
	Requested      prometheus.Counter
	CopiesIssued   prometheus.Counter
	Reconciled     prometheus.Counter
	CopyCollisions prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requested: f.NewCounter(prometheus.CounterOpts{
			Name: "edms_print_requests_total",
			Help: "Controlled print requests created",
		}),
		CopiesIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "edms_print_copies_issued_total",
			Help: "Controlled copies issued",
		}),
		Reconciled: f.NewCounter(prometheus.CounterOpts{
			Name: "edms_print_events_reconciled_total",
			Help: "Print events closed by reconciliation",
		}),
		CopyCollisions: f.NewCounter(prometheus.CounterOpts{
			Name: "edms_print_copy_collisions_total",
			Help: "Copy numbers refused by the registry because they were already issued",
		}),
	}
}

func (m *Metrics) incRequested() {
	if m != nil {
		m.Requested.Inc()
	}
}

func (m *Metrics) addIssued(n int) {
	if m != nil {
		m.CopiesIssued.Add(float64(n))
	}
}

func (m *Metrics) incReconciled() {
	if m != nil {
		m.Reconciled.Inc()
	}
}

func (m *Metrics) incCollision() {
	if m != nil {
		m.CopyCollisions.Inc()
	}
}
