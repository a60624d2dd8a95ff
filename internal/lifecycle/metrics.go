package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"edms/internal/document"
)

// Metrics holds Prometheus metrics for the lifecycle engine.
type Metrics struct {
	DraftsCreated prometheus.Counter
	VersionsAdded prometheus.Counter
	Transitions   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DraftsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "edms_documents_created_total",
			Help: "Total number of draft documents created",
		}),
		VersionsAdded: f.NewCounter(prometheus.CounterOpts{
			Name: "edms_document_versions_added_total",
			Help: "Total number of document versions added",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edms_document_transitions_total",
			Help: "Accepted lifecycle transitions, by source and target state",
		}, []string{"from", "to"}),
	}
}

func (m *Metrics) incDraftsCreated() {
	if m != nil {
		m.DraftsCreated.Inc()
	}
}

func (m *Metrics) incVersionsAdded() {
	if m != nil {
		m.VersionsAdded.Inc()
	}
}

func (m *Metrics) incTransition(from, to document.State) {
	if m != nil {
		m.Transitions.WithLabelValues(string(from), string(to)).Inc()
	}
}
