package worker

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors of the worker.
type Metrics struct {
	Deliveries *prometheus.CounterVec
	Purged     prometheus.Counter
	Sweeps     *prometheus.CounterVec
}

// NewMetrics creates the worker collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "subjectdesk",
			Subsystem: "worker",
			Name:      "deliveries_total",
			Help:      "Queued notifications handled, by kind and result.",
		}, []string{"kind", "result"}),
		Purged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "subjectdesk",
			Subsystem: "worker",
			Name:      "purged_requests_total",
			Help:      "Expired pending requests removed by the sweep.",
		}),
		Sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "subjectdesk",
			Subsystem: "worker",
			Name:      "sweeps_total",
			Help:      "Sweep runs, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.Deliveries, m.Purged, m.Sweeps)
	return m
}
