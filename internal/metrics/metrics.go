// Package metrics holds the Prometheus instruments for the validation hot
// path and the snapshot lifecycle.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles all registered instruments. Construct once at startup and
// inject where needed.
type Metrics struct {
	ValidationTotal  *prometheus.CounterVec
	SnapshotRebuilds *prometheus.CounterVec
	SnapshotSize     *prometheus.GaugeVec
}

// New creates the instruments and registers them on the given registry.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		ValidationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "killswitch",
			Subsystem: "license",
			Name:      "validations_total",
			Help:      "License validation requests by outcome",
		}, []string{"outcome"}),
		SnapshotRebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "killswitch",
			Subsystem: "snapshot",
			Name:      "rebuilds_total",
			Help:      "Snapshot rebuild attempts by result",
		}, []string{"result"}),
		SnapshotSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "killswitch",
			Subsystem: "snapshot",
			Name:      "records",
			Help:      "Records held by the current snapshot",
		}, []string{"kind"}),
	}

	registry.MustRegister(
		m.ValidationTotal,
		m.SnapshotRebuilds,
		m.SnapshotSize,
	)

	return m
}
