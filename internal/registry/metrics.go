package registry

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes Registry table sizes and operation counts to
// Prometheus (SPEC_FULL.md §B). The pack carries client_golang only as a
// dependency and no pack repo uses it for a registry-shaped component,
// so its wiring here follows the library's own standard collector idiom
// rather than a pack precedent — see DESIGN.md.
type Metrics struct {
	Machines     prometheus.Gauge
	Nodes        prometheus.Gauge
	Channels     prometheus.Gauge
	Connections  prometheus.Gauge
	Applications prometheus.Gauge
	Operations   *prometheus.CounterVec
}

// NewMetrics constructs and registers Registry gauges/counters against
// reg. Pass prometheus.NewRegistry() in tests to avoid polluting the
// global default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Machines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nimo", Subsystem: "registry", Name: "machines",
			Help: "Number of machines known to the registry.",
		}),
		Nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nimo", Subsystem: "registry", Name: "nodes",
			Help: "Number of nodes known to the registry.",
		}),
		Channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nimo", Subsystem: "registry", Name: "channels",
			Help: "Number of channels known to the registry.",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nimo", Subsystem: "registry", Name: "connections",
			Help: "Number of live connections known to the registry.",
		}),
		Applications: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nimo", Subsystem: "registry", Name: "applications",
			Help: "Number of catalogue entries across all launchers.",
		}),
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nimo", Subsystem: "registry", Name: "operations_total",
			Help: "Registry RPC calls by request key and outcome.",
		}, []string{"request", "ok"}),
	}
	reg.MustRegister(m.Machines, m.Nodes, m.Channels, m.Connections, m.Applications, m.Operations)
	return m
}

// Refresh updates the gauges from r's current table sizes. Call
// periodically or after each write; it is cheap (five RLocks).
func (m *Metrics) Refresh(r *Registry) {
	m.Machines.Set(float64(r.GetNumberOfMachines()))
	m.Nodes.Set(float64(r.GetNumberOfNodes()))
	m.Channels.Set(float64(r.GetNumberOfChannels()))
	m.Connections.Set(float64(r.GetNumberOfConnections()))
	m.Applications.Set(float64(r.GetNumberOfApplications()))
}

func (m *Metrics) observe(request string, ok bool) {
	outcome := "true"
	if !ok {
		outcome = "false"
	}
	m.Operations.WithLabelValues(request, outcome).Inc()
}
