package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Collection pass outcomes used as the result label.
const (
	ResultComplete = "complete"
	ResultPartial  = "partial"
	ResultAborted  = "aborted"
)

// Metrics holds the exporter's self-monitoring metrics. Its Registry is also
// the sink the GPU gauges are declared on, so one /metrics endpoint serves both.
// It uses a custom registry to avoid polluting the global default.
type Metrics struct {
	Registry *prometheus.Registry

	// Collection pass metrics
	CollectionDuration prometheus.Histogram
	CollectionsTotal   *prometheus.CounterVec
	CollectionErrors   *prometheus.CounterVec
	Devices            prometheus.Gauge

	// State metrics
	ExporterState *prometheus.GaugeVec
	BuildInfo     *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all metrics registered on a
// custom registry, together with the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		CollectionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gpu_exporter_collection_duration_seconds",
			Help:    "Duration of GPU collection passes in seconds.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		CollectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpu_exporter_collections_total",
			Help: "Total number of collection passes by result.",
		}, []string{"result"}),
		CollectionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpu_exporter_collection_errors_total",
			Help: "Total number of collection failures by kind.",
		}, []string{"kind"}),
		Devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gpu_exporter_devices",
			Help: "Number of devices enumerated in the last successful pass.",
		}),

		ExporterState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gpu_exporter_state",
			Help: "Current exporter state (1 = active, 0 = inactive).",
		}, []string{"state"}),
		BuildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gpu_exporter_build_info",
			Help: "Exporter build and instance information; value is always 1.",
		}, []string{"version", "instance_id"}),
	}

	reg.MustRegister(
		m.CollectionDuration,
		m.CollectionsTotal,
		m.CollectionErrors,
		m.Devices,
		m.ExporterState,
		m.BuildInfo,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// SetBuildInfo publishes the version and instance identity.
func (m *Metrics) SetBuildInfo(version, instanceID string) {
	m.BuildInfo.Reset()
	m.BuildInfo.WithLabelValues(version, instanceID).Set(1)
}

// SetState marks state as the only active exporter state.
func (m *Metrics) SetState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.ExporterState.WithLabelValues(s).Set(v)
	}
}
