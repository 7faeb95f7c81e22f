package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// InspectorMetrics contains Prometheus metrics for inspector message routing.
// All methods are safe to call on a nil receiver.
type InspectorMetrics struct {
	Open     prometheus.Gauge
	Messages *prometheus.CounterVec
	Samples  *prometheus.CounterVec
}

// NewInspectorMetrics creates and registers inspector metrics.
func NewInspectorMetrics(registry prometheus.Registerer) (*InspectorMetrics, error) {
	m := &InspectorMetrics{
		Open: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigscope_inspectors_open",
			Help: "Number of user inspectors currently registered",
		}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigscope_inspector_messages_total",
			Help: "Inspector messages routed, by message kind and target",
		}, []string{"kind", "target"}),
		Samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigscope_inspector_samples_total",
			Help: "Inspector sample batches routed, by target",
		}, []string{"target"}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register inspector metrics: %w", err)
	}
	return m, nil
}

// RecordMessage counts a routed inspector message.
func (m *InspectorMetrics) RecordMessage(kind, target string) {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues(kind, target).Inc()
}

// RecordSamples counts a routed samples batch.
func (m *InspectorMetrics) RecordSamples(target string) {
	if m == nil {
		return
	}
	m.Samples.WithLabelValues(target).Inc()
}

// SetOpen sets the number of registered user inspectors.
func (m *InspectorMetrics) SetOpen(n int) {
	if m == nil {
		return
	}
	m.Open.Set(float64(n))
}

// Collect implements the prometheus.Collector interface.
func (m *InspectorMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.Open
	m.Messages.Collect(ch)
	m.Samples.Collect(ch)
}

// Describe implements the prometheus.Collector interface.
func (m *InspectorMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.Open.Desc()
	m.Messages.Describe(ch)
	m.Samples.Describe(ch)
}
