package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// SaverMetrics contains Prometheus metrics for the raw capture writer.
// All methods are safe to call on a nil receiver.
type SaverMetrics struct {
	Attached       prometheus.Gauge
	CommittedBytes prometheus.Gauge
	WriteRate      prometheus.Gauge
	Failures       *prometheus.CounterVec
	BufferFill     prometheus.Histogram
}

// NewSaverMetrics creates and registers saver metrics.
func NewSaverMetrics(registry prometheus.Registerer) (*SaverMetrics, error) {
	m := &SaverMetrics{
		Attached: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigscope_saver_attached",
			Help: "Whether a capture writer is attached (1) or not (0)",
		}),
		CommittedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigscope_saver_committed_bytes",
			Help: "Bytes committed to the current capture file",
		}),
		WriteRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigscope_saver_write_rate_bytes_per_second",
			Help: "Most recent capture write rate",
		}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigscope_saver_failures_total",
			Help: "Capture writer failures by kind (stopped, swamped)",
		}, []string{"kind"}),
		BufferFill: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sigscope_saver_buffer_fill_ratio",
			Help:    "Ring buffer fill ratio observed at each drain",
			Buckets: prometheus.LinearBuckets(0, BucketLinearFillWidth, BucketLinearFillCount),
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register saver metrics: %w", err)
	}
	return m, nil
}

// SetAttached updates the attached gauge and resets byte counters on detach.
func (m *SaverMetrics) SetAttached(attached bool) {
	if m == nil {
		return
	}
	if attached {
		m.Attached.Set(1)
		return
	}
	m.Attached.Set(0)
	m.CommittedBytes.Set(0)
	m.WriteRate.Set(0)
}

// SetCommitted records the cumulative bytes written.
func (m *SaverMetrics) SetCommitted(bytes uint64) {
	if m == nil {
		return
	}
	m.CommittedBytes.Set(float64(bytes))
}

// SetRate records the current write rate.
func (m *SaverMetrics) SetRate(bytesPerSecond float64) {
	if m == nil {
		return
	}
	m.WriteRate.Set(bytesPerSecond)
}

// RecordFailure counts a writer failure.
func (m *SaverMetrics) RecordFailure(kind string) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(kind).Inc()
}

// ObserveFill records the ring buffer fill ratio.
func (m *SaverMetrics) ObserveFill(ratio float64) {
	if m == nil {
		return
	}
	m.BufferFill.Observe(ratio)
}

// Collect implements the prometheus.Collector interface.
func (m *SaverMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.Attached
	ch <- m.CommittedBytes
	ch <- m.WriteRate
	m.Failures.Collect(ch)
	ch <- m.BufferFill
}

// Describe implements the prometheus.Collector interface.
func (m *SaverMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.Attached.Desc()
	ch <- m.CommittedBytes.Desc()
	ch <- m.WriteRate.Desc()
	m.Failures.Describe(ch)
	ch <- m.BufferFill.Desc()
}
