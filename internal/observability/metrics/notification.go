package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// NotificationMetrics tracks operator notices. All methods are safe to call
// on a nil receiver.
type NotificationMetrics struct {
	Created      *prometheus.CounterVec
	Deduplicated prometheus.Counter
	Unread       prometheus.Gauge
}

// NewNotificationMetrics creates and registers notification metrics.
func NewNotificationMetrics(registry prometheus.Registerer) (*NotificationMetrics, error) {
	m := &NotificationMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register notification metrics: %w", err)
	}
	return m, nil
}

func (m *NotificationMetrics) initMetrics() {
	m.Created = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sigscope_notifications_created_total",
		Help: "Total number of notifications stored, by type",
	}, []string{"type"})

	m.Deduplicated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sigscope_notifications_deduplicated_total",
		Help: "Total number of repeated notices folded into an existing notification",
	})

	m.Unread = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sigscope_notifications_unread",
		Help: "Current number of unread notifications",
	})
}

// RecordCreated counts a stored notification.
func (m *NotificationMetrics) RecordCreated(notifType string) {
	if m == nil {
		return
	}
	m.Created.WithLabelValues(notifType).Inc()
}

// RecordDeduplicated counts a folded repeat.
func (m *NotificationMetrics) RecordDeduplicated() {
	if m == nil {
		return
	}
	m.Deduplicated.Inc()
}

// SetUnread updates the unread gauge.
func (m *NotificationMetrics) SetUnread(n int) {
	if m == nil {
		return
	}
	m.Unread.Set(float64(n))
}

// Collect implements the prometheus.Collector interface.
func (m *NotificationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Created.Collect(ch)
	ch <- m.Deduplicated
	ch <- m.Unread
}

// Describe implements the prometheus.Collector interface.
func (m *NotificationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Created.Describe(ch)
	ch <- m.Deduplicated.Desc()
	ch <- m.Unread.Desc()
}
