package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics contains Prometheus metrics for the control API and the event
// stream. All methods are safe to call on a nil receiver.
type HTTPMetrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestErrors   *prometheus.CounterVec

	streamActiveConnections prometheus.Gauge
	streamConnections       *prometheus.CounterVec
	streamMessagesSent      *prometheus.CounterVec
	streamMessagesDropped   *prometheus.CounterVec
}

// NewHTTPMetrics creates and registers HTTP metrics.
func NewHTTPMetrics(registry prometheus.Registerer) (*HTTPMetrics, error) {
	m := &HTTPMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register HTTP metrics: %w", err)
	}
	return m, nil
}

func (m *HTTPMetrics) initMetrics() {
	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sigscope_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_code"}, // path is the route template, e.g. /api/v1/inspectors/:tag
	)

	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sigscope_http_request_duration_seconds",
			Help:    "Time taken for HTTP requests",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount12),
		},
		[]string{"method", "path"},
	)

	m.httpRequestErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sigscope_http_request_errors_total",
			Help: "Total number of HTTP requests answered with an error, by error category",
		},
		[]string{"method", "path", "category"},
	)

	m.streamActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sigscope_stream_active_connections",
		Help: "Number of connected event stream clients",
	})

	m.streamConnections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sigscope_stream_connections_total",
			Help: "Total number of event stream connections, by close reason",
		},
		[]string{"reason"},
	)

	m.streamMessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sigscope_stream_messages_sent_total",
			Help: "Events written to stream clients, by event kind",
		},
		[]string{"kind"},
	)

	m.streamMessagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sigscope_stream_messages_dropped_total",
			Help: "Events not delivered to a stream client, by reason (rate, backlog)",
		},
		[]string{"reason"},
	)
}

func (m *HTTPMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.httpRequestErrors,
		m.streamActiveConnections,
		m.streamConnections,
		m.streamMessagesSent,
		m.streamMessagesDropped,
	}
}

// Describe implements the prometheus.Collector interface.
func (m *HTTPMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *HTTPMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// RecordHTTPRequest records a completed request.
func (m *HTTPMetrics) RecordHTTPRequest(method, path string, statusCode int, duration float64) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordHTTPRequestError counts a request answered with an error.
func (m *HTTPMetrics) RecordHTTPRequestError(method, path, category string) {
	if m == nil {
		return
	}
	m.httpRequestErrors.WithLabelValues(method, path, category).Inc()
}

// StreamConnectionStarted counts a new stream client.
func (m *HTTPMetrics) StreamConnectionStarted() {
	if m == nil {
		return
	}
	m.streamActiveConnections.Inc()
}

// StreamConnectionClosed records a stream client leaving.
func (m *HTTPMetrics) StreamConnectionClosed(reason string) {
	if m == nil {
		return
	}
	m.streamActiveConnections.Dec()
	m.streamConnections.WithLabelValues(reason).Inc()
}

// RecordStreamMessage counts an event written to a stream client.
func (m *HTTPMetrics) RecordStreamMessage(kind string) {
	if m == nil {
		return
	}
	m.streamMessagesSent.WithLabelValues(kind).Inc()
}

// RecordStreamDrop counts an event a stream client did not receive.
func (m *HTTPMetrics) RecordStreamDrop(reason string) {
	if m == nil {
		return
	}
	m.streamMessagesDropped.WithLabelValues(reason).Inc()
}
