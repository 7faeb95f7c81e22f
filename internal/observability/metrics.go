// Package observability assembles the Prometheus collectors of every
// component on one registry and serves them.
package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sigscope/sigscope/internal/events"
	"github.com/sigscope/sigscope/internal/logger"
	"github.com/sigscope/sigscope/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry     *prometheus.Registry
	Session      *metrics.SessionMetrics
	Inspector    *metrics.InspectorMetrics
	Saver        *metrics.SaverMetrics
	MQTT         *metrics.MQTTMetrics
	Notification *metrics.NotificationMetrics
	HTTP         *metrics.HTTPMetrics
}

// NewMetrics creates a registry with every component collector plus the Go
// runtime and process collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{registry: registry}
	var err error
	if m.Session, err = metrics.NewSessionMetrics(registry); err != nil {
		return nil, fmt.Errorf("failed to create session metrics: %w", err)
	}
	if m.Inspector, err = metrics.NewInspectorMetrics(registry); err != nil {
		return nil, fmt.Errorf("failed to create inspector metrics: %w", err)
	}
	if m.Saver, err = metrics.NewSaverMetrics(registry); err != nil {
		return nil, fmt.Errorf("failed to create saver metrics: %w", err)
	}
	if m.MQTT, err = metrics.NewMQTTMetrics(registry); err != nil {
		return nil, fmt.Errorf("failed to create MQTT metrics: %w", err)
	}
	if m.Notification, err = metrics.NewNotificationMetrics(registry); err != nil {
		return nil, fmt.Errorf("failed to create notification metrics: %w", err)
	}
	if m.HTTP, err = metrics.NewHTTPMetrics(registry); err != nil {
		return nil, fmt.Errorf("failed to create HTTP metrics: %w", err)
	}
	return m, nil
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RegisterEventBus exposes the bus counters.
func (m *Metrics) RegisterEventBus(bus *events.EventBus) error {
	stat := func(name, help string, pick func(events.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: name,
			Help: help,
		}, func() float64 { return float64(pick(bus.GetStats())) })
	}
	for _, c := range []prometheus.Collector{
		stat("sigscope_events_received_total", "Events accepted by the event bus",
			func(s events.Stats) uint64 { return s.EventsReceived }),
		stat("sigscope_events_processed_total", "Events delivered to every consumer",
			func(s events.Stats) uint64 { return s.EventsProcessed }),
		stat("sigscope_events_dropped_total", "Events dropped because the bus queue was full",
			func(s events.Stats) uint64 { return s.EventsDropped }),
		stat("sigscope_events_consumer_errors_total", "Consumer failures, panics included",
			func(s events.Stats) uint64 { return s.ConsumerErrors }),
	} {
		if err := m.registry.Register(c); err != nil {
			return fmt.Errorf("failed to register event bus metrics: %w", err)
		}
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      promLogger{log: GetLogger()},
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// promLogger adapts the module logger to promhttp.Logger.
type promLogger struct {
	log logger.Logger
}

func (l promLogger) Println(v ...any) {
	l.log.Warn("metrics handler error", logger.String("detail", fmt.Sprint(v...)))
}
