// Package metrics provides custom Prometheus metrics for the sigscope components.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// SessionMetrics contains Prometheus metrics for the capture session lifecycle.
// All methods are safe to call on a nil receiver.
type SessionMetrics struct {
	State           *prometheus.GaugeVec
	Transitions     *prometheus.CounterVec
	StartFailures   *prometheus.CounterVec
	ProducerErrors  *prometheus.CounterVec
	AudioOpen       prometheus.Gauge
	PSDFrames       prometheus.Counter
	CommandDuration *prometheus.HistogramVec
}

// NewSessionMetrics creates and registers session metrics.
func NewSessionMetrics(registry prometheus.Registerer) (*SessionMetrics, error) {
	m := &SessionMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register session metrics: %w", err)
	}
	return m, nil
}

func (m *SessionMetrics) initMetrics() {
	m.State = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sigscope_session_state",
		Help: "Current capture session state (1 for the active state, 0 otherwise)",
	}, []string{"state"})

	m.Transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sigscope_session_transitions_total",
		Help: "Total number of session state transitions",
	}, []string{"from", "to"})

	m.StartFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sigscope_session_start_failures_total",
		Help: "Total number of failed capture starts by error category",
	}, []string{"category"})

	m.ProducerErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sigscope_session_producer_errors_total",
		Help: "Total number of analyzer end-of-stream and read-error events",
	}, []string{"kind"})

	m.AudioOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sigscope_audio_open",
		Help: "Whether the audio playback path is open (1) or closed (0)",
	})

	m.PSDFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sigscope_psd_frames_total",
		Help: "Total number of main spectrum frames forwarded",
	})

	m.CommandDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sigscope_session_command_duration_seconds",
		Help:    "Time spent handling session commands",
		Buckets: prometheus.ExponentialBuckets(BucketStart100us, BucketFactor4, BucketCount8),
	}, []string{"command"})
}

// RecordTransition sets the state gauge and counts the transition.
func (m *SessionMetrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.State.WithLabelValues(from).Set(0)
	m.State.WithLabelValues(to).Set(1)
	if from != to {
		m.Transitions.WithLabelValues(from, to).Inc()
	}
}

// RecordStartFailure counts a failed start.
func (m *SessionMetrics) RecordStartFailure(category string) {
	if m == nil {
		return
	}
	m.StartFailures.WithLabelValues(category).Inc()
}

// RecordProducerError counts an end-of-stream or read-error event.
func (m *SessionMetrics) RecordProducerError(kind string) {
	if m == nil {
		return
	}
	m.ProducerErrors.WithLabelValues(kind).Inc()
}

// SetAudioOpen updates the audio path gauge.
func (m *SessionMetrics) SetAudioOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.AudioOpen.Set(1)
	} else {
		m.AudioOpen.Set(0)
	}
}

// IncPSDFrames counts a forwarded PSD frame.
func (m *SessionMetrics) IncPSDFrames() {
	if m == nil {
		return
	}
	m.PSDFrames.Inc()
}

// ObserveCommand records how long a command took to handle.
func (m *SessionMetrics) ObserveCommand(command string, seconds float64) {
	if m == nil {
		return
	}
	m.CommandDuration.WithLabelValues(command).Observe(seconds)
}

// Collect implements the prometheus.Collector interface.
func (m *SessionMetrics) Collect(ch chan<- prometheus.Metric) {
	m.State.Collect(ch)
	m.Transitions.Collect(ch)
	m.StartFailures.Collect(ch)
	m.ProducerErrors.Collect(ch)
	ch <- m.AudioOpen
	ch <- m.PSDFrames
	m.CommandDuration.Collect(ch)
}

// Describe implements the prometheus.Collector interface.
func (m *SessionMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.State.Describe(ch)
	m.Transitions.Describe(ch)
	m.StartFailures.Describe(ch)
	m.ProducerErrors.Describe(ch)
	ch <- m.AudioOpen.Desc()
	ch <- m.PSDFrames.Desc()
	m.CommandDuration.Describe(ch)
}
