package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigscope/sigscope/internal/events"
	"github.com/sigscope/sigscope/internal/logger"
)

// TestNewMetricsConcurrency verifies that independent registries can be
// built concurrently.
func TestNewMetricsConcurrency(t *testing.T) {
	t.Parallel()

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			m, err := NewMetrics()
			if !assert.NoError(t, err) {
				return
			}
			assert.NotNil(t, m.Session)
			assert.NotNil(t, m.Inspector)
			assert.NotNil(t, m.Saver)
			assert.NotNil(t, m.MQTT)
			assert.NotNil(t, m.Notification)
			assert.NotNil(t, m.HTTP)
		})
	}
	wg.Wait()
}

func TestComponentMetricsRecorded(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.Session.RecordTransition("halted", "running")
	m.Session.RecordStartFailure("construction")
	m.Saver.RecordFailure("swamped")
	m.Inspector.SetOpen(3)

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Session.State.WithLabelValues("running")), 0)
	assert.InDelta(t, 0.0, testutil.ToFloat64(m.Session.State.WithLabelValues("halted")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Session.Transitions.WithLabelValues("halted", "running")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Saver.Failures.WithLabelValues("swamped")), 0)
	assert.InDelta(t, 3.0, testutil.ToFloat64(m.Inspector.Open), 0)
}

func TestEventBusMetricsAndHandler(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	bus := events.New(events.Config{BufferSize: 8, Workers: 1}, logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil))
	t.Cleanup(func() { _ = bus.Shutdown(time.Second) })
	require.NoError(t, bus.RegisterConsumer(events.ConsumerFunc{ID: "sink", Fn: func(events.Event) error { return nil }}))
	require.NoError(t, m.RegisterEventBus(bus))

	require.True(t, bus.TryPublish(events.CaptureSize{Header: events.Now(), Bytes: 8}))
	require.Eventually(t, func() bool { return bus.GetStats().EventsProcessed == 1 }, time.Second, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "sigscope_events_processed_total 1")
	assert.Contains(t, body, "sigscope_session_state")
	assert.True(t, strings.Contains(body, "go_goroutines"), "runtime collector registered")
}

func TestHTTPRequestHistogram(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.HTTP.RecordHTTPRequest(http.MethodGet, "/api/v1/session", http.StatusOK, 0.002)
	m.HTTP.RecordHTTPRequest(http.MethodGet, "/api/v1/session", http.StatusOK, 0.5)

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	var hist *dto.Histogram
	for _, mf := range families {
		if mf.GetName() != "sigscope_http_request_duration_seconds" {
			continue
		}
		require.Equal(t, dto.MetricType_HISTOGRAM, mf.GetType())
		require.Len(t, mf.GetMetric(), 1)
		hist = mf.GetMetric()[0].GetHistogram()
	}
	require.NotNil(t, hist, "request duration histogram not gathered")
	assert.Equal(t, uint64(2), hist.GetSampleCount())
	assert.InDelta(t, 0.502, hist.GetSampleSum(), 1e-9)
}
