package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilReceiversAreSafe(t *testing.T) {
	t.Parallel()

	var (
		s  *SessionMetrics
		i  *InspectorMetrics
		sv *SaverMetrics
		mq *MQTTMetrics
		n  *NotificationMetrics
		h  *HTTPMetrics
	)
	assert.NotPanics(t, func() {
		s.RecordTransition("halted", "running")
		s.RecordStartFailure("config")
		s.RecordProducerError("eos")
		s.SetAudioOpen(true)
		s.IncPSDFrames()
		s.ObserveCommand("start", 0.01)
		i.RecordMessage("spectrum", "user")
		i.RecordSamples("audio")
		i.SetOpen(1)
		sv.SetAttached(true)
		sv.SetCommitted(1)
		sv.SetRate(1)
		sv.RecordFailure("stopped")
		sv.ObserveFill(0.5)
		mq.UpdateConnectionStatus(true)
		mq.IncrementMessagesDelivered()
		mq.IncrementErrors()
		mq.IncrementReconnectAttempts()
		mq.ObserveMessageSize(10)
		mq.StartPublishTimer().ObserveDuration()
		n.RecordCreated("error")
		n.RecordDeduplicated()
		n.SetUnread(2)
		h.RecordHTTPRequest("GET", "/healthz", 200, 0.001)
		h.RecordHTTPRequestError("GET", "/healthz", "state")
		h.StreamConnectionStarted()
		h.StreamConnectionClosed("client")
		h.RecordStreamMessage("psd")
		h.RecordStreamDrop("rate")
	})
}

func TestDuplicateRegistrationFails(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewSessionMetrics(reg)
	require.NoError(t, err)
	_, err = NewSessionMetrics(reg)
	assert.Error(t, err)
}

func TestSessionTransitionMovesStateGauge(t *testing.T) {
	t.Parallel()

	m, err := NewSessionMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordTransition("halted", "running")
	m.RecordTransition("running", "halting")

	assert.InDelta(t, 0.0, testutil.ToFloat64(m.State.WithLabelValues("running")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.State.WithLabelValues("halting")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("running", "halting")), 0)
}

func TestNotificationAndMQTTCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	n, err := NewNotificationMetrics(reg)
	require.NoError(t, err)
	mq, err := NewMQTTMetrics(reg)
	require.NoError(t, err)

	n.RecordCreated("warning")
	n.RecordCreated("warning")
	n.RecordDeduplicated()
	n.SetUnread(4)
	mq.UpdateConnectionStatus(true)
	mq.IncrementMessagesDelivered()

	assert.InDelta(t, 2.0, testutil.ToFloat64(n.Created.WithLabelValues("warning")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(n.Deduplicated), 0)
	assert.InDelta(t, 4.0, testutil.ToFloat64(n.Unread), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(mq.ConnectionStatus), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(mq.MessagesDelivered), 0)
}
