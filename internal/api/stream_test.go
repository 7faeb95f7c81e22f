package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigscope/sigscope/internal/events"
	"github.com/sigscope/sigscope/internal/observability"
)

type streamMessage struct {
	Kind events.Kind     `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// dialStream starts an HTTP server for s and connects one stream client.
func dialStream(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(s.Echo())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	// Registered after srv.Close so the hub disconnects first.
	t.Cleanup(func() { _ = conn.Close() })
	t.Cleanup(s.Hub().Close)

	require.Eventually(t, func() bool { return s.Hub().ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) streamMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg streamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestStreamDeliversEvents(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, newFakeSession())
	conn := dialStream(t, s)

	require.NoError(t, s.Hub().ProcessEvent(events.StateChanged{
		Header: events.Now(), SessionID: "abc", From: "halted", To: "running",
	}))

	msg := readMessage(t, conn)
	assert.Equal(t, events.KindState, msg.Kind)
	var state events.StateChanged
	require.NoError(t, json.Unmarshal(msg.Data, &state))
	assert.Equal(t, "running", state.To)
	assert.Equal(t, "abc", state.SessionID)
}

func TestStreamRateLimitsFramesPerKind(t *testing.T) {
	t.Parallel()

	m, err := observability.NewMetrics()
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Listen = "127.0.0.1:0"
	cfg.StreamRate = 0.001
	cfg.StreamBurst = 1
	s, err := New(cfg, newFakeSession(), WithLogger(quietLogger()), WithMetrics(m))
	require.NoError(t, err)
	t.Cleanup(s.Hub().Close)
	conn := dialStream(t, s)

	hub := s.Hub()
	for i := range 3 {
		require.NoError(t, hub.ProcessEvent(events.PSDFrame{Header: events.Now(), Frequency: float64(i), Data: []float32{1}}))
	}
	require.NoError(t, hub.ProcessEvent(events.InspectorSpectrum{Header: events.Now(), Tag: 1, Data: []float32{2}}))
	require.NoError(t, hub.ProcessEvent(events.Notice{Header: events.Now(), Severity: events.SeverityWarning, Title: "t"}))

	first := readMessage(t, conn)
	assert.Equal(t, events.KindPSD, first.Kind)
	var psd events.PSDFrame
	require.NoError(t, json.Unmarshal(first.Data, &psd))
	assert.InDelta(t, 0.0, psd.Frequency, 0)

	assert.Equal(t, events.KindInspectorSpectrum, readMessage(t, conn).Kind)
	assert.Equal(t, events.KindNotice, readMessage(t, conn).Kind)

	expected := `
# HELP sigscope_stream_messages_dropped_total Events not delivered to a stream client, by reason (rate, backlog)
# TYPE sigscope_stream_messages_dropped_total counter
sigscope_stream_messages_dropped_total{reason="rate"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"sigscope_stream_messages_dropped_total"))
}

func TestStreamClientDisconnectUnregisters(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, newFakeSession())
	conn := dialStream(t, s)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = conn.Close()

	require.Eventually(t, func() bool { return s.Hub().ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
	// Events without clients are ignored.
	require.NoError(t, s.Hub().ProcessEvent(events.CaptureSize{Header: events.Now(), Bytes: 1}))
}

func TestStreamRejectsAfterClose(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, newFakeSession())
	s.Hub().Close()

	srv := httptest.NewServer(s.Echo())
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	_ = resp.Body.Close()
	assert.Equal(t, 503, resp.StatusCode)
}
