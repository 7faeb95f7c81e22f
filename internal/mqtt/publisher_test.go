package mqtt

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigscope/sigscope/internal/errors"
	"github.com/sigscope/sigscope/internal/events"
	"github.com/sigscope/sigscope/internal/logger"
	"github.com/sigscope/sigscope/internal/testutil"
)

type published struct {
	topic   string
	payload []byte
}

// fakeClient fails the first connectFailures connects and records publishes.
type fakeClient struct {
	mu              sync.Mutex
	connectFailures int
	connects        int
	connected       bool
	disconnected    bool
	out             chan published
}

func newFakeClient(failures int) *fakeClient {
	return &fakeClient{connectFailures: failures, out: make(chan published, 16)}
}

func (f *fakeClient) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connects <= f.connectFailures {
		return errors.NewStd("connection refused")
	}
	f.connected = true
	return nil
}

func (f *fakeClient) Publish(_ context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	connected := f.connected
	f.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}
	f.out <- published{topic: topic, payload: payload}
	return nil
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnected = true
}

func (f *fakeClient) Connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func quietLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
}

func receive(t *testing.T, f *fakeClient) published {
	t.Helper()
	return testutil.Receive(t, f.out, testutil.DefaultTestTimeout, "no message published")
}

func runPublisher(t *testing.T, p *Publisher) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("publisher did not stop")
		}
	})
	return cancel
}

func TestPublisherMapsEventsToTopics(t *testing.T) {
	t.Parallel()

	fc := newFakeClient(0)
	p := NewPublisher(fc, PublisherConfig{TopicPrefix: "lab/rx1", Logger: quietLogger()})
	runPublisher(t, p)

	require.NoError(t, p.ProcessEvent(events.PSDFrame{Header: events.Now(), Data: []float32{1}}))
	require.NoError(t, p.ProcessEvent(events.StateChanged{Header: events.Now(), From: "halted", To: "running"}))
	require.NoError(t, p.ProcessEvent(events.Notice{
		Header: events.Now(), Severity: events.SeverityWarning, Title: "End of stream", Message: "capture ended",
	}))
	require.NoError(t, p.ProcessEvent(events.CaptureSize{Header: events.Now(), Bytes: 8192}))

	msg := receive(t, fc)
	assert.Equal(t, "lab/rx1/session/state", msg.topic)
	var state events.StateChanged
	require.NoError(t, json.Unmarshal(msg.payload, &state))
	assert.Equal(t, "running", state.To)

	msg = receive(t, fc)
	assert.Equal(t, "lab/rx1/session/notice", msg.topic)
	var notice events.Notice
	require.NoError(t, json.Unmarshal(msg.payload, &notice))
	assert.Equal(t, events.SeverityWarning, notice.Severity)

	msg = receive(t, fc)
	assert.Equal(t, "lab/rx1/saver/capture_size", msg.topic)
	assert.JSONEq(t, `8192`, string(mustField(t, msg.payload, "bytes")))
}

func mustField(t *testing.T, payload []byte, name string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(payload, &m))
	v, ok := m[name]
	require.True(t, ok, "field %s missing", name)
	return v
}

func TestPublisherRetriesConnectWithBackoff(t *testing.T) {
	t.Parallel()

	fc := newFakeClient(2)
	p := NewPublisher(fc, PublisherConfig{
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
		Logger:         quietLogger(),
	})
	require.NoError(t, p.ProcessEvent(events.RecordChanged{Header: events.Now(), Enabled: true}))
	runPublisher(t, p)

	msg := receive(t, fc)
	assert.Equal(t, "saver/record", msg.topic)
	assert.Equal(t, 3, fc.Connects())
}

func TestPublisherStopsWhileConnecting(t *testing.T) {
	t.Parallel()

	fc := newFakeClient(1 << 30)
	p := NewPublisher(fc, PublisherConfig{InitialBackoff: time.Hour, Logger: quietLogger()})

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	require.Eventually(t, func() bool { return fc.Connects() == 1 }, time.Second, time.Millisecond)
	cancel()

	require.NoError(t, testutil.Receive(t, done, testutil.DefaultTestTimeout, "publisher did not stop"))
	assert.False(t, fc.disconnected)
}

func TestPublisherDropsWhenQueueFull(t *testing.T) {
	t.Parallel()

	p := NewPublisher(newFakeClient(0), PublisherConfig{QueueSize: 1, Logger: quietLogger()})
	for i := range 3 {
		require.NoError(t, p.ProcessEvent(events.CaptureSize{Header: events.Now(), Bytes: uint64(i)}))
	}
	assert.Equal(t, uint64(2), p.Dropped())
	assert.Equal(t, "mqtt", p.Name())
}

func TestPublisherDisconnectsOnShutdown(t *testing.T) {
	t.Parallel()

	fc := newFakeClient(0)
	p := NewPublisher(fc, PublisherConfig{Logger: quietLogger()})
	cancel := runPublisher(t, p)
	require.Eventually(t, fc.IsConnected, time.Second, time.Millisecond)

	cancel()
	require.Eventually(t, func() bool {
		fc.mu.Lock()
		defer fc.mu.Unlock()
		return fc.disconnected
	}, time.Second, time.Millisecond)
}

func TestTopicWithoutPrefix(t *testing.T) {
	t.Parallel()

	p := NewPublisher(newFakeClient(0), PublisherConfig{Logger: quietLogger()})
	assert.Equal(t, "session/state", p.Topic(TopicState))
}
