package events

import (
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sigscope/sigscope/internal/errors"
	"github.com/sigscope/sigscope/internal/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingConsumer stores every event it sees.
type recordingConsumer struct {
	name string
	fail bool

	mu     sync.Mutex
	events []Event
}

func (c *recordingConsumer) Name() string { return c.name }

func (c *recordingConsumer) ProcessEvent(e Event) error {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	if c.fail {
		return fmt.Errorf("rejected %s", e.Kind())
	}
	return nil
}

func (c *recordingConsumer) seen() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func createTestEventBus(t *testing.T, cfg Config) *EventBus {
	t.Helper()
	eb := New(cfg, logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil))
	t.Cleanup(func() { _ = eb.Shutdown(time.Second) })
	return eb
}

func waitForProcessed(t *testing.T, eb *EventBus, want uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		s := eb.GetStats()
		return s.EventsProcessed+s.ConsumerErrors >= want
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPublishWithoutConsumersIsRejected(t *testing.T) {
	t.Parallel()

	eb := createTestEventBus(t, DefaultConfig())
	assert.False(t, eb.TryPublish(CaptureSize{Header: Now(), Bytes: 1}))

	var nilBus *EventBus
	assert.False(t, nilBus.TryPublish(CaptureSize{}))
	assert.Equal(t, Stats{}, nilBus.GetStats())
}

func TestEventsDeliveredInOrder(t *testing.T) {
	t.Parallel()

	eb := createTestEventBus(t, DefaultConfig())
	c := &recordingConsumer{name: "recorder"}
	require.NoError(t, eb.RegisterConsumer(c))

	for i := range 100 {
		require.True(t, eb.TryPublish(CaptureSize{Header: Now(), Bytes: uint64(i)}))
	}
	waitForProcessed(t, eb, 100)

	got := c.seen()
	require.Len(t, got, 100)
	for i, e := range got {
		assert.Equal(t, uint64(i), e.(CaptureSize).Bytes)
	}
}

func TestDuplicateConsumerRejected(t *testing.T) {
	t.Parallel()

	eb := createTestEventBus(t, DefaultConfig())
	require.NoError(t, eb.RegisterConsumer(&recordingConsumer{name: "dup"}))
	err := eb.RegisterConsumer(&recordingConsumer{name: "dup"})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))
}

func TestFullBufferDropsEvents(t *testing.T) {
	t.Parallel()

	eb := createTestEventBus(t, Config{BufferSize: 1, Workers: 1})
	release := make(chan struct{})
	block := ConsumerFunc{ID: "blocker", Fn: func(Event) error {
		<-release
		return nil
	}}
	require.NoError(t, eb.RegisterConsumer(block))

	accepted := 0
	for range 10 {
		if eb.TryPublish(Notice{Header: Now(), Title: "x"}) {
			accepted++
		}
	}
	close(release)

	assert.Less(t, accepted, 10)
	assert.Equal(t, uint64(10-accepted), eb.GetStats().EventsDropped)
}

func TestConsumerFailuresAreIsolated(t *testing.T) {
	t.Parallel()

	eb := createTestEventBus(t, DefaultConfig())
	good := &recordingConsumer{name: "good"}
	require.NoError(t, eb.RegisterConsumer(ConsumerFunc{ID: "panics", Fn: func(Event) error { panic("boom") }}))
	require.NoError(t, eb.RegisterConsumer(&recordingConsumer{name: "bad", fail: true}))
	require.NoError(t, eb.RegisterConsumer(good))

	require.True(t, eb.TryPublish(StateChanged{Header: Now(), From: "halted", To: "running"}))
	waitForProcessed(t, eb, 3)

	assert.Len(t, good.seen(), 1)
	stats := eb.GetStats()
	assert.Equal(t, uint64(2), stats.ConsumerErrors)
	assert.Equal(t, uint64(1), stats.EventsProcessed)
}

func TestShutdownDrainsQueue(t *testing.T) {
	t.Parallel()

	eb := New(Config{BufferSize: 64, Workers: 1}, logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil))
	c := &recordingConsumer{name: "recorder"}
	require.NoError(t, eb.RegisterConsumer(c))

	for range 20 {
		eb.TryPublish(IORate{Header: Now(), BytesPerSecond: 1})
	}
	require.NoError(t, eb.Shutdown(time.Second))
	assert.Len(t, c.seen(), 20)

	assert.False(t, eb.TryPublish(IORate{Header: Now()}))
	require.Error(t, eb.RegisterConsumer(&recordingConsumer{name: "late"}))
	require.NoError(t, eb.Shutdown(time.Second))
}

func TestErrorPublisherAdapter(t *testing.T) {
	t.Parallel()

	eb := createTestEventBus(t, DefaultConfig())
	c := &recordingConsumer{name: "recorder"}
	require.NoError(t, eb.RegisterConsumer(c))

	p := NewErrorPublisher(eb)
	assert.False(t, p.TryPublish("not an error"))

	ee := errors.Newf("device lost").
		Component("audio").
		Category(errors.CategoryPlayback).
		Build()
	require.True(t, p.TryPublish(ee))
	waitForProcessed(t, eb, 1)

	got := c.seen()
	require.Len(t, got, 1)
	er, ok := got[0].(ErrorReported)
	require.True(t, ok)
	assert.Equal(t, KindError, er.Kind())
	assert.Equal(t, "audio", er.Component)
	assert.Equal(t, string(errors.CategoryPlayback), er.Category)
	assert.Same(t, ee, er.Err)
}
