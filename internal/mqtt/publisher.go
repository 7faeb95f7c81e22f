package mqtt

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/sigscope/sigscope/internal/errors"
	"github.com/sigscope/sigscope/internal/events"
	"github.com/sigscope/sigscope/internal/logger"
)

// Topic suffixes below the configured prefix.
const (
	TopicState       = "session/state"
	TopicNotice      = "session/notice"
	TopicRecord      = "saver/record"
	TopicCaptureSize = "saver/capture_size"
)

const (
	defaultQueueSize      = 64
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 5 * time.Minute
)

// PublisherConfig configures a Publisher.
type PublisherConfig struct {
	TopicPrefix    string
	QueueSize      int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Logger         logger.Logger
}

type message struct {
	topic   string
	payload []byte
}

// Publisher forwards session events from the bus to an MQTT broker. Events
// are queued by ProcessEvent and sent by Run, so a slow broker never stalls
// the bus; when the queue is full the newest message is dropped.
type Publisher struct {
	client  Client
	prefix  string
	queue   chan message
	cfg     PublisherConfig
	log     logger.Logger
	dropped atomic.Uint64
}

// NewPublisher returns a publisher sending through client.
func NewPublisher(client Client, cfg PublisherConfig) *Publisher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = max(defaultMaxBackoff, cfg.InitialBackoff)
	}
	if cfg.Logger == nil {
		cfg.Logger = GetLogger()
	}
	return &Publisher{
		client: client,
		prefix: cfg.TopicPrefix,
		queue:  make(chan message, cfg.QueueSize),
		cfg:    cfg,
		log:    cfg.Logger,
	}
}

// Name implements events.Consumer.
func (p *Publisher) Name() string { return "mqtt" }

// topicFor maps an event to its topic suffix; other events are not published.
func topicFor(e events.Event) (string, bool) {
	switch e.(type) {
	case events.StateChanged:
		return TopicState, true
	case events.Notice:
		return TopicNotice, true
	case events.RecordChanged:
		return TopicRecord, true
	case events.CaptureSize:
		return TopicCaptureSize, true
	default:
		return "", false
	}
}

// Topic returns the full topic for suffix.
func (p *Publisher) Topic(suffix string) string {
	if p.prefix == "" {
		return suffix
	}
	return p.prefix + "/" + suffix
}

// ProcessEvent implements events.Consumer.
func (p *Publisher) ProcessEvent(e events.Event) error {
	suffix, ok := topicFor(e)
	if !ok {
		return nil
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("kind", string(e.Kind())).
			Build()
	}
	select {
	case p.queue <- message{topic: p.Topic(suffix), payload: payload}:
	default:
		if p.dropped.Add(1) == 1 {
			p.log.Warn("mqtt queue full, dropping messages", logger.String("topic", suffix))
		}
	}
	return nil
}

// Dropped returns the number of messages discarded because the queue was full.
func (p *Publisher) Dropped() uint64 { return p.dropped.Load() }

// Run connects to the broker, retrying with exponential backoff, and then
// publishes queued messages until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	if !p.connect(ctx) {
		return nil
	}
	defer p.client.Disconnect()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-p.queue:
			p.publish(ctx, msg)
		}
	}
}

// connect returns false if ctx ended before a connection was made.
func (p *Publisher) connect(ctx context.Context) bool {
	backoff := p.cfg.InitialBackoff
	for {
		err := p.client.Connect(ctx)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		p.log.Warn("failed to connect to MQTT broker",
			logger.Error(err),
			logger.Duration("retry_in", backoff))

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, p.cfg.MaxBackoff)
		case <-ctx.Done():
			return false
		}
	}
}

func (p *Publisher) publish(ctx context.Context, msg message) {
	err := p.client.Publish(ctx, msg.topic, msg.payload)
	switch {
	case err == nil:
		p.log.Trace("published", logger.String("topic", msg.topic), logger.Int("bytes", len(msg.payload)))
	case errors.Is(err, ErrNotConnected):
		// paho reconnects on its own; messages sent meanwhile are lost.
		p.log.Debug("dropping message while disconnected", logger.String("topic", msg.topic))
	case ctx.Err() != nil:
	default:
		p.log.Warn("failed to publish MQTT message",
			logger.String("topic", msg.topic),
			logger.Error(err))
	}
}
