// Package events delivers session events to consumers without blocking the
// publisher.
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sigscope/sigscope/internal/errors"
	"github.com/sigscope/sigscope/internal/logger"
)

// EventBus provides asynchronous event processing with non-blocking guarantees.
// With a single worker consumers see events in publication order.
type EventBus struct {
	eventChan chan Event

	bufferSize int
	workers    int

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
	closed  atomic.Bool
	mu      sync.Mutex

	consumers []Consumer

	received  atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
	consErrs  atomic.Uint64

	logger logger.Logger
}

// Config holds event bus configuration.
type Config struct {
	BufferSize int
	Workers    int
}

// DefaultConfig returns the default event bus configuration.
func DefaultConfig() Config {
	return Config{
		BufferSize: 4096,
		Workers:    1,
	}
}

// New creates an event bus. Workers start with the first consumer.
func New(config Config, log logger.Logger) *EventBus {
	def := DefaultConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = def.BufferSize
	}
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if log == nil {
		log = logger.Global().Module("events")
	}

	ctx, cancel := context.WithCancel(context.Background())
	eb := &EventBus{
		eventChan:  make(chan Event, config.BufferSize),
		bufferSize: config.BufferSize,
		workers:    config.Workers,
		ctx:        ctx,
		cancel:     cancel,
		logger:     log,
	}

	eb.logger.Info("event bus initialized",
		logger.Int("buffer_size", config.BufferSize),
		logger.Int("workers", config.Workers))
	return eb
}

// RegisterConsumer adds a new event consumer.
func (eb *EventBus) RegisterConsumer(consumer Consumer) error {
	if eb == nil || eb.closed.Load() {
		return errors.Newf("event bus not running").
			Component("events").
			Category(errors.CategoryState).
			Build()
	}

	eb.mu.Lock()
	defer eb.mu.Unlock()

	for _, existing := range eb.consumers {
		if existing.Name() == consumer.Name() {
			return errors.Newf("consumer %s already registered", consumer.Name()).
				Component("events").
				Category(errors.CategoryConflict).
				Build()
		}
	}

	eb.consumers = append(eb.consumers, consumer)
	eb.logger.Info("registered event consumer", logger.String("consumer", consumer.Name()))

	if !eb.running.Load() {
		eb.start()
	}
	return nil
}

// TryPublish attempts to publish an event without blocking. It returns true
// if the event was accepted and false if it was dropped.
func (eb *EventBus) TryPublish(event Event) bool {
	if eb == nil || !eb.running.Load() || event == nil {
		return false
	}

	select {
	case eb.eventChan <- event:
		eb.received.Add(1)
		return true
	default:
		eb.dropped.Add(1)
		eb.logger.Debug("event dropped due to full buffer", logger.String("kind", string(event.Kind())))
		return false
	}
}

func (eb *EventBus) start() {
	if eb.running.Swap(true) {
		return
	}
	eb.logger.Debug("starting event bus workers", logger.Int("count", eb.workers))
	for i := range eb.workers {
		eb.wg.Go(func() { eb.worker(i) })
	}
}

func (eb *EventBus) worker(id int) {
	log := eb.logger.With(logger.Int("worker_id", id))
	for {
		select {
		case <-eb.ctx.Done():
			eb.drain(log)
			return
		case event := <-eb.eventChan:
			eb.processEvent(event, log)
		}
	}
}

// drain delivers events still queued at shutdown.
func (eb *EventBus) drain(log logger.Logger) {
	for {
		select {
		case event := <-eb.eventChan:
			eb.processEvent(event, log)
		default:
			return
		}
	}
}

func (eb *EventBus) processEvent(event Event, log logger.Logger) {
	eb.mu.Lock()
	consumers := make([]Consumer, len(eb.consumers))
	copy(consumers, eb.consumers)
	eb.mu.Unlock()

	for _, consumer := range consumers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					eb.consErrs.Add(1)
					log.Error("consumer panicked",
						logger.String("consumer", consumer.Name()),
						logger.Any("panic", r),
						logger.String("kind", string(event.Kind())))
				}
			}()

			if err := consumer.ProcessEvent(event); err != nil {
				eb.consErrs.Add(1)
				log.Warn("consumer error",
					logger.String("consumer", consumer.Name()),
					logger.Error(err),
					logger.String("kind", string(event.Kind())))
				return
			}
			eb.processed.Add(1)
		}()
	}
}

// Shutdown stops accepting events, delivers what is queued and waits for the
// workers up to timeout.
func (eb *EventBus) Shutdown(timeout time.Duration) error {
	if eb == nil || eb.closed.Swap(true) {
		return nil
	}

	eb.running.Store(false)
	eb.cancel()

	done := make(chan struct{})
	go func() {
		eb.wg.Wait()
		close(done)
	}()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		eb.logger.Info("event bus shutdown complete")
		return nil
	case <-t.C:
		eb.logger.Warn("event bus shutdown timeout exceeded", logger.Duration("timeout", timeout))
		return errors.Newf("event bus shutdown timeout exceeded").
			Component("events").
			Category(errors.CategoryTimeout).
			Build()
	}
}

// GetStats returns current event bus statistics.
func (eb *EventBus) GetStats() Stats {
	if eb == nil {
		return Stats{}
	}
	return Stats{
		EventsReceived:  eb.received.Load(),
		EventsProcessed: eb.processed.Load(),
		EventsDropped:   eb.dropped.Load(),
		ConsumerErrors:  eb.consErrs.Load(),
	}
}
