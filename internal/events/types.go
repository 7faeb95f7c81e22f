package events

import "time"

// Kind identifies an event type on the bus and on the UI stream.
type Kind string

const (
	KindState             Kind = "session.state"
	KindNotice            Kind = "session.notice"
	KindCaptureSize       Kind = "saver.capture_size"
	KindIORate            Kind = "saver.io_rate"
	KindRecord            Kind = "saver.record"
	KindAudioRate         Kind = "audio.rate"
	KindPSD               Kind = "analyzer.psd"
	KindInspectorOpened   Kind = "inspector.opened"
	KindInspectorSpectrum Kind = "inspector.spectrum"
	KindInspectorSamples  Kind = "inspector.samples"
	KindInspectorClosed   Kind = "inspector.closed"
	KindError             Kind = "error"
)

// Event is anything published on the bus.
type Event interface {
	Kind() Kind
	Time() time.Time
}

// Header carries the publication timestamp shared by all events.
type Header struct {
	At time.Time `json:"at"`
}

// Time implements Event.
func (h Header) Time() time.Time { return h.At }

// Now returns a header stamped with the current time.
func Now() Header { return Header{At: time.Now()} }

// Consumer processes events delivered by the bus. ProcessEvent runs on a bus
// worker and must not block for long.
type Consumer interface {
	Name() string
	ProcessEvent(event Event) error
}

// ConsumerFunc adapts a function into a named Consumer.
type ConsumerFunc struct {
	ID string
	Fn func(Event) error
}

// Name implements Consumer.
func (c ConsumerFunc) Name() string { return c.ID }

// ProcessEvent implements Consumer.
func (c ConsumerFunc) ProcessEvent(e Event) error { return c.Fn(e) }

// Stats tracks event bus counters.
type Stats struct {
	EventsReceived  uint64 `json:"events_received"`
	EventsProcessed uint64 `json:"events_processed"`
	EventsDropped   uint64 `json:"events_dropped"`
	ConsumerErrors  uint64 `json:"consumer_errors"`
}
