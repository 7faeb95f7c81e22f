package events

import (
	"github.com/sigscope/sigscope/internal/errors"
)

// ErrorReported carries an enhanced error published by the errors package.
type ErrorReported struct {
	Header
	Component string `json:"component"`
	Category  string `json:"category"`
	Priority  string `json:"priority,omitempty"`
	Message   string `json:"message"`

	Err *errors.EnhancedError `json:"-"`
}

// Kind implements Event.
func (ErrorReported) Kind() Kind { return KindError }

// ErrorPublisher adapts the bus to errors.EventPublisher.
type ErrorPublisher struct {
	bus *EventBus
}

// NewErrorPublisher returns an adapter for errors.SetEventPublisher.
func NewErrorPublisher(bus *EventBus) *ErrorPublisher {
	return &ErrorPublisher{bus: bus}
}

// TryPublish implements errors.EventPublisher. Values other than enhanced
// errors are rejected.
func (p *ErrorPublisher) TryPublish(v any) bool {
	ee, ok := v.(*errors.EnhancedError)
	if !ok || ee == nil {
		return false
	}
	return p.bus.TryPublish(ErrorReported{
		Header:    Header{At: ee.GetTimestamp()},
		Component: ee.GetComponent(),
		Category:  ee.GetCategory(),
		Priority:  ee.GetPriority(),
		Message:   ee.GetMessage(),
		Err:       ee,
	})
}

// TelemetryConsumer forwards reported errors to the configured telemetry
// reporter once the bus has taken them over from the errors package.
type TelemetryConsumer struct{}

// Name implements Consumer.
func (TelemetryConsumer) Name() string { return "telemetry" }

// ProcessEvent implements Consumer.
func (TelemetryConsumer) ProcessEvent(e Event) error {
	er, ok := e.(ErrorReported)
	if !ok || er.Err == nil {
		return nil
	}
	if r := errors.GetTelemetryReporter(); r != nil && r.IsEnabled() {
		r.ReportError(er.Err)
	}
	return nil
}
