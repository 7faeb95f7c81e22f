// Package errors - event bus integration
package errors

import (
	"sync/atomic"
)

// EventPublisher is an interface for publishing error events.
// It lets this package hand errors to the events package without importing it.
type EventPublisher interface {
	TryPublish(event any) bool
}

var globalEventPublisher atomic.Pointer[EventPublisher]

// SetEventPublisher sets the global event publisher. Passing nil detaches it.
func SetEventPublisher(publisher EventPublisher) {
	if publisher == nil {
		globalEventPublisher.Store(nil)
	} else {
		globalEventPublisher.Store(&publisher)
	}
	updateReportingState()
}

// publishToEventBus publishes an error to the event bus if available
func publishToEventBus(ee *EnhancedError) bool {
	publisherPtr := globalEventPublisher.Load()
	if publisherPtr == nil || *publisherPtr == nil {
		return false
	}
	return (*publisherPtr).TryPublish(ee)
}

// reportToTelemetry routes a freshly built error to hooks, the event bus
// and, when no bus is attached, the telemetry reporter.
func reportToTelemetry(ee *EnhancedError) {
	if !hasActiveReporting.Load() {
		return
	}

	runErrorHooks(ee)

	if publishToEventBus(ee) {
		return
	}

	reportToTelemetryLegacy(ee)
}
