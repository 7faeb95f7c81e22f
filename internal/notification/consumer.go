package notification

import (
	"github.com/sigscope/sigscope/internal/errors"
	"github.com/sigscope/sigscope/internal/events"
)

// Consumer turns session notices and reported errors on the event bus into
// stored notifications.
type Consumer struct {
	service *Service
}

// NewConsumer returns a bus consumer feeding service.
func NewConsumer(service *Service) *Consumer {
	return &Consumer{service: service}
}

// Name implements events.Consumer.
func (c *Consumer) Name() string { return "notification" }

// ProcessEvent implements events.Consumer.
func (c *Consumer) ProcessEvent(e events.Event) error {
	switch ev := e.(type) {
	case events.Notice:
		typ, prio := fromSeverity(ev.Severity)
		n := NewNotification(typ, prio, ev.Title, ev.Message).
			WithComponent("session").
			WithDetails(ev.Details)
		n.Timestamp = ev.At
		c.service.Add(n)
	case events.ErrorReported:
		prio := Priority(ev.Priority)
		if prio == "" {
			prio = priorityForCategory(errors.ErrorCategory(ev.Category))
		}
		// Low priority errors stay in the log.
		if prio == PriorityLow {
			return nil
		}
		n := NewNotification(TypeError, prio, "Error in "+ev.Component, ev.Message).
			WithComponent(ev.Component)
		n.Timestamp = ev.At
		c.service.Add(n)
	}
	return nil
}

func fromSeverity(s events.Severity) (Type, Priority) {
	switch s {
	case events.SeverityCritical:
		return TypeError, PriorityCritical
	case events.SeverityWarning:
		return TypeWarning, PriorityHigh
	default:
		return TypeInfo, PriorityLow
	}
}

// priorityForCategory grades an error that carries no explicit priority.
func priorityForCategory(category errors.ErrorCategory) Priority {
	switch category {
	case errors.CategoryConstruction, errors.CategoryProducer:
		return PriorityCritical
	case errors.CategoryWriter, errors.CategorySystem, errors.CategoryConfiguration:
		return PriorityHigh
	case errors.CategoryNetwork, errors.CategoryMQTTConnection, errors.CategoryMQTTPublish,
		errors.CategoryFileIO, errors.CategoryPlayback, errors.CategoryInspector:
		return PriorityMedium
	case errors.CategoryValidation, errors.CategoryNotFound, errors.CategoryState:
		return PriorityLow
	default:
		return PriorityMedium
	}
}
