package events

import (
	"time"

	"github.com/kelindar/event"
	"github.com/smazurov/gpionode/internal/broadcast"
)

// Bus wraps kelindar/event dispatcher for in-process notifications.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(PinFaultEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case PinStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case PinFaultEvent:
		event.Publish(b.dispatcher, e)
	case ObserverDroppedEvent:
		event.Publish(b.dispatcher, e)
	case TelemetryRefreshedEvent:
		event.Publish(b.dispatcher, e)
	case LabelsReloadedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler type determines which events it receives.
// Returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e PinFaultEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(PinStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PinFaultEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ObserverDroppedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(TelemetryRefreshedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LabelsReloadedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}

// MirrorPin republishes a hub event on the bus. It is installed as the
// hub's mirror so in-process consumers see every pin change in sequence.
func (b *Bus) MirrorPin(ev broadcast.Event) {
	b.Publish(PinStateChangedEvent{Event: ev})
	if ev.Cause == broadcast.CauseFault {
		b.Publish(PinFaultEvent{
			Pin:       ev.Pin,
			Fault:     ev.Record.Fault,
			Timestamp: ev.Timestamp.Format(time.RFC3339),
		})
	}
}
