package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting.
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
// Usage: bus.Publish(DeviceAttachedEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case DeviceAttachedEvent:
		event.Publish(b.dispatcher, e)
	case DeviceDetachedEvent:
		event.Publish(b.dispatcher, e)
	case FormatProbedEvent:
		event.Publish(b.dispatcher, e)
	case ExportUnsupportedEvent:
		event.Publish(b.dispatcher, e)
	case RenderNodeEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler type selects the event type. Returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e DeviceAttachedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(DeviceAttachedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(DeviceDetachedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FormatProbedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ExportUnsupportedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RenderNodeEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
