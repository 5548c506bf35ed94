// Package eventbus provides event-driven communication between the API,
// workers, and the janitor.
package eventbus

import (
	"context"

	"github.com/dandpb/jung-edu-app-sub012/pkg/events"
)

// Event is anything the bus can carry. The type tag routes the payload to
// the right handler on the consuming side.
type Event interface {
	GetType() events.EventType
}

// EventPublisher publishes events keyed by workflow ID, so all events of one
// workflow keep their relative order on partitioned transports.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber registers handlers and starts consumption. A handler error
// nacks the message for redelivery; a nil return acks it.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler processes one decoded event.
type EventHandler func(ctx context.Context, event interface{}) error

// EventBus is the full publish/subscribe surface used by the binaries.
type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
