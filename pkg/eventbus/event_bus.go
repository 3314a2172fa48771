// Package eventbus carries dataflow events between processes. Every message
// carries the id of its project in its metadata.
package eventbus

import (
	"context"

	"github.com/dukex/dataflow/pkg/events"
)

// Event is a notification about one project.
type Event interface {
	GetType() events.EventType
	GetProjectID() string
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
