package port

import "context"

// Event is the payload contract for the publisher; implementations marshal it
// to JSON.
type Event interface {
	Topic() string
}

// EventPublisher emits engine lifecycle events. Publishing is best-effort:
// services log failures and carry on.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
