package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/rbac-engine/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

// Publish logs the event at info level.
func (p *StubPublisher) Publish(_ context.Context, event port.Event) error {
	p.logger.Info("Stub event published",
		zap.String("event_type", event.Topic()),
		zap.Time("timestamp", time.Now().UTC()),
		zap.Any("payload", event),
	)
	return nil
}

// Close is a no-op for the stub.
func (p *StubPublisher) Close() error {
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
