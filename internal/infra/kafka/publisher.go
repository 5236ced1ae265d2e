package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/rbac-engine/internal/core/port"
)

// eventEnvelope is the wire format for published engine events.
type eventEnvelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Publisher sends engine lifecycle events through the async producer.
type Publisher struct {
	producer *Producer
	logger   *zap.Logger
}

// NewPublisher constructs a Kafka-backed event publisher.
func NewPublisher(producer *Producer, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{producer: producer, logger: logger}
}

// Publish marshals the event into an envelope and enqueues it. Delivery is
// fire-and-forget; producer errors surface through the error handler.
func (p *Publisher) Publish(_ context.Context, event port.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}

	envelope := eventEnvelope{
		EventID:    uuid.NewString(),
		EventType:  event.Topic(),
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode event envelope: %w", err)
	}

	topic := p.producer.TopicName(event.Topic())
	p.producer.Producer().Input() <- &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(envelope.EventID),
		Value: sarama.ByteEncoder(data),
	}

	p.logger.Debug("event enqueued",
		zap.String("topic", topic),
		zap.String("event_id", envelope.EventID),
	)
	return nil
}

// Close shuts down the underlying producer.
func (p *Publisher) Close() error {
	return p.producer.Close()
}

var _ port.EventPublisher = (*Publisher)(nil)
