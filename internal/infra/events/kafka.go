// Package events publishes outbound domain events to Kafka. Publishing
// is optional: when no broker is configured the no-op publisher is
// wired instead and callers never know the difference.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/boutikcards/chat-commerce-go/internal/domain"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

const flushTimeoutMs = 5000

// KafkaPublisher implements port.EventPublisher on a confluent-kafka
// producer. Delivery reports are drained by a dedicated goroutine;
// failed deliveries are logged, not retried (consumers reconcile from
// the store).
type KafkaPublisher struct {
	producer *kafka.Producer
	topic    string
	logger   *zap.Logger
}

// NewKafkaPublisher connects to the broker and starts the delivery
// report handler.
func NewKafkaPublisher(broker, topic string, logger *zap.Logger) (*KafkaPublisher, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": broker,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	p := &KafkaPublisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
	go p.handleDeliveryReports()

	return p, nil
}

func (p *KafkaPublisher) handleDeliveryReports() {
	for e := range p.producer.Events() {
		m, ok := e.(*kafka.Message)
		if !ok {
			continue
		}
		if m.TopicPartition.Error != nil {
			p.logger.Warn("event delivery failed",
				zap.String("key", string(m.Key)),
				zap.Error(m.TopicPartition.Error))
		}
	}
}

// Publish serializes the event and enqueues it, keyed by order id so
// one order's events stay ordered within a partition.
func (p *KafkaPublisher) Publish(_ context.Context, event *domain.OutboundEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	return p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.OrderID),
		Value:          payload,
	}, nil)
}

// Close flushes pending messages and shuts the producer down.
func (p *KafkaPublisher) Close() {
	remaining := p.producer.Flush(flushTimeoutMs)
	if remaining > 0 {
		p.logger.Warn("closing with undelivered events", zap.Int("remaining", remaining))
	}
	p.producer.Close()
}

// NoopPublisher is wired when no broker is configured.
type NoopPublisher struct{}

// Publish discards the event.
func (NoopPublisher) Publish(_ context.Context, _ *domain.OutboundEvent) error { return nil }

// Close is a no-op.
func (NoopPublisher) Close() {}
