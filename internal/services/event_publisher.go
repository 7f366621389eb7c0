package services

import (
	"context"
	"encoding/json"
	"fmt"

	"remindify/internal/kafka"
	"remindify/internal/models"
)

// EventPublisher hands a connection event to whatever feeds the audit log.
type EventPublisher interface {
	Publish(ctx context.Context, event *models.ConnectionEvent) error
}

type kafkaEventPublisher struct {
	producer kafka.MessageProducer
	topic    string
}

// NewKafkaEventPublisher publishes events as JSON to topic, keyed by the user pair so every
// event of one pair goes to the same partition.
func NewKafkaEventPublisher(producer kafka.MessageProducer, topic string) EventPublisher {
	return &kafkaEventPublisher{producer: producer, topic: topic}
}

func (p *kafkaEventPublisher) Publish(ctx context.Context, event *models.ConnectionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal connection event: %w", err)
	}
	low, high := models.PairKey(event.RequesterID, event.RecipientID)
	key := []byte(fmt.Sprintf("%d-%d", low, high))

	if err := p.producer.SendMessage(ctx, p.topic, key, payload); err != nil {
		return fmt.Errorf("failed to publish connection event %s: %w", event.EventID, err)
	}
	return nil
}

type directEventPublisher struct {
	audit AuditService
}

// NewDirectEventPublisher writes events straight to the audit log. Used when Kafka is disabled.
func NewDirectEventPublisher(audit AuditService) EventPublisher {
	return &directEventPublisher{audit: audit}
}

func (p *directEventPublisher) Publish(ctx context.Context, event *models.ConnectionEvent) error {
	return p.audit.Record(ctx, event)
}
