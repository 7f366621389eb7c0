package kafkahandlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"remindify/internal/models"
	"remindify/internal/services"
)

// ConnectionEventConsumer feeds connection lifecycle events from Kafka into the audit log.
type ConnectionEventConsumer struct {
	audit services.AuditService
}

// NewConnectionEventConsumer creates a consumer adapter around audit.
func NewConnectionEventConsumer(audit services.AuditService) *ConnectionEventConsumer {
	if audit == nil {
		log.Panic("AuditService cannot be nil")
	}
	return &ConnectionEventConsumer{audit: audit}
}

// HandleMessage is a kafka.MessageHandler. Malformed messages are logged and skipped
// (their offset is committed); storage failures are returned and the consumer retries
// the same message until it is recorded.
func (h *ConnectionEventConsumer) HandleMessage(ctx context.Context, msg *kafka.Message) error {
	var event models.ConnectionEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Printf("Skipping malformed connection event at offset %v: %v", msg.TopicPartition.Offset, err)
		return nil
	}
	// never trust a producer-side primary key
	event.ID = 0

	if err := h.audit.Record(ctx, &event); err != nil {
		if errors.Is(err, services.ErrInvalidInput) {
			log.Printf("Skipping invalid connection event at offset %v: %v", msg.TopicPartition.Offset, err)
			return nil
		}
		return err
	}
	return nil
}
