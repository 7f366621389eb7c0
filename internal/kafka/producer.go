package kafka

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"remindify/internal/config"
)

// MessageProducer publishes keyed messages to a topic.
type MessageProducer interface {
	SendMessage(ctx context.Context, topic string, key []byte, payload []byte) error
	Close()
}

type confluentKafkaProducer struct {
	producer *kafka.Producer
	cfg      config.KafkaConfig
}

// NewConfluentKafkaProducer creates a producer for cfg.Brokers.
func NewConfluentKafkaProducer(cfg config.KafkaConfig) (MessageProducer, error) {
	configMap := &kafka.ConfigMap{
		"bootstrap.servers": strings.Join(cfg.Brokers, ","),
		"security.protocol": cfg.Protocol,
		"acks":              "all",
	}
	if cfg.ClientID != "" {
		_ = configMap.SetKey("client.id", cfg.ClientID)
	}

	p, err := kafka.NewProducer(configMap)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return &confluentKafkaProducer{producer: p, cfg: cfg}, nil
}

// SendMessage enqueues the message and waits for its delivery report or ctx.
// Messages with the same key land on the same partition, so events of one pair stay ordered.
func (p *confluentKafkaProducer) SendMessage(ctx context.Context, topic string, key []byte, payload []byte) error {
	deliveryChan := make(chan kafka.Event, 1)

	kafkaMsg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            key,
		Value:          payload,
		Timestamp:      time.Now(),
	}

	if err := p.producer.Produce(kafkaMsg, deliveryChan); err != nil {
		return fmt.Errorf("kafka producer failed to enqueue message for topic %s: %w", topic, err)
	}

	select {
	case e := <-deliveryChan:
		m, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("kafka producer: unexpected delivery event %T: %v", e, e)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("kafka producer: delivery failed for topic %s: %w", topic, m.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("kafka producer: gave up waiting for delivery to %s: %w", topic, ctx.Err())
	}
}

// Close flushes outstanding messages for up to 15 seconds and closes the producer.
func (p *confluentKafkaProducer) Close() {
	if p.producer == nil {
		return
	}
	log.Println("Closing Kafka producer...")
	if remaining := p.producer.Flush(15 * 1000); remaining > 0 {
		log.Printf("Warning: %d messages still outstanding after flush, producer closing.", remaining)
	}
	p.producer.Close()
	log.Println("Kafka producer closed.")
}
