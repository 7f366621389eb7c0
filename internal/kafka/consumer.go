package kafka

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"remindify/internal/config"
)

// MessageHandler processes one consumed message. Returning nil commits the offset.
// An error retries the same message with backoff; the consumer does not move on until
// it succeeds or the context ends, so a later commit never skips a failed message.
// Handlers decide themselves which messages are unprocessable and should be skipped.
type MessageHandler func(ctx context.Context, msg *kafka.Message) error

// MessageConsumer reads topics as part of a consumer group.
type MessageConsumer interface {
	Consume(ctx context.Context, topics []string, groupID string, handler MessageHandler) error
	Close()
}

type confluentKafkaConsumer struct {
	consumer *kafka.Consumer
	cfg      config.KafkaConfig
	groupID  string
}

// NewConfluentKafkaConsumer prepares a consumer; the underlying client is created in Consume
// once the group is known.
func NewConfluentKafkaConsumer(cfg config.KafkaConfig) (MessageConsumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka consumer: no brokers configured")
	}
	return &confluentKafkaConsumer{cfg: cfg}, nil
}

// Consume blocks until ctx is cancelled or a fatal Kafka error occurs.
func (c *confluentKafkaConsumer) Consume(ctx context.Context, topics []string, groupID string, handler MessageHandler) error {
	if len(topics) == 0 {
		return fmt.Errorf("kafka consumer: no topics specified")
	}
	c.groupID = groupID

	configMap := &kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(c.cfg.Brokers, ","),
		"group.id":           groupID,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": "false",
		"security.protocol":  c.cfg.Protocol,
	}
	if c.cfg.ClientID != "" {
		_ = configMap.SetKey("client.id", c.cfg.ClientID)
	}

	consumer, err := kafka.NewConsumer(configMap)
	if err != nil {
		return fmt.Errorf("failed to create Kafka consumer for group %s: %w", groupID, err)
	}
	c.consumer = consumer

	if err := c.consumer.SubscribeTopics(topics, nil); err != nil {
		_ = c.consumer.Close()
		c.consumer = nil
		return fmt.Errorf("failed to subscribe to topics %v for group %s: %w", topics, groupID, err)
	}

	log.Printf("Kafka consumer started for group %s, topics %v", groupID, topics)

	for {
		select {
		case <-ctx.Done():
			log.Printf("Context canceled for consumer group %s. Shutting down.", groupID)
			return nil
		default:
		}

		ev := c.consumer.Poll(1000)
		if ev == nil {
			continue
		}

		switch e := ev.(type) {
		case *kafka.Message:
			if err := handleWithRetry(ctx, handler, e, groupID); err != nil {
				// only a cancelled ctx ends the retries; the offset stays uncommitted
				log.Printf("Stopped retrying Kafka message for group %s (offset %v): %v", groupID, e.TopicPartition.Offset, err)
				return nil
			}
			if _, err := c.consumer.CommitMessage(e); err != nil {
				log.Printf("Failed to commit offset for group %s (topic %s, offset %v): %v",
					groupID, *e.TopicPartition.Topic, e.TopicPartition.Offset, err)
			}
		case kafka.Error:
			log.Printf("Kafka consumer error for group %s: %v (code %d, fatal %t)", groupID, e, e.Code(), e.IsFatal())
			if e.IsFatal() {
				return e
			}
		case kafka.AssignedPartitions:
			log.Printf("Partitions assigned for group %s: %v", groupID, e.Partitions)
			_ = c.consumer.Assign(e.Partitions)
		case kafka.RevokedPartitions:
			log.Printf("Partitions revoked for group %s: %v", groupID, e.Partitions)
			_ = c.consumer.Unassign()
		}
	}
}

// retryPolicy is the backoff applied while a handler keeps failing on one message.
var retryPolicy = func() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	return b
}

func handleWithRetry(ctx context.Context, handler MessageHandler, msg *kafka.Message, groupID string) error {
	attempt := func() error {
		return handler(ctx, msg)
	}
	notify := func(err error, wait time.Duration) {
		log.Printf("Error processing Kafka message for group %s (partition %d, offset %v), retrying in %s: %v",
			groupID, msg.TopicPartition.Partition, msg.TopicPartition.Offset, wait, err)
	}
	return backoff.RetryNotify(attempt, backoff.WithContext(retryPolicy(), ctx), notify)
}

func (c *confluentKafkaConsumer) Close() {
	if c.consumer == nil {
		return
	}
	log.Printf("Closing Kafka consumer for group %s...", c.groupID)
	if err := c.consumer.Close(); err != nil {
		log.Printf("Error closing Kafka consumer for group %s: %v", c.groupID, err)
	}
	c.consumer = nil
}
