package consumer

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/gosight/perfship/internal/config"
)

const DefaultTopic = "perfship.log-events"

// MessageProcessor interface for processing messages
type MessageProcessor interface {
	Process(ctx context.Context, value []byte) error
	Flush()
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer consumes forwarded log events from Kafka
type KafkaConsumer struct {
	reader    messageReader
	processor MessageProcessor
	topic     string
	group     string
}

// NewKafkaConsumer creates a new Kafka consumer
func NewKafkaConsumer(cfg config.KafkaConfig, processor MessageProcessor) (*KafkaConsumer, error) {
	topic := cfg.Topics["events"]
	if topic == "" {
		topic = DefaultTopic
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       1e3,  // 1KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})

	return &KafkaConsumer{
		reader:    reader,
		processor: processor,
		topic:     topic,
		group:     cfg.ConsumerGroup,
	}, nil
}

// Start consumes until ctx is cancelled
func (c *KafkaConsumer) Start(ctx context.Context) {
	log.Info().
		Str("topic", c.topic).
		Str("group", c.group).
		Msg("Starting Kafka consumer")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("Kafka consumer stopped")
				return
			}
			log.Error().Err(err).Msg("Failed to fetch message")
			continue
		}

		if err := c.processor.Process(ctx, msg.Value); err != nil {
			log.Warn().
				Err(err).
				Str("key", string(msg.Key)).
				Msg("Skipping message")
		}

		// Commit regardless so a bad message cannot wedge the partition
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			log.Error().Err(err).Msg("Failed to commit message")
		}
	}
}

// Close flushes the processor and closes the reader
func (c *KafkaConsumer) Close() error {
	log.Info().Msg("Closing Kafka consumer")
	c.processor.Flush()
	return c.reader.Close()
}
