package producer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/gosight/perfship/internal/config"
	"github.com/gosight/perfship/internal/enricher"
)

const defaultEventsTopic = "perfship.log-events"

// messageWriter is satisfied by *kafka.Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer publishes accepted log events. Messages are keyed by stream
// so each stream lands on one partition in append order.
type KafkaProducer struct {
	writer messageWriter
}

func NewKafkaProducer(cfg config.KafkaConfig) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}

	topic := cfg.Topics["events"]
	if topic == "" {
		topic = defaultEventsTopic
	}

	return newKafkaProducer(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: time.Millisecond * 10,
		RequiredAcks: kafka.RequireOne,
	}), nil
}

func newKafkaProducer(w messageWriter) *KafkaProducer {
	return &KafkaProducer{writer: w}
}

// ProduceStreamEvents publishes one accepted batch in order.
func (p *KafkaProducer) ProduceStreamEvents(ctx context.Context, streamKey string, events []*enricher.ForwardedEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, len(events))
	for i, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		msgs[i] = kafka.Message{
			Key:   []byte(streamKey),
			Value: data,
		}
	}

	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
