package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
)

// KafkaPublisher writes domain events to a single Kafka topic keyed by event
// name, for deployments where downstream consumers live outside this process.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

// NewKafkaPublisher dials the brokers and returns a publisher.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) (*KafkaPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Return.Successes = true
	cfg.Producer.Compression = sarama.CompressionSnappy

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("events: kafka producer: %w", err)
	}
	return &KafkaPublisher{producer: producer, topic: topic, logger: logger}, nil
}

type envelope struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// Publish sends the event to the configured topic.
func (p *KafkaPublisher) Publish(_ context.Context, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", name, err)
	}
	body, err := json.Marshal(envelope{Name: name, Payload: data})
	if err != nil {
		return fmt.Errorf("events: marshal envelope %s: %w", name, err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(name),
		Value: sarama.ByteEncoder(body),
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		p.logger.Warn("event publish failed", slog.String("event", name), slog.Any("error", err))
		return fmt.Errorf("events: send %s: %w", name, err)
	}
	return nil
}

// Close releases the underlying producer.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
