package publisher

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"Leviosa/backend/go/internal/models"
	"Leviosa/backend/go/pkg/logger"
)

// messageWriter is the part of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventPublisher is responsible for publishing conversion events to Kafka.
type EventPublisher struct {
	writer messageWriter
	topic  string
	logger *logger.Logger
}

// NewEventPublisher creates a publisher writing to the given topic.
func NewEventPublisher(brokers []string, topic string, logger *logger.Logger) *EventPublisher {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
	return &EventPublisher{writer: writer, topic: topic, logger: logger}
}

// NewEventPublisherWithWriter wraps an existing writer, e.g. the shared client's writer.
func NewEventPublisherWithWriter(writer *kafka.Writer, logger *logger.Logger) *EventPublisher {
	return &EventPublisher{writer: writer, topic: writer.Topic, logger: logger}
}

// Publish sends a conversion event keyed by its request id.
func (p *EventPublisher) Publish(ctx context.Context, event models.ConversionEvent) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		p.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to marshal conversion event for Kafka")
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.RequestID),
		Value: msgBytes,
	})
	if err != nil {
		p.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{"topic": p.topic}).Error("Failed to write message to Kafka")
		return err
	}
	return nil
}

// Close closes the underlying Kafka writer.
func (p *EventPublisher) Close() error {
	return p.writer.Close()
}

// Nop discards events. Used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, models.ConversionEvent) error { return nil }
func (Nop) Close() error                                          { return nil }
