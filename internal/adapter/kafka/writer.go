// Package kafka publishes committed alert transitions to a Kafka topic so
// downstream automations can consume them as an event stream.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/forewarned/forewarned/internal/domain"
)

// Writer produces transition events to a Kafka topic.
// It implements the dispatcher's TransitionPublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured transitions topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishTransition serializes and publishes one transition event.
func (w *Writer) PublishTransition(ctx context.Context, t domain.Transition) error {
	msg, err := serializeToMessage(t)
	if err != nil {
		return err
	}
	return w.writer.WriteMessages(ctx, msg)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a transition into a Kafka message. The key is
// the new level so compacted consumers keep the latest transition per level.
func serializeToMessage(t domain.Transition) (kafkago.Message, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize transition: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(t.New.Level.String()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "active", Value: []byte(fmt.Sprintf("%t", t.New.Active))},
			{Key: "committed_at", Value: []byte(t.New.Timestamp.Format(time.RFC3339))},
		},
	}, nil
}
