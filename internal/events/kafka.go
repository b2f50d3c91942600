package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSink forwards events to a topic, keyed by Event.Key so updates to one
// bucket or task stay ordered within a partition.
func KafkaSink(w MessageWriter) Handler {
	return func(ctx context.Context, ev Event) error {
		value, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		msg := kafka.Message{
			Key:   []byte(ev.Key),
			Value: value,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(ev.Type)},
			},
		}
		if err := w.WriteMessages(ctx, msg); err != nil {
			return fmt.Errorf("write event to kafka: %w", err)
		}
		return nil
	}
}
