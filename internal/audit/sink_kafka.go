package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"thgate/internal/platform/kafka/producer"
)

// MessageProducer is the subset of the Kafka producer the sink needs.
type MessageProducer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// KafkaSink publishes events as JSON records keyed by client prefix, so
// events from one network land on one partition in order.
type KafkaSink struct {
	producer MessageProducer
}

func NewKafkaSink(p MessageProducer) *KafkaSink {
	return &KafkaSink{producer: p}
}

func (s *KafkaSink) Write(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal security event: %w", err)
	}
	return s.producer.Produce(ctx, &producer.Message{
		Key:   []byte(event.ClientIP),
		Value: payload,
		Headers: map[string]string{
			"event_type": string(event.Type),
			"request_id": event.RequestID,
		},
	})
}
