package kafka

import "time"

// DefaultTopic receives security events when KAFKA_TOPIC is unset.
const DefaultTopic = "thgate.security-events"

// ProducerConfig holds configuration for the Kafka producer.
type ProducerConfig struct {
	Brokers         string
	Topic           string
	Acks            string
	Retries         int
	DeliveryTimeout time.Duration
}

// DefaultProducerConfig returns defaults for production use. Security events
// are low volume, so waiting for all in-sync replicas costs little.
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		Topic:           DefaultTopic,
		Acks:            "all",
		Retries:         3,
		DeliveryTimeout: 10 * time.Second,
	}
}
