// Package stream adapts the franz-go client to the two roles the system
// needs: the relay's producer and the ranking worker's group consumer.
// Records are keyed by the event's partition key, so per-aggregate order is
// preserved within a partition.
package stream

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer publishes outbox payloads to the streaming bus.
type Producer struct {
	client *kgo.Client
}

// NewProducer connects a producer to the given brokers.
func NewProducer(brokers []string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequestRetries(10),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer client: %w", err)
	}
	return &Producer{client: client}, nil
}

// Produce publishes one record and waits for the broker ack. The relay
// publishes sequentially, so per-key order follows insertion order.
func (p *Producer) Produce(ctx context.Context, topic, key string, value []byte) error {
	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
	return nil
}

// Close flushes buffered records and releases the client.
func (p *Producer) Close() {
	p.client.Close()
}
