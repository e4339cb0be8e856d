package stream

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is one bus record, decoupled from the kgo types so consumers stay
// testable without a broker.
type Message struct {
	Topic string
	Key   []byte
	Value []byte
}

// Consumer is a group consumer with manual offset commits: offsets advance
// only after the caller has fully applied a polled batch.
type Consumer struct {
	client *kgo.Client
}

// NewConsumer joins the consumer group on the given topics.
func NewConsumer(brokers []string, groupID string, topics ...string) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	if groupID == "" {
		return nil, fmt.Errorf("missing required group ID")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer client: %w", err)
	}
	return &Consumer{client: client}, nil
}

// Poll blocks for the next batch of records. Partition-level fetch errors
// are logged and the healthy partitions' records are still returned; a
// closed client or canceled context ends the poll with ctx.Err.
func (c *Consumer) Poll(ctx context.Context) ([]Message, error) {
	fetches := c.client.PollFetches(ctx)
	if fetches.IsClientClosed() {
		return nil, context.Canceled
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fetches.EachError(func(topic string, partition int32, err error) {
		log.Error().
			Err(err).
			Str("topic", topic).
			Int32("partition", partition).
			Msg("fetch error")
	})

	var msgs []Message
	fetches.EachRecord(func(record *kgo.Record) {
		msgs = append(msgs, Message{
			Topic: record.Topic,
			Key:   record.Key,
			Value: record.Value,
		})
	})
	return msgs, nil
}

// CommitPolled commits the offsets of everything polled so far. Called only
// after the whole batch's side effects are applied.
func (c *Consumer) CommitPolled(ctx context.Context) error {
	if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
		return fmt.Errorf("commit offsets: %w", err)
	}
	return nil
}

// Close leaves the group and releases the client.
func (c *Consumer) Close() {
	c.client.Close()
}
