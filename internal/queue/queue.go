// Package queue wraps the ingest-queue producer the Publish Endpoint (C8)
// ships accepted observations to. The consumer/ingestor side is an
// external collaborator and out of scope here.
package queue

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer publishes a value keyed for partition affinity. Implementations
// must preserve per-key ordering (the publish handler keys by publisher
// name so one publisher's batches are never reordered relative to each
// other).
type Producer interface {
	Produce(ctx context.Context, key, value []byte) error
	Close()
}

// KafkaProducer is a franz-go-backed Producer.
type KafkaProducer struct {
	client *kgo.Client
	topic  string
}

// NewKafkaProducer dials the configured brokers and returns a ready
// producer for the given topic.
func NewKafkaProducer(brokers []string, topic string) (*KafkaProducer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaProducer{client: client, topic: topic}, nil
}

// Produce synchronously produces one record, keyed for partition
// affinity, and waits for the broker ack.
func (p *KafkaProducer) Produce(ctx context.Context, key, value []byte) error {
	record := &kgo.Record{Topic: p.topic, Key: key, Value: value}
	results := p.client.ProduceSync(ctx, record)
	if err := results.FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", p.topic, err)
	}
	return nil
}

// Close releases the underlying client.
func (p *KafkaProducer) Close() {
	p.client.Close()
}
