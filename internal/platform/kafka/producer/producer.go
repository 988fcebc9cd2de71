// Package producer wraps franz-go synchronous production. Messages are keyed
// by userId so all records for one user land on one partition.
package producer

import (
	"context"
	"encoding/json"

	"github.com/twmb/franz-go/pkg/kgo"
)

type Producer struct {
	client *kgo.Client
}

// New connects a producer to the given brokers.
func New(brokers []string) (*Producer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, err
	}
	return &Producer{client: client}, nil
}

// Produce sends one record and waits for the broker acknowledgement.
func (p *Producer) Produce(ctx context.Context, topic, key string, value []byte) error {
	rec := &kgo.Record{Topic: topic, Key: []byte(key), Value: value}
	return p.client.ProduceSync(ctx, rec).FirstErr()
}

// ProduceJSON marshals v and sends it as one record.
func (p *Producer) ProduceJSON(ctx context.Context, topic, key string, v any) error {
	value, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.Produce(ctx, topic, key, value)
}

// Close flushes and releases the client.
func (p *Producer) Close() {
	p.client.Close()
}
