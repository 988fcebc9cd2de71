// Package consumer wraps franz-go group consumption behind a per-record
// handler. Offsets are committed only after the handler accepts the record,
// so a crash before commit redelivers.
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is the transport-level record passed to handlers.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
}

// Handler processes one message. Returning nil acknowledges the message
// (offset is committed). Returning an error signals the message must be
// redelivered; permanent rejections are the handler's job to swallow.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// Config identifies what to consume.
type Config struct {
	Brokers []string
	Group   string
	Topics  []string
}

// Consumer polls a consumer group and dispatches records one at a time.
type Consumer struct {
	client  *kgo.Client
	handler Handler
	logger  *slog.Logger

	// retryBackoff spaces in-place retries of a failing record. The record
	// is not committed until the handler accepts it, mirroring queue
	// redelivery semantics.
	retryBackoff time.Duration
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithRetryBackoff overrides the delay between handler retries.
func WithRetryBackoff(d time.Duration) Option {
	return func(c *Consumer) { c.retryBackoff = d }
}

// New connects a group consumer for the given topics.
func New(cfg Config, handler Handler, logger *slog.Logger, opts ...Option) (*Consumer, error) {
	if handler == nil {
		return nil, errors.New("consumer handler is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, err
	}
	c := &Consumer{
		client:       client,
		handler:      handler,
		logger:       logger,
		retryBackoff: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run polls until the context is cancelled. Each record is retried in place
// until the handler accepts it; only then is its offset committed.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error("fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})

		iter := fetches.RecordIter()
		for !iter.Done() {
			rec := iter.Next()
			msg := &Message{
				Topic:     rec.Topic,
				Partition: rec.Partition,
				Offset:    rec.Offset,
				Key:       rec.Key,
				Value:     rec.Value,
				Timestamp: rec.Timestamp,
			}
			if err := c.handleWithRetry(ctx, msg); err != nil {
				// Context cancelled mid-record; the uncommitted offset
				// redelivers on the next session.
				return err
			}
			if err := c.client.CommitRecords(ctx, rec); err != nil {
				c.logger.Error("offset commit failed",
					"topic", rec.Topic,
					"partition", rec.Partition,
					"offset", rec.Offset,
					"error", err,
				)
			}
		}
	}
}

func (c *Consumer) handleWithRetry(ctx context.Context, msg *Message) error {
	for {
		err := c.handler.Handle(ctx, msg)
		if err == nil {
			return nil
		}
		c.logger.Warn("message handling failed, will retry",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"backoff", c.retryBackoff,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryBackoff):
		}
	}
}

// Close leaves the group and releases the client.
func (c *Consumer) Close() {
	c.client.Close()
}
