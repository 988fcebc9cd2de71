// Package feed carries per-row mutation notifications out of the session
// store, the trigger for the notification path.
package feed

import (
	"context"

	"ipvreturn/internal/journey/models"
	"ipvreturn/internal/platform/kafka/producer"
)

// Kind classifies a store mutation.
type Kind string

const (
	KindInsert Kind = "INSERT"
	KindModify Kind = "MODIFY"
	KindRemove Kind = "REMOVE"
)

// Change is one mutation notification carrying the new row image.
type Change struct {
	Kind     Kind                 `json:"kind"`
	UserID   string               `json:"userId"`
	NewImage models.SessionRecord `json:"newImage"`
}

// Publisher receives a change after every successful session store write.
type Publisher interface {
	Publish(ctx context.Context, change Change) error
}

// KafkaFeed publishes changes to the session-changes topic, keyed by userId
// so one user's changes stay ordered.
type KafkaFeed struct {
	producer *producer.Producer
	topic    string
}

func NewKafkaFeed(p *producer.Producer, topic string) *KafkaFeed {
	return &KafkaFeed{producer: p, topic: topic}
}

func (f *KafkaFeed) Publish(ctx context.Context, change Change) error {
	return f.producer.ProduceJSON(ctx, f.topic, change.UserID, change)
}

// ChannelFeed delivers changes over a channel; used by tests and
// single-process wiring.
type ChannelFeed struct {
	ch chan Change
}

func NewChannelFeed(buffer int) *ChannelFeed {
	return &ChannelFeed{ch: make(chan Change, buffer)}
}

func (f *ChannelFeed) Publish(ctx context.Context, change Change) error {
	select {
	case f.ch <- change:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Changes exposes the receive side of the feed.
func (f *ChannelFeed) Changes() <-chan Change { return f.ch }
