package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"ipvreturn/internal/platform/kafka/consumer"
	"ipvreturn/internal/platform/kafka/producer"
	dErrors "ipvreturn/pkg/domain-errors"
)

// Enqueuer places an outbound notification on the delivery queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, n OutboundNotification) error
}

// KafkaEnqueuer produces notifications to the notifications topic, keyed by
// userId.
type KafkaEnqueuer struct {
	producer *producer.Producer
	topic    string
}

func NewKafkaEnqueuer(p *producer.Producer, topic string) *KafkaEnqueuer {
	return &KafkaEnqueuer{producer: p, topic: topic}
}

func (e *KafkaEnqueuer) Enqueue(ctx context.Context, n OutboundNotification) error {
	return e.producer.ProduceJSON(ctx, e.topic, n.Message.UserID, n)
}

// QueueHandler consumes one queued notification per invocation and feeds it
// to the delivery pipeline. Validation and precondition failures acknowledge
// the message; dependency and exhausted-retry failures redeliver.
type QueueHandler struct {
	service *Service
	logger  *slog.Logger
}

func NewQueueHandler(service *Service, logger *slog.Logger) *QueueHandler {
	return &QueueHandler{service: service, logger: logger}
}

func (h *QueueHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	var notification OutboundNotification
	if err := json.Unmarshal(msg.Value, &notification); err != nil {
		h.logger.Warn("dropping unparseable notification message",
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	receipt, err := h.service.Deliver(ctx, notification)
	switch {
	case err == nil:
		h.logger.Info("notification delivered",
			"user_id", notification.Message.UserID,
			"message_type", notification.Message.MessageType,
			"provider_status", receipt.ProviderStatus,
			"notification_id", receipt.NotificationID,
		)
		return nil
	case dErrors.HasCode(err, dErrors.CodeValidation), dErrors.HasCode(err, dErrors.CodeInternal):
		// Terminal: redelivery cannot fix a bad message or a rejected
		// template, so acknowledge and drop.
		h.logger.Error("dropping undeliverable notification",
			"user_id", notification.Message.UserID,
			"error", err,
		)
		return nil
	default:
		return err
	}
}
