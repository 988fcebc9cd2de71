package ingest

import (
	"context"
	"log/slog"

	"ipvreturn/internal/platform/kafka/consumer"
)

// QueueHandler adapts the ingestion service to the inbound event queue.
// Only retryable dispositions propagate an error; everything else commits,
// which is the poison-message avoidance contract.
type QueueHandler struct {
	service *Service
	logger  *slog.Logger
}

func NewQueueHandler(service *Service, logger *slog.Logger) *QueueHandler {
	return &QueueHandler{service: service, logger: logger}
}

func (h *QueueHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	disposition, err := h.service.Process(ctx, msg.Value)
	if disposition.Retryable() {
		return err
	}
	if err != nil {
		// Non-retryable dispositions never carry an error; log if one
		// slips through rather than poison the partition.
		h.logger.Error("unexpected error on acknowledged disposition",
			"disposition", string(disposition),
			"error", err,
		)
	}
	return nil
}
