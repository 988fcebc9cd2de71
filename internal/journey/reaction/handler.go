package reaction

import (
	"context"
	"encoding/json"
	"log/slog"

	"ipvreturn/internal/journey/feed"
	"ipvreturn/internal/platform/kafka/consumer"
	dErrors "ipvreturn/pkg/domain-errors"
)

// FeedHandler consumes session change records from the change feed topic.
type FeedHandler struct {
	service *Service
	logger  *slog.Logger
}

func NewFeedHandler(service *Service, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{service: service, logger: logger}
}

func (h *FeedHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	var change feed.Change
	if err := json.Unmarshal(msg.Value, &change); err != nil {
		h.logger.Warn("dropping unparseable change record",
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	err := h.service.HandleChange(ctx, change)
	switch {
	case err == nil:
		return nil
	case dErrors.HasCode(err, dErrors.CodeAlreadyProcessed):
		// Expected under redelivery; not worth more than a debug line.
		h.logger.Debug("change already reacted to",
			"user_id", change.UserID,
		)
		return nil
	case dErrors.HasCode(err, dErrors.CodeValidation):
		// The aggregate is not complete yet; the write that completes it
		// will re-trigger the feed, so this record is done.
		h.logger.Debug("change not actionable yet",
			"user_id", change.UserID,
			"reason", err.Error(),
		)
		return nil
	case dErrors.HasCode(err, dErrors.CodeInternal):
		h.logger.Error("change reaction failed terminally",
			"user_id", change.UserID,
			"error", err,
		)
		return nil
	default:
		return err
	}
}
