// Package consumer archives audit events from the audit topic. Archival is
// best-effort: a failed insert is logged and the offset still commits, so
// the archive never stalls the pipeline.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"ipvreturn/internal/platform/kafka/consumer"
	audit "ipvreturn/pkg/platform/audit"
)

// ArchiveStore persists consumed audit events.
type ArchiveStore interface {
	Append(ctx context.Context, eventID uuid.UUID, event audit.Event) error
}

// Handler consumes one audit record per invocation.
type Handler struct {
	store  ArchiveStore
	logger *slog.Logger
}

func NewHandler(store ArchiveStore, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

func (h *Handler) Handle(ctx context.Context, msg *consumer.Message) error {
	var event audit.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.Warn("dropping unparseable audit record",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	// The archive id is derived from the topic coordinates so replays of
	// the same record collapse onto one row.
	coords := fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	eventID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(coords))

	if err := h.store.Append(ctx, eventID, event); err != nil {
		h.logger.Error("audit archive insert failed, skipping",
			"event_name", event.EventName,
			"offset", msg.Offset,
			"error", err,
		)
	}
	return nil
}
