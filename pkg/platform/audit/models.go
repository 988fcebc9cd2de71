// Package audit emits the redacted audit trail for the return journey
// pipeline. Events are logged with PII scrubbed and sent un-redacted to the
// audit queue; two emission policies exist because the auth stage treats a
// lost audit record as fatal and the session stage does not.
package audit

import "context"

// User identifies the subject of an audit event.
type User struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

// Event is the write-once audit record.
type Event struct {
	EventName string `json:"event_name"`
	User      User   `json:"user"`
	// Timestamp is when the event was emitted, epoch seconds.
	Timestamp int64 `json:"timestamp"`
	// EventTimestampMs is when the underlying lifecycle event happened.
	EventTimestampMs int64          `json:"event_timestamp_ms"`
	ComponentID      string         `json:"component_id,omitempty"`
	Extensions       map[string]any `json:"extensions,omitempty"`
}

// Emitter sends one audit event; the failure policy is the implementation's.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Audit event names emitted by this pipeline, alongside the inbound wire
// names which are audited verbatim.
const (
	EventNotificationEmailed        = "IPR_RESULT_NOTIFICATION_EMAILED"
	EventFailureNotificationEmailed = "IPR_FAILURE_NOTIFICATION_EMAILED"
)
