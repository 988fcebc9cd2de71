package audit

import "encoding/json"

// RedactionMarker replaces every scalar not on the allow-list in the logged
// copy of an audit event.
const RedactionMarker = "[REDACTED]"

// DefaultAllowList names the fields safe to log un-redacted.
var DefaultAllowList = []string{
	"event_name",
	"user_id",
	"timestamp",
	"event_timestamp_ms",
	"component_id",
}

// Redact returns a copy of the event as a generic JSON structure with every
// scalar whose field name is not allow-listed replaced by RedactionMarker.
// The walk is recursive so nested extensions are scrubbed too.
func Redact(event Event, allowList []string) map[string]any {
	allowed := make(map[string]struct{}, len(allowList))
	for _, field := range allowList {
		allowed[field] = struct{}{}
	}

	raw, err := json.Marshal(event)
	if err != nil {
		return map[string]any{"event_name": RedactionMarker}
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return map[string]any{"event_name": RedactionMarker}
	}

	redacted := redactValue("", generic, allowed)
	result, ok := redacted.(map[string]any)
	if !ok {
		return map[string]any{"event_name": RedactionMarker}
	}
	return result
}

func redactValue(field string, value any, allowed map[string]struct{}) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, nested := range v {
			out[key] = redactValue(key, nested, allowed)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, nested := range v {
			out[i] = redactValue(field, nested, allowed)
		}
		return out
	default:
		if _, ok := allowed[field]; ok {
			return v
		}
		return RedactionMarker
	}
}
