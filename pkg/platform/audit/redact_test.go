package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedact(t *testing.T) {
	event := Event{
		EventName: "F2F_CREDENTIAL_CONSUMED",
		User: User{
			UserID: "u1",
			Email:  "jest@test.com",
		},
		Timestamp:        1_700_000_000,
		EventTimestampMs: 3_000_000,
		ComponentID:      "ipvreturn",
		Extensions: map[string]any{
			"document_type": "PASSPORT",
			"visit": map[string]any{
				"address": "1 High St",
			},
			"name_parts": []any{
				map[string]any{"value": "ANGELA"},
			},
		},
	}

	redacted := Redact(event, DefaultAllowList)

	assert.Equal(t, "F2F_CREDENTIAL_CONSUMED", redacted["event_name"])
	assert.EqualValues(t, 1_700_000_000, redacted["timestamp"])
	assert.Equal(t, "ipvreturn", redacted["component_id"])

	user, ok := redacted["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "u1", user["user_id"], "identifiers stay readable")
	assert.Equal(t, RedactionMarker, user["email"], "PII is scrubbed")

	extensions, ok := redacted["extensions"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, RedactionMarker, extensions["document_type"])

	visit, ok := extensions["visit"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, RedactionMarker, visit["address"], "nested maps are walked")

	parts, ok := extensions["name_parts"].([]any)
	require.True(t, ok)
	part, ok := parts[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, RedactionMarker, part["value"], "arrays of objects are walked")
}

func TestRedact_CustomAllowList(t *testing.T) {
	event := Event{
		EventName: "AUTH_IPV_AUTHORISATION_REQUESTED",
		User:      User{UserID: "u1", Email: "jest@test.com"},
	}

	redacted := Redact(event, []string{"email"})

	assert.Equal(t, RedactionMarker, redacted["event_name"], "default fields lose protection when replaced")
	user, ok := redacted["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "jest@test.com", user["email"])
}
