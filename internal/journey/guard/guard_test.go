package guard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipvreturn/internal/journey/events"
	"ipvreturn/internal/journey/models"
	"ipvreturn/internal/journey/store/session"
)

func TestAlreadyHandled(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T, mutate func(*models.SessionRecord)) *Guard {
		t.Helper()
		s := session.NewInMemory()
		if mutate != nil {
			_, err := s.Mutate(ctx, "u1", func(r *models.SessionRecord) error {
				mutate(r)
				return nil
			})
			require.NoError(t, err)
		}
		return New(s)
	}

	t.Run("no record means not handled", func(t *testing.T) {
		g := seed(t, nil)
		handled, err := g.AlreadyHandled(ctx, "u1", events.NameAuthorisationRequested)
		require.NoError(t, err)
		assert.False(t, handled)
	})

	t.Run("deletion of a missing record is a no-op", func(t *testing.T) {
		g := seed(t, nil)
		for _, name := range []string{events.NameAccountDeleted, events.NameUserCancelled} {
			handled, err := g.AlreadyHandled(ctx, "u1", name)
			require.NoError(t, err)
			assert.True(t, handled, name)
		}
	})

	t.Run("tombstone blocks every event", func(t *testing.T) {
		g := seed(t, func(r *models.SessionRecord) { r.AccountDeletedOn = 100 })
		for name := range handledChecks {
			handled, err := g.AlreadyHandled(ctx, "u1", name)
			require.NoError(t, err)
			assert.True(t, handled, name)
		}
	})

	t.Run("per-event field presence", func(t *testing.T) {
		tests := []struct {
			eventName string
			set       func(*models.SessionRecord)
		}{
			{events.NameAuthorisationRequested, func(r *models.SessionRecord) { r.IPVStartedOn = 1 }},
			{events.NameDocumentCheckStarted, func(r *models.SessionRecord) { r.JourneyWentAsyncOn = 1 }},
			{events.NameCredentialConsumed, func(r *models.SessionRecord) { r.ReadyToResumeOn = 1 }},
			{events.NameDocumentUploaded, func(r *models.SessionRecord) { r.DocumentUploadedOn = 1 }},
			{events.NameGenerationError, func(r *models.SessionRecord) { r.ErrorDescription = "boom" }},
		}

		for _, tc := range tests {
			t.Run(tc.eventName, func(t *testing.T) {
				empty := seed(t, func(r *models.SessionRecord) { r.ClientSessionID = "j-42" })
				handled, err := empty.AlreadyHandled(ctx, "u1", tc.eventName)
				require.NoError(t, err)
				assert.False(t, handled, "unset field means first delivery")

				populated := seed(t, tc.set)
				handled, err = populated.AlreadyHandled(ctx, "u1", tc.eventName)
				require.NoError(t, err)
				assert.True(t, handled, "populated field means duplicate")
			})
		}
	})

	t.Run("different events do not block each other", func(t *testing.T) {
		g := seed(t, func(r *models.SessionRecord) { r.IPVStartedOn = 1 })
		handled, err := g.AlreadyHandled(ctx, "u1", events.NameCredentialConsumed)
		require.NoError(t, err)
		assert.False(t, handled)
	})
}
