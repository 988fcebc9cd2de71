// Package guard decides whether an inbound event is already reflected in the
// session aggregate, so redelivered duplicates become explicit no-ops.
package guard

import (
	"context"
	"errors"

	"ipvreturn/internal/journey/events"
	"ipvreturn/internal/journey/models"
	"ipvreturn/internal/journey/store"
)

// handledChecks maps each event name to the session field it would set. A
// non-empty field means the event was already applied.
var handledChecks = map[string]func(*models.SessionRecord) bool{
	events.NameAuthorisationRequested: func(r *models.SessionRecord) bool { return r.IPVStartedOn > 0 },
	events.NameDocumentCheckStarted:   func(r *models.SessionRecord) bool { return r.JourneyWentAsyncOn > 0 },
	events.NameCredentialConsumed:     func(r *models.SessionRecord) bool { return r.ReadyToResumeOn > 0 },
	events.NameDocumentUploaded:       func(r *models.SessionRecord) bool { return r.DocumentUploadedOn > 0 },
	events.NameAccountDeleted:         func(r *models.SessionRecord) bool { return r.AccountDeletedOn > 0 },
	events.NameUserCancelled:          func(r *models.SessionRecord) bool { return r.AccountDeletedOn > 0 },
	events.NameGenerationError:        func(r *models.SessionRecord) bool { return r.ErrorDescription != "" },
}

func isDeletionEvent(eventName string) bool {
	return eventName == events.NameAccountDeleted || eventName == events.NameUserCancelled
}

// Guard consults the session store once per decision.
type Guard struct {
	sessions store.SessionStore
}

func New(sessions store.SessionStore) *Guard {
	return &Guard{sessions: sessions}
}

// AlreadyHandled reports whether the event should be skipped as a duplicate:
// the record is tombstoned, the field this event sets is already populated,
// or a deletion event arrived for a record that never existed.
func (g *Guard) AlreadyHandled(ctx context.Context, userID, eventName string) (bool, error) {
	record, err := g.sessions.Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		// Deleting a record that does not exist is a no-op; anything else
		// is simply the first event for this user.
		return isDeletionEvent(eventName), nil
	}
	if err != nil {
		return false, err
	}

	if record.Tombstoned() {
		return true, nil
	}
	if check, ok := handledChecks[eventName]; ok && check(record) {
		return true, nil
	}
	return false, nil
}
