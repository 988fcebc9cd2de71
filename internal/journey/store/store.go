// Package store defines the aggregate store contracts. Implementations live
// in the session and auth subpackages, each with an in-memory variant for
// tests and a Redis variant for production.
package store

import (
	"context"
	"errors"

	"ipvreturn/internal/journey/models"
	dErrors "ipvreturn/pkg/domain-errors"
)

var (
	// ErrNotFound keeps storage-specific 404s consistent across
	// implementations.
	ErrNotFound = dErrors.New(dErrors.CodeNotFound, "record not found")

	// ErrNoChange aborts a Mutate without writing; Mutate returns the
	// current record alongside it.
	ErrNoChange = errors.New("mutation aborted, no change")
)

// SessionStore is the long-lived journey aggregate, keyed by userId.
type SessionStore interface {
	// Get returns the record, or ErrNotFound. Expired rows read as absent.
	Get(ctx context.Context, userID string) (*models.SessionRecord, error)

	// Mutate upserts the record under optimistic concurrency: the current
	// image (or a fresh one keyed by userID) is passed to mutate, and the
	// result is written only if no concurrent write landed in between.
	// Returning ErrNoChange from mutate aborts without a write or a feed
	// notification. The new image is returned on success.
	Mutate(ctx context.Context, userID string, mutate func(*models.SessionRecord) error) (*models.SessionRecord, error)
}

// AuthStore is the short-lived bridge record, keyed by userId. Created once,
// read once, never updated.
type AuthStore interface {
	Get(ctx context.Context, userID string) (*models.AuthRecord, error)
	Put(ctx context.Context, record models.AuthRecord) error
}

// SetNotified flips the advisory one-shot flag unconditionally.
func SetNotified(ctx context.Context, s SessionStore, userID string) error {
	_, err := s.Mutate(ctx, userID, func(r *models.SessionRecord) error {
		r.Notified = true
		return nil
	})
	return err
}

// ClaimNotified flips the notified flag only if unset, reporting whether
// this caller won the claim. Used in at-most-once mode to close the
// check-then-set race.
func ClaimNotified(ctx context.Context, s SessionStore, userID string) (bool, error) {
	return claimFlag(ctx, s, userID, func(r *models.SessionRecord) *bool { return &r.Notified })
}

// SetFailureNotified flips the failure-path one-shot flag unconditionally.
func SetFailureNotified(ctx context.Context, s SessionStore, userID string) error {
	_, err := s.Mutate(ctx, userID, func(r *models.SessionRecord) error {
		r.FailureNotified = true
		return nil
	})
	return err
}

// ClaimFailureNotified is ClaimNotified for the failure path.
func ClaimFailureNotified(ctx context.Context, s SessionStore, userID string) (bool, error) {
	return claimFlag(ctx, s, userID, func(r *models.SessionRecord) *bool { return &r.FailureNotified })
}

func claimFlag(ctx context.Context, s SessionStore, userID string, flag func(*models.SessionRecord) *bool) (bool, error) {
	_, err := s.Mutate(ctx, userID, func(r *models.SessionRecord) error {
		f := flag(r)
		if *f {
			return ErrNoChange
		}
		*f = true
		return nil
	})
	if errors.Is(err, ErrNoChange) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
