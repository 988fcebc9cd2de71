// Package auth stores the short-lived record bridging the authorisation
// request and the session record's creation.
package auth

import (
	"context"
	"sync"
	"time"

	"ipvreturn/internal/journey/models"
	"ipvreturn/internal/journey/store"
)

// InMemoryStore keeps auth records in a map with lazy expiry on read.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.AuthRecord
	now     func() time.Time
}

// Option configures an InMemoryStore.
type Option func(*InMemoryStore)

// WithClock overrides the expiry clock.
func WithClock(now func() time.Time) Option {
	return func(s *InMemoryStore) { s.now = now }
}

func NewInMemory(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{
		records: make(map[string]models.AuthRecord),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Get(_ context.Context, userID string) (*models.AuthRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[userID]
	if !ok || record.Expired(s.now()) {
		return nil, store.ErrNotFound
	}
	return &record, nil
}

func (s *InMemoryStore) Put(_ context.Context, record models.AuthRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.UserID] = record
	return nil
}
