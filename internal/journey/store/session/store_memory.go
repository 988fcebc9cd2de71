package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"ipvreturn/internal/journey/feed"
	"ipvreturn/internal/journey/models"
	"ipvreturn/internal/journey/store"
)

// InMemoryStore keeps session records in a map. Expiry is enforced lazily on
// read, matching the physical sweep semantics of the Redis variant.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.SessionRecord

	feed   feed.Publisher
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an InMemoryStore.
type Option func(*InMemoryStore)

// WithFeed attaches a change feed publisher.
func WithFeed(f feed.Publisher) Option {
	return func(s *InMemoryStore) { s.feed = f }
}

// WithLogger sets the logger for feed publish failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *InMemoryStore) { s.logger = logger }
}

// WithClock overrides the expiry clock.
func WithClock(now func() time.Time) Option {
	return func(s *InMemoryStore) { s.now = now }
}

func NewInMemory(opts ...Option) *InMemoryStore {
	s := &InMemoryStore{
		records: make(map[string]*models.SessionRecord),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryStore) Get(_ context.Context, userID string) (*models.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[userID]
	if !ok || record.Expired(s.now()) {
		return nil, store.ErrNotFound
	}
	copied := cloneRecord(record)
	return &copied, nil
}

func (s *InMemoryStore) Mutate(ctx context.Context, userID string, mutate func(*models.SessionRecord) error) (*models.SessionRecord, error) {
	s.mu.Lock()

	current, exists := s.records[userID]
	if exists && current.Expired(s.now()) {
		delete(s.records, userID)
		exists = false
	}

	var working models.SessionRecord
	if exists {
		working = cloneRecord(current)
	} else {
		working = models.SessionRecord{UserID: userID}
	}

	if err := mutate(&working); err != nil {
		s.mu.Unlock()
		if errors.Is(err, store.ErrNoChange) {
			return &working, store.ErrNoChange
		}
		return nil, err
	}

	working.Version++
	stored := cloneRecord(&working)
	s.records[userID] = &stored
	s.mu.Unlock()

	s.publishChange(ctx, exists, working)
	return &working, nil
}

func (s *InMemoryStore) publishChange(ctx context.Context, existed bool, image models.SessionRecord) {
	if s.feed == nil {
		return
	}
	kind := feed.KindModify
	if !existed {
		kind = feed.KindInsert
	}
	change := feed.Change{Kind: kind, UserID: image.UserID, NewImage: image}
	if err := s.feed.Publish(ctx, change); err != nil {
		feedPublishFailures.Inc()
		s.logger.Error("session change feed publish failed",
			"user_id", image.UserID,
			"kind", kind,
			"error", err,
		)
	}
}

func cloneRecord(r *models.SessionRecord) models.SessionRecord {
	copied := *r
	if r.NameParts != nil {
		copied.NameParts = append([]models.NamePart(nil), r.NameParts...)
	}
	if r.PostOfficeInfo != nil {
		info := *r.PostOfficeInfo
		copied.PostOfficeInfo = &info
	}
	if r.PostOfficeVisit != nil {
		visit := *r.PostOfficeVisit
		copied.PostOfficeVisit = &visit
	}
	return copied
}
