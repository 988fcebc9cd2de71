package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"ipvreturn/internal/journey/feed"
	"ipvreturn/internal/journey/models"
	"ipvreturn/internal/journey/store"
	dErrors "ipvreturn/pkg/domain-errors"
)

const sessionKeyPrefix = "session:"

// watchRetries bounds the WATCH conflict retry loop.
const watchRetries = 5

// RedisStore persists session records as JSON values with the row expiry
// mapped onto the key TTL. Mutations run under WATCH so concurrent writers
// for the same userId cannot lose updates.
type RedisStore struct {
	client *redis.Client
	feed   feed.Publisher
	logger *slog.Logger
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisFeed attaches a change feed publisher.
func WithRedisFeed(f feed.Publisher) RedisOption {
	return func(s *RedisStore) { s.feed = f }
}

// WithRedisLogger sets the logger for feed publish failures.
func WithRedisLogger(logger *slog.Logger) RedisOption {
	return func(s *RedisStore) { s.logger = logger }
}

func NewRedis(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Get(ctx context.Context, userID string) (*models.SessionRecord, error) {
	raw, err := s.client.Get(ctx, sessionKeyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRetryable, "session store read failed")
	}
	var record models.SessionRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "session record is corrupt")
	}
	return &record, nil
}

func (s *RedisStore) Mutate(ctx context.Context, userID string, mutate func(*models.SessionRecord) error) (*models.SessionRecord, error) {
	key := sessionKeyPrefix + userID

	var result models.SessionRecord
	var existed bool

	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		existed = !errors.Is(err, redis.Nil)
		if err != nil && existed {
			return err
		}

		working := models.SessionRecord{UserID: userID}
		if existed {
			if err := json.Unmarshal(raw, &working); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "session record is corrupt")
			}
		}

		if err := mutate(&working); err != nil {
			result = working
			return err
		}
		working.Version++

		data, err := json.Marshal(&working)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "session record marshal failed")
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if working.ExpiresOn > 0 {
				pipe.ExpireAt(ctx, key, time.Unix(working.ExpiresOn, 0))
			}
			return nil
		})
		if err != nil {
			return err
		}
		result = working
		return nil
	}

	for attempt := 0; attempt < watchRetries; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		switch {
		case err == nil:
			s.publishChange(ctx, existed, result)
			return &result, nil
		case errors.Is(err, redis.TxFailedErr):
			watchConflictRetries.Inc()
			continue
		case errors.Is(err, store.ErrNoChange):
			return &result, store.ErrNoChange
		case dErrors.HasCode(err, dErrors.CodeInternal):
			return nil, err
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeRetryable, "session store write failed")
		}
	}
	return nil, dErrors.New(dErrors.CodeRetryable, "session write contention exhausted retries")
}

func (s *RedisStore) publishChange(ctx context.Context, existed bool, image models.SessionRecord) {
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
