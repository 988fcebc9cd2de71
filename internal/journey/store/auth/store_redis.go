package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"ipvreturn/internal/journey/models"
	"ipvreturn/internal/journey/store"
	dErrors "ipvreturn/pkg/domain-errors"
)

const authKeyPrefix = "auth:"

// RedisStore persists auth records as JSON with the short TTL on the key.
// Records are write-once so no concurrency control is needed.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, userID string) (*models.AuthRecord, error) {
	raw, err := s.client.Get(ctx, authKeyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeRetryable, "auth store read failed")
	}
	var record models.AuthRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "auth record is corrupt")
	}
	return &record, nil
}

func (s *RedisStore) Put(ctx context.Context, record models.AuthRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "auth record marshal failed")
	}
	var ttl time.Duration
	if record.ExpiresOn > 0 {
		ttl = time.Until(time.Unix(record.ExpiresOn, 0))
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := s.client.Set(ctx, authKeyPrefix+record.UserID, data, ttl).Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeRetryable, "auth store write failed")
	}
	return nil
}
