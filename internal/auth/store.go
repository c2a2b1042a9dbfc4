package auth

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	revokedKeyPrefix  = "auth:revoked:"
	attemptsKeyPrefix = "auth:login_attempts:"
)

// RevocationStore remembers logged-out sessions until they would have expired.
type RevocationStore interface {
	Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// AttemptStore counts failed logins per username inside a sliding window.
type AttemptStore interface {
	Failures(ctx context.Context, username string) (int, time.Duration, error)
	RecordFailure(ctx context.Context, username string, window time.Duration) (int, error)
	Reset(ctx context.Context, username string) error
}

// RedisStore implements RevocationStore and AttemptStore on top of go-redis.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore wraps client.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, revokedKeyPrefix+sessionID, 1, ttl).Err()
}

func (s *RedisStore) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedKeyPrefix+sessionID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Failures returns the current failure count and the time left in its window.
func (s *RedisStore) Failures(ctx context.Context, username string) (int, time.Duration, error) {
	key := attemptsKeyPrefix + username
	count, err := s.client.Get(ctx, key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return count, 0, err
	}
	return count, ttl, nil
}

// RecordFailure increments the counter and starts the window on the first failure.
func (s *RedisStore) RecordFailure(ctx context.Context, username string, window time.Duration) (int, error) {
	key := attemptsKeyPrefix + username
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, window).Err(); err != nil {
			return int(count), err
		}
	}
	return int(count), nil
}

func (s *RedisStore) Reset(ctx context.Context, username string) error {
	return s.client.Del(ctx, attemptsKeyPrefix+username).Err()
}
