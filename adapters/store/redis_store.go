package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/layer-3/agent/core"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a replay guard shared by every instance talking to the same Redis.
// Keys expire after the retention period, so no sweep is needed.
type RedisStore struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewRedisStore creates a new Redis replay guard
func NewRedisStore(client redis.UniversalClient, retention time.Duration) *RedisStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisStore{
		client:    client,
		prefix:    "agent:nonce:",
		retention: retention,
	}
}

// Seen checks whether the nonce key exists
func (s *RedisStore) Seen(ctx context.Context, nonce string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+nonce).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check nonce: %w", err)
	}
	return n > 0, nil
}

// Record stores the nonce if it is not already present
func (s *RedisStore) Record(ctx context.Context, nonce string, now time.Time) error {
	if err := s.client.SetNX(ctx, s.prefix+nonce, strconv.FormatInt(now.UnixMilli(), 10), s.retention).Err(); err != nil {
		return fmt.Errorf("failed to record nonce: %w", err)
	}
	return nil
}

// Claim uses SETNX so concurrent claims across instances have exactly one winner
func (s *RedisStore) Claim(ctx context.Context, nonce string, now time.Time) error {
	ok, err := s.client.SetNX(ctx, s.prefix+nonce, strconv.FormatInt(now.UnixMilli(), 10), s.retention).Result()
	if err != nil {
		return fmt.Errorf("failed to claim nonce: %w", err)
	}
	if !ok {
		return core.ErrNonceReused
	}
	return nil
}
