package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/agent/core"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(redisURL)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}

func TestRedisStore_Claim(t *testing.T) {
	ctx := context.Background()
	s := NewRedisStore(newTestRedis(t), time.Minute)
	nonce := uuid.NewString()
	now := time.Now()

	require.NoError(t, s.Claim(ctx, nonce, now))
	assert.ErrorIs(t, s.Claim(ctx, nonce, now), core.ErrNonceReused)

	seen, err := s.Seen(ctx, nonce)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestRedisStore_RecordThenSeen(t *testing.T) {
	ctx := context.Background()
	s := NewRedisStore(newTestRedis(t), time.Minute)
	nonce := uuid.NewString()

	seen, err := s.Seen(ctx, nonce)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, s.Record(ctx, nonce, time.Now()))
	seen, err = s.Seen(ctx, nonce)
	require.NoError(t, err)
	assert.True(t, seen)
}
