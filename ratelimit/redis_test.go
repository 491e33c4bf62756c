package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	clock := newFakeClock()
	s := NewRedisStore(client)
	s.now = clock.now
	return mr, s, clock
}

func TestRedisStore_AllowsUpToLimit(t *testing.T) {
	_, s, clock := newTestRedis(t)
	p := testPolicy(3)
	ctx := context.Background()

	for i := 0; i < p.Limit; i++ {
		d, err := s.Hit(ctx, "ratelimit:test:ip:1.1.1.1", p)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, p.Limit-i-1, d.Remaining)
		clock.advance(time.Second)
	}

	d, err := s.Hit(ctx, "ratelimit:test:ip:1.1.1.1", p)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, p.Limit, d.Limit)
	// Oldest hit was 3s ago, so the window frees up in 57s.
	assert.WithinDuration(t, clock.t.Add(57*time.Second), d.ResetAt, 0)
}

func TestRedisStore_WindowSlides(t *testing.T) {
	_, s, clock := newTestRedis(t)
	p := testPolicy(1)
	ctx := context.Background()

	d, err := s.Hit(ctx, "k", p)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = s.Hit(ctx, "k", p)
	require.NoError(t, err)
	require.False(t, d.Allowed)

	clock.advance(p.Window + time.Millisecond)
	d, err = s.Hit(ctx, "k", p)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRedisStore_SetsExpiry(t *testing.T) {
	mr, s, _ := newTestRedis(t)
	_, err := s.Hit(context.Background(), "k", testPolicy(5))
	require.NoError(t, err)

	assert.True(t, mr.Exists("k"))
	assert.Equal(t, time.Minute, mr.TTL("k"))
}

func TestRedisStore_ErrorWhenUnavailable(t *testing.T) {
	mr, s, _ := newTestRedis(t)
	mr.Close()

	_, err := s.Hit(context.Background(), "k", testPolicy(5))
	assert.Error(t, err)
}

func TestNewRedisClientFromURL(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClientFromURL(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	client.Close()

	_, err = NewRedisClientFromURL(context.Background(), "not a url")
	assert.Error(t, err)
}
