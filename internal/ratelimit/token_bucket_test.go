package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"htmlpdf-service/internal/apperr"
)

func newBucket(t *testing.T, capacity int, refill float64) (*TokenBucket, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewTokenBucket(client, capacity, refill, time.Minute)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestTokenBucket_Capacity(t *testing.T) {
	ctx := context.Background()
	b, _ := newBucket(t, 2, 1)

	d, err := b.Allow(ctx, "caller")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1.0, d.Remaining)

	d, err = b.Allow(ctx, "caller")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = b.Allow(ctx, "caller")
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	d, err = b.Allow(ctx, "someone-else")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "buckets are per caller")
}

func TestTokenBucket_Refill(t *testing.T) {
	ctx := context.Background()
	b, now := newBucket(t, 1, 2)

	d, err := b.Allow(ctx, "caller")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	d, err = b.Allow(ctx, "caller")
	require.NoError(t, err)
	require.False(t, d.Allowed)

	*now = now.Add(250 * time.Millisecond)
	d, err = b.Allow(ctx, "caller")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.InDelta(t, 0.5, d.Remaining, 0.001)

	*now = now.Add(250 * time.Millisecond)
	d, err = b.Allow(ctx, "caller")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestTokenBucket_RedisDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()

	_, err := NewTokenBucket(client, 1, 1, time.Minute).Allow(context.Background(), "caller")
	assert.True(t, apperr.Is(err, apperr.KindInfrastructure))
}
