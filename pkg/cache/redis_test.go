package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisExpiry(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	r := NewRedis(client, "test")

	require.NoError(t, r.Set(ctx, "schedule:g1", []byte(`[1,2]`), 2*time.Minute))

	v, ok, err := r.Get(ctx, "schedule:g1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte(`[1,2]`), v)
	assert.True(t, mr.Exists("test:cache:schedule:g1"))

	mr.FastForward(2*time.Minute + time.Second)

	_, ok, err = r.Get(ctx, "schedule:g1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisClearOnlyTouchesPrefix(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	r := NewRedis(client, "test")

	for i := 0; i < 450; i++ {
		require.NoError(t, r.Set(ctx, fmt.Sprintf("match:m%d", i), []byte("x"), time.Minute))
	}
	require.NoError(t, mr.Set("unrelated", "keep"))

	require.NoError(t, r.Clear(ctx))

	_, ok, err := r.Get(ctx, "match:m7")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, mr.Exists("unrelated"))
}

func TestRedisDelete(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	r := NewRedis(client, "test")

	require.NoError(t, r.Set(ctx, "event:e1", []byte("x"), time.Minute))
	require.NoError(t, r.Delete(ctx, "event:e1"))

	_, ok, err := r.Get(ctx, "event:e1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisUnavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	r := NewRedis(client, "test")
	mr.Close()

	_, _, err := r.Get(context.Background(), "event:e1")
	assert.Error(t, err)
}
