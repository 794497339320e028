//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/dgellow/checkin-front/internal/browserauth"
)

func newRedisContainer(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "failed to start redis container")

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	return url
}

func TestRedisStorage(t *testing.T) {
	url := newRedisContainer(t)
	ctx := context.Background()

	store, err := NewRedisStorage(ctx, RedisOptions{URL: url, KeyPrefix: "test:", PoolSize: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	testStorageContract(t, store)

	t.Run("keys are namespaced and expire natively", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, newTestSession("ttl", 2*time.Second)))

		opts, err := redis.ParseURL(url)
		require.NoError(t, err)
		raw := redis.NewClient(opts)
		defer raw.Close()

		ttl, err := raw.TTL(ctx, "test:session:ttl").Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))
		assert.LessOrEqual(t, ttl, 2*time.Second)

		require.NoError(t, store.PutPending(ctx, browserauth.PendingAuth{Nonce: "ns"}, time.Minute))
		exists, err := raw.Exists(ctx, "test:state:ns").Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), exists)
	})

	t.Run("nonce collision is rejected", func(t *testing.T) {
		pending := browserauth.PendingAuth{Nonce: "dup"}
		require.NoError(t, store.PutPending(ctx, pending, time.Minute))
		assert.Error(t, store.PutPending(ctx, pending, time.Minute))
	})

	t.Run("expired session cannot be written", func(t *testing.T) {
		assert.Error(t, store.Put(ctx, newTestSession("dead", -time.Second)))
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, store.Ping(ctx))
	})
}

func TestRedisStorage_BadURL(t *testing.T) {
	_, err := NewRedisStorage(context.Background(), RedisOptions{URL: "not-a-url"})
	assert.Error(t, err)
}
