package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnerKey(t *testing.T) {
	assert.Equal(t, "device:MCO001:owner", ownerKey("MCO001"))
}

func TestOwnerCache_Unreachable(t *testing.T) {
	// Nothing listens on port 1 so every command fails fast
	c := New(redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	}), time.Minute)
	t.Cleanup(func() { c.Close() })

	_, ok, err := c.GetOwner(context.Background(), "MCO001")
	require.Error(t, err)
	assert.False(t, ok)

	assert.Error(t, c.SetOwner(context.Background(), "MCO001", "a@x.com"))
}

func TestOwnerCache_Redis(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	c := New(redis.NewClient(&redis.Options{Addr: addr}), time.Minute)
	t.Cleanup(func() { c.Close() })

	deviceID := "test-" + uuid.NewString()[:8]

	_, ok, err := c.GetOwner(ctx, deviceID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetOwner(ctx, deviceID, "a@x.com"))

	owner, ok, err := c.GetOwner(ctx, deviceID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a@x.com", owner)

	ttl, err := c.client.TTL(ctx, ownerKey(deviceID)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
