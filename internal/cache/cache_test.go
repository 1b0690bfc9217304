package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type cachedEvent struct {
	ID    int64  `json:"event_id"`
	Title string `json:"title"`
}

func TestEventKey(t *testing.T) {
	assert.Equal(t, "event:42", EventKey(42))
}

func TestNop_AlwaysMisses(t *testing.T) {
	ctx := context.Background()
	var c Cache = Nop{}

	require.NoError(t, c.Set(ctx, "k", cachedEvent{ID: 1}, time.Minute))

	var got cachedEvent
	found, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, c.Delete(ctx, "k"))
	assert.NoError(t, c.Close())
}

// =========================================================================
// REDIS (needs Docker)
// =========================================================================

func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in -short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminating redis container: %v", err)
		}
	})

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	c, err := NewRedis(ctx, RedisConfig{Addr: addr, Prefix: "test:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRedis_SetGetDelete(t *testing.T) {
	c := newTestRedis(t)
	ctx := context.Background()

	var got cachedEvent
	found, err := c.Get(ctx, EventKey(7), &got)
	require.NoError(t, err)
	assert.False(t, found, "empty cache should miss")

	require.NoError(t, c.Set(ctx, EventKey(7), cachedEvent{ID: 7, Title: "Book Club"}, time.Minute))

	found, err = c.Get(ctx, EventKey(7), &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, cachedEvent{ID: 7, Title: "Book Club"}, got)

	require.NoError(t, c.Delete(ctx, EventKey(7), EventKey(8)))
	found, err = c.Get(ctx, EventKey(7), &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedis_TTLExpires(t *testing.T) {
	c := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", cachedEvent{ID: 1}, 100*time.Millisecond))
	time.Sleep(300 * time.Millisecond)

	var got cachedEvent
	found, err := c.Get(ctx, "short", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNewRedis_UnreachableAddress(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedis(ctx, RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
