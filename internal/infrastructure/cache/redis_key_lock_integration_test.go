//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/reddomeuk/redscan-application-sub002/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newRedisTestClient(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisKeyLock(t *testing.T) {
	client := newRedisTestClient(t)
	lock := NewRedisKeyLock(client, "test:lock:")
	ctx := context.Background()

	token, ok, err := lock.TryLock(ctx, "jira:T1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = lock.TryLock(ctx, "jira:T1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ttl, err := client.PTTL(ctx, "test:lock:jira:T1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	assert.ErrorIs(t, lock.Unlock(ctx, "jira:T1", "other"), shared.ErrLockNotHeld)
	require.NoError(t, lock.Unlock(ctx, "jira:T1", token))

	_, ok, err = lock.TryLock(ctx, "jira:T1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
