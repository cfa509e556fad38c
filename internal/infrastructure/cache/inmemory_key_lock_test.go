package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reddomeuk/redscan-application-sub002/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryKeyLock_TryLock(t *testing.T) {
	lock := NewInMemoryKeyLock()
	defer lock.Close()
	ctx := context.Background()

	t.Run("second holder is refused", func(t *testing.T) {
		token, ok, err := lock.TryLock(ctx, "jira:T1", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NotEmpty(t, token)

		_, ok, err = lock.TryLock(ctx, "jira:T1", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("different keys do not contend", func(t *testing.T) {
		_, ok, err := lock.TryLock(ctx, "jira:T2", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("expired lock can be taken over", func(t *testing.T) {
		_, ok, err := lock.TryLock(ctx, "jira:T3", 10*time.Millisecond)
		require.NoError(t, err)
		require.True(t, ok)

		time.Sleep(20 * time.Millisecond)

		_, ok, err = lock.TryLock(ctx, "jira:T3", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestInMemoryKeyLock_Unlock(t *testing.T) {
	lock := NewInMemoryKeyLock()
	defer lock.Close()
	ctx := context.Background()

	token, ok, err := lock.TryLock(ctx, "snow:T1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	assert.ErrorIs(t, lock.Unlock(ctx, "snow:T1", "not-the-owner"), shared.ErrLockNotHeld)
	require.NoError(t, lock.Unlock(ctx, "snow:T1", token))
	assert.ErrorIs(t, lock.Unlock(ctx, "snow:T1", token), shared.ErrLockNotHeld)

	_, ok, err = lock.TryLock(ctx, "snow:T1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "released key is free again")
}

func TestInMemoryKeyLock_StaleTokenCannotReleaseNewHolder(t *testing.T) {
	lock := NewInMemoryKeyLock()
	defer lock.Close()
	ctx := context.Background()

	stale, ok, err := lock.TryLock(ctx, "k", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	time.Sleep(20 * time.Millisecond)

	fresh, ok, err := lock.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	assert.ErrorIs(t, lock.Unlock(ctx, "k", stale), shared.ErrLockNotHeld)
	assert.NoError(t, lock.Unlock(ctx, "k", fresh))
}

func TestInMemoryKeyLock_Concurrent(t *testing.T) {
	lock := NewInMemoryKeyLock()
	defer lock.Close()
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := lock.TryLock(ctx, "hot", time.Minute); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestInMemoryKeyLock_Sweep(t *testing.T) {
	lock := NewInMemoryKeyLock()
	defer lock.Close()

	base := time.Now()
	lock.now = func() time.Time { return base }
	_, _, _ = lock.TryLock(context.Background(), "a", time.Second)
	_, _, _ = lock.TryLock(context.Background(), "b", time.Hour)
	assert.Equal(t, 2, lock.Size())

	lock.now = func() time.Time { return base.Add(time.Minute) }
	lock.sweep()
	assert.Equal(t, 1, lock.Size())
}

func TestInMemoryKeyLock_CloseIsIdempotent(t *testing.T) {
	lock := NewInMemoryKeyLock()
	assert.NoError(t, lock.Close())
	assert.NoError(t, lock.Close())
}
