package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

const defaultLockKeyPrefix = "lock:"

// unlockScript deletes the key only when it still holds the caller's token
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisKeyLock implements shared.KeyLock with SET NX PX, so every engine
// instance sharing the Redis server observes the same locks
type RedisKeyLock struct {
	client     *redis.Client
	keyPrefix  string
	ownsClient bool
}

// NewRedisKeyLock creates a lock over a shared client. The caller keeps
// ownership of the client.
func NewRedisKeyLock(client *redis.Client, keyPrefix string) *RedisKeyLock {
	if keyPrefix == "" {
		keyPrefix = defaultLockKeyPrefix
	}
	return &RedisKeyLock{client: client, keyPrefix: keyPrefix}
}

// TryLock sets the key with a random token if it does not exist
func (l *RedisKeyLock) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.keyPrefix+key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Unlock runs the compare-and-delete script
func (l *RedisKeyLock) Unlock(ctx context.Context, key, token string) error {
	deleted, err := unlockScript.Run(ctx, l.client, []string{l.keyPrefix + key}, token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	if deleted == 0 {
		return shared.ErrLockNotHeld
	}
	return nil
}

// Close closes the client only if the lock created it
func (l *RedisKeyLock) Close() error {
	if l.ownsClient {
		return l.client.Close()
	}
	return nil
}

var _ shared.KeyLock = (*RedisKeyLock)(nil)
