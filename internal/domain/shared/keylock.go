package shared

import (
	"context"
	"errors"
	"time"
)

// ErrLockNotHeld is returned when releasing a lock with a token that no longer owns it
var ErrLockNotHeld = errors.New("lock not held")

// KeyLock is a non-blocking mutual exclusion lock over string keys. Locks expire
// after their TTL so a crashed holder cannot block a key forever.
type KeyLock interface {
	// TryLock acquires key for ttl. It returns the ownership token and true when
	// acquired, or false when the key is held by someone else.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)

	// Unlock releases key if token still owns it
	Unlock(ctx context.Context, key, token string) error

	// Close releases resources held by the lock implementation
	Close() error
}
