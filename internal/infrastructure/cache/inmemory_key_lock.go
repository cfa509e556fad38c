package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/shared"
)

type lockEntry struct {
	token     string
	expiresAt time.Time
}

// InMemoryKeyLock implements shared.KeyLock with a map guarded by a mutex.
// It only serializes workers inside one process.
type InMemoryKeyLock struct {
	mu        sync.Mutex
	locks     map[string]lockEntry
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryKeyLock creates an in-memory key lock and starts the sweeper that
// drops expired entries
func NewInMemoryKeyLock() *InMemoryKeyLock {
	l := &InMemoryKeyLock{
		locks:    make(map[string]lockEntry),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	l.wg.Add(1)
	go l.sweepLoop()

	return l
}

// TryLock acquires key unless a live entry holds it
func (l *InMemoryKeyLock) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, held := l.locks[key]; held && now.Before(e.expiresAt) {
		return "", false, nil
	}

	token := uuid.NewString()
	l.locks[key] = lockEntry{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

// Unlock releases key when token still owns it
func (l *InMemoryKeyLock) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, held := l.locks[key]
	if !held || e.token != token {
		return shared.ErrLockNotHeld
	}
	delete(l.locks, key)
	return nil
}

// Close stops the sweeper. Safe to call multiple times.
func (l *InMemoryKeyLock) Close() error {
	l.closeOnce.Do(func() {
		close(l.stopChan)
		l.wg.Wait()
	})
	return nil
}

// Size returns the number of held or not yet swept locks
func (l *InMemoryKeyLock) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *InMemoryKeyLock) sweepLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *InMemoryKeyLock) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, e := range l.locks {
		if !now.Before(e.expiresAt) {
			delete(l.locks, key)
		}
	}
}

var _ shared.KeyLock = (*InMemoryKeyLock)(nil)
