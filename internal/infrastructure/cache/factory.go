package cache

import (
	"fmt"

	"github.com/reddomeuk/redscan-application-sub002/internal/domain/shared"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/config"
	"go.uber.org/zap"
)

// KeyLockFactory creates the delivery key lock based on configuration
type KeyLockFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// KeyLockFactoryOption is a functional option for configuring the factory
type KeyLockFactoryOption func(*KeyLockFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) KeyLockFactoryOption {
	return func(f *KeyLockFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to the
// in-memory lock. Default is true.
func WithInMemoryFallback(allow bool) KeyLockFactoryOption {
	return func(f *KeyLockFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewKeyLockFactory creates a new factory
func NewKeyLockFactory(cfg config.RedisConfig, opts ...KeyLockFactoryOption) *KeyLockFactory {
	f := &KeyLockFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateLock returns a Redis lock when Redis is enabled and reachable, the
// in-memory lock otherwise
func (f *KeyLockFactory) CreateLock() (shared.KeyLock, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("using in-memory delivery lock")
		return NewInMemoryKeyLock(), nil
	}

	client, err := NewRedisClient(f.redisConfig)
	if err == nil {
		f.logger.Info("using Redis delivery lock", zap.String("addr", f.redisConfig.Addr()))
		l := NewRedisKeyLock(client, "")
		l.ownsClient = true
		return l, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for delivery locks but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory delivery lock. "+
		"Deliveries are only serialized within this process.",
		zap.Error(err),
	)
	return NewInMemoryKeyLock(), nil
}
