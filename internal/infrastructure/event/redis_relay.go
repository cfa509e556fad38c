package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultSyncEventChannel is the Redis channel carrying recorded sync events
	DefaultSyncEventChannel = "itsm:sync-events"

	defaultCloseTimeout = 5 * time.Second
)

// ErrRelayRunning is returned when Subscribe is called twice on one relay
var ErrRelayRunning = errors.New("event: relay subscription already running")

// RedisRelay forwards recorded sync events over Redis Pub/Sub so that every
// server instance can serve them on its event stream
type RedisRelay struct {
	client    *redis.Client
	channel   string
	logger    *zap.Logger
	cancelFn  context.CancelFunc
	doneCh    chan struct{}
	doneOnce  sync.Once
	mu        sync.Mutex
	isRunning bool
}

// RedisRelayOption is a functional option for configuring the relay
type RedisRelayOption func(*RedisRelay)

// WithRelayChannel sets the Pub/Sub channel name
func WithRelayChannel(channel string) RedisRelayOption {
	return func(r *RedisRelay) {
		r.channel = channel
	}
}

// WithRelayLogger sets the logger for the relay
func WithRelayLogger(logger *zap.Logger) RedisRelayOption {
	return func(r *RedisRelay) {
		r.logger = logger
	}
}

// NewRedisRelay creates a relay over a shared client. The caller keeps ownership
// of the client.
func NewRedisRelay(client *redis.Client, opts ...RedisRelayOption) *RedisRelay {
	r := &RedisRelay{
		client:  client,
		channel: DefaultSyncEventChannel,
		logger:  zap.NewNop(),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle publishes a recorded sync event to the channel
func (r *RedisRelay) Handle(ctx context.Context, event shared.DomainEvent) error {
	evt, ok := event.(*itsm.SyncEventRecorded)
	if !ok {
		return nil
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal sync event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish sync event: %w", err)
	}

	r.logger.Debug("relayed sync event",
		zap.String("channel", r.channel),
		zap.String("sync_event_id", evt.SyncEventID.String()),
	)
	return nil
}

// EventTypes returns the event types the relay forwards
func (r *RedisRelay) EventTypes() []string {
	return []string{itsm.EventTypeSyncEventRecorded}
}

// Subscribe listens on the channel and invokes callback for every event. It
// blocks until ctx is cancelled or Close is called.
func (r *RedisRelay) Subscribe(ctx context.Context, callback func(*itsm.SyncEventRecorded)) error {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return ErrRelayRunning
	}
	subCtx, cancel := context.WithCancel(ctx)
	r.isRunning = true
	r.cancelFn = cancel
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.isRunning = false
		r.mu.Unlock()
		r.doneOnce.Do(func() { close(r.doneCh) })
	}()

	pubsub := r.client.Subscribe(subCtx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}
	r.logger.Info("subscribed to sync event channel", zap.String("channel", r.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			r.logger.Info("sync event subscription stopped")
			return subCtx.Err()
		case msg, ok := <-ch:
			if !ok {
				r.logger.Warn("sync event channel closed")
				return nil
			}
			evt, err := decodeRecorded(msg.Payload)
			if err != nil {
				r.logger.Error("failed to decode sync event", zap.String("payload", msg.Payload), zap.Error(err))
				continue
			}
			r.invoke(callback, evt)
		}
	}
}

func (r *RedisRelay) invoke(callback func(*itsm.SyncEventRecorded), evt *itsm.SyncEventRecorded) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("panic in sync event callback", zap.Any("panic", p))
		}
	}()
	callback(evt)
}

func decodeRecorded(payload string) (*itsm.SyncEventRecorded, error) {
	var evt itsm.SyncEventRecorded
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}

// Close stops a running subscription
func (r *RedisRelay) Close() error {
	r.mu.Lock()
	cancelFn := r.cancelFn
	r.mu.Unlock()

	if cancelFn == nil {
		return nil
	}
	cancelFn()
	select {
	case <-r.doneCh:
	case <-time.After(defaultCloseTimeout):
		r.logger.Warn("timeout waiting for sync event subscription to stop")
	}
	return nil
}

var _ shared.EventHandler = (*RedisRelay)(nil)
