package event

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/shared"
	"go.uber.org/zap"
)

const defaultSubscriberBuffer = 64

// StreamHub fans sync events out to live stream subscribers of one organization.
// Slow subscribers lose messages instead of blocking the publisher.
type StreamHub struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]map[*subscription]struct{}
	buffer      int
	logger      *zap.Logger
}

type subscription struct {
	ch   chan *itsm.SyncEventRecorded
	once sync.Once
}

// NewStreamHub creates an empty hub
func NewStreamHub(logger *zap.Logger) *StreamHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHub{
		subscribers: make(map[uuid.UUID]map[*subscription]struct{}),
		buffer:      defaultSubscriberBuffer,
		logger:      logger,
	}
}

// Subscribe registers a subscriber for an organization. The returned cancel
// function removes it and closes the channel.
func (h *StreamHub) Subscribe(orgID uuid.UUID) (<-chan *itsm.SyncEventRecorded, func()) {
	sub := &subscription{ch: make(chan *itsm.SyncEventRecorded, h.buffer)}

	h.mu.Lock()
	if h.subscribers[orgID] == nil {
		h.subscribers[orgID] = make(map[*subscription]struct{})
	}
	h.subscribers[orgID][sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subscribers[orgID], sub)
		if len(h.subscribers[orgID]) == 0 {
			delete(h.subscribers, orgID)
		}
		h.mu.Unlock()
		sub.once.Do(func() { close(sub.ch) })
	}
	return sub.ch, cancel
}

// Broadcast delivers an event to every subscriber of its organization
func (h *StreamHub) Broadcast(evt *itsm.SyncEventRecorded) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers[evt.OrganizationID()] {
		select {
		case sub.ch <- evt:
		default:
			h.logger.Warn("stream subscriber too slow, dropping event",
				zap.String("organization_id", evt.OrganizationID().String()),
				zap.String("sync_event_id", evt.SyncEventID.String()),
			)
		}
	}
}

// SubscriberCount returns the number of live subscribers of an organization
func (h *StreamHub) SubscriberCount(orgID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[orgID])
}

// Handle lets the hub subscribe directly to the event bus when no Redis relay
// is configured
func (h *StreamHub) Handle(_ context.Context, event shared.DomainEvent) error {
	if evt, ok := event.(*itsm.SyncEventRecorded); ok {
		h.Broadcast(evt)
	}
	return nil
}

// EventTypes returns the event types the hub consumes
func (h *StreamHub) EventTypes() []string {
	return []string{itsm.EventTypeSyncEventRecorded}
}

var _ shared.EventHandler = (*StreamHub)(nil)
