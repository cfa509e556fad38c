package event

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStreamHub_BroadcastIsScopedToOrganization(t *testing.T) {
	hub := NewStreamHub(zap.NewNop())
	orgA, orgB := uuid.New(), uuid.New()

	chA, cancelA := hub.Subscribe(orgA)
	defer cancelA()
	chB, cancelB := hub.Subscribe(orgB)
	defer cancelB()

	evt := newRecordedEvent(orgA, itsm.SyncEventStatusSuccess)
	hub.Broadcast(evt)

	select {
	case got := <-chA:
		assert.Equal(t, evt.SyncEventID, got.SyncEventID)
	default:
		t.Fatal("subscriber of the event's organization received nothing")
	}
	assert.Len(t, chB, 0)
}

func TestStreamHub_Cancel(t *testing.T) {
	hub := NewStreamHub(nil)
	orgID := uuid.New()

	ch, cancel := hub.Subscribe(orgID)
	assert.Equal(t, 1, hub.SubscriberCount(orgID))

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, hub.SubscriberCount(orgID))
}

func TestStreamHub_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewStreamHub(zap.NewNop())
	hub.buffer = 1
	orgID := uuid.New()

	ch, cancel := hub.Subscribe(orgID)
	defer cancel()

	hub.Broadcast(newRecordedEvent(orgID, itsm.SyncEventStatusSuccess))
	hub.Broadcast(newRecordedEvent(orgID, itsm.SyncEventStatusFailure))

	assert.Len(t, ch, 1)
}

func TestStreamHub_ConsumesBusEvents(t *testing.T) {
	hub := NewStreamHub(zap.NewNop())
	bus := NewInMemoryEventBus(zap.NewNop())
	bus.Subscribe(hub)

	orgID := uuid.New()
	ch, cancel := hub.Subscribe(orgID)
	defer cancel()

	require.NoError(t, bus.Publish(context.Background(), newRecordedEvent(orgID, itsm.SyncEventStatusRetrying)))

	got := <-ch
	assert.Equal(t, itsm.SyncEventStatusRetrying, got.Status)
	assert.Equal(t, "T-1", got.TicketID)
}
