// Package shared holds the contracts the sync engine's packages agree on:
// domain events with their bus, and keyed locks.
package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DomainEvent is a fact recorded by one organization's sync engine
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	// AggregateID is the entity the event is about
	AggregateID() uuid.UUID
	OrganizationID() uuid.UUID
}

// BaseDomainEvent implements DomainEvent for embedding in concrete events
type BaseDomainEvent struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	AggID     uuid.UUID `json:"aggregate_id"`
	OrgID     uuid.UUID `json:"organization_id"`
}

// NewBaseDomainEvent stamps a fresh ID and the current time
func NewBaseDomainEvent(eventType string, aggID, orgID uuid.UUID) BaseDomainEvent {
	return BaseDomainEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		AggID:     aggID,
		OrgID:     orgID,
	}
}

func (e *BaseDomainEvent) EventID() uuid.UUID        { return e.ID }
func (e *BaseDomainEvent) EventType() string         { return e.Type }
func (e *BaseDomainEvent) OccurredAt() time.Time     { return e.Timestamp }
func (e *BaseDomainEvent) AggregateID() uuid.UUID    { return e.AggID }
func (e *BaseDomainEvent) OrganizationID() uuid.UUID { return e.OrgID }

// EventHandler consumes events from a bus
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes lists the types the handler wants; empty means all
	EventTypes() []string
}

// EventPublisher is the write side of a bus
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventSubscriber is the registration side of a bus. Subscribe without
// explicit types falls back to the handler's EventTypes.
type EventSubscriber interface {
	Subscribe(handler EventHandler, eventTypes ...string)
	Unsubscribe(handler EventHandler)
}

// EventBus is a startable publisher and subscriber
type EventBus interface {
	EventPublisher
	EventSubscriber
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
