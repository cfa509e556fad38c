package itsm

import (
	"time"

	"github.com/google/uuid"
)

// SyncEventStatus is the operational status of a sync event
type SyncEventStatus string

const (
	SyncEventStatusSuccess  SyncEventStatus = "success"
	SyncEventStatusFailure  SyncEventStatus = "failure"
	SyncEventStatusPending  SyncEventStatus = "pending"
	SyncEventStatusRetrying SyncEventStatus = "retrying"
)

// IsValid returns true if the status is known
func (s SyncEventStatus) IsValid() bool {
	switch s {
	case SyncEventStatusSuccess, SyncEventStatusFailure, SyncEventStatusPending, SyncEventStatusRetrying:
		return true
	}
	return false
}

// Sync event types
const (
	EventTypeTicketCreated = "ticket_created"
	EventTypeTicketUpdated = "ticket_updated"
	EventTypeCommentAdded  = "comment_added"
	EventTypeSyncResponse  = "sync_response"
)

// EventTypeForAction maps an outbound action to its event type
func EventTypeForAction(action SyncAction) string {
	switch action {
	case SyncActionCreate:
		return EventTypeTicketCreated
	case SyncActionComment:
		return EventTypeCommentAdded
	case SyncActionSyncResponse:
		return EventTypeSyncResponse
	default:
		return EventTypeTicketUpdated
	}
}

// SyncEvent is the operational view of sync activity. Identity fields are
// immutable; only RetryCount changes after creation.
type SyncEvent struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Platform       Platform
	EventType      string
	Status         SyncEventStatus
	TicketID       string
	ExternalID     string
	ProductGroup   string
	RetryCount     int
	QueueItemID    *uuid.UUID
	Message        string
	CreatedAt      time.Time
}

// NewSyncEvent creates a sync event
func NewSyncEvent(orgID uuid.UUID, platform Platform, eventType string, status SyncEventStatus) *SyncEvent {
	return &SyncEvent{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Platform:       platform,
		EventType:      eventType,
		Status:         status,
		CreatedAt:      time.Now(),
	}
}

// NewQueueSyncEvent creates a sync event describing a queue item
func NewQueueSyncEvent(item *SyncQueueItem, status SyncEventStatus, message string) *SyncEvent {
	e := NewSyncEvent(item.OrganizationID, item.Platform, EventTypeForAction(item.Action), status)
	id := item.ID
	e.QueueItemID = &id
	e.TicketID = item.TicketID
	e.ExternalID = item.ExternalID
	e.ProductGroup = item.ProductGroup
	e.RetryCount = item.Attempts
	e.Message = message
	return e
}

// IncrementRetryCount bumps the mutable retry counter
func (e *SyncEvent) IncrementRetryCount() {
	e.RetryCount++
}
