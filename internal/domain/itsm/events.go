package itsm

import (
	"time"

	"github.com/google/uuid"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/shared"
)

// EventTypeSyncEventRecorded is published for every persisted sync event
const EventTypeSyncEventRecorded = "itsm.sync_event.recorded"

// SyncEventRecorded carries a snapshot of a sync event to stream subscribers
type SyncEventRecorded struct {
	shared.BaseDomainEvent
	SyncEventID  uuid.UUID       `json:"sync_event_id"`
	Platform     Platform        `json:"platform"`
	SyncType     string          `json:"event_type"`
	Status       SyncEventStatus `json:"status"`
	TicketID     string          `json:"ticket_id,omitempty"`
	ExternalID   string          `json:"external_id,omitempty"`
	ProductGroup string          `json:"product_group,omitempty"`
	RetryCount   int             `json:"retry_count"`
	QueueItemID  *uuid.UUID      `json:"queue_item_id,omitempty"`
	Message      string          `json:"message,omitempty"`
	RecordedAt   time.Time       `json:"recorded_at"`
}

// NewSyncEventRecorded snapshots a sync event into a domain event
func NewSyncEventRecorded(e *SyncEvent) *SyncEventRecorded {
	return &SyncEventRecorded{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeSyncEventRecorded, e.ID, e.OrganizationID),
		SyncEventID:     e.ID,
		Platform:        e.Platform,
		SyncType:        e.EventType,
		Status:          e.Status,
		TicketID:        e.TicketID,
		ExternalID:      e.ExternalID,
		ProductGroup:    e.ProductGroup,
		RetryCount:      e.RetryCount,
		QueueItemID:     e.QueueItemID,
		Message:         e.Message,
		RecordedAt:      e.CreatedAt,
	}
}
