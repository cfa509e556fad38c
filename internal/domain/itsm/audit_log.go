package itsm

import (
	"time"

	"github.com/google/uuid"
)

// AuditOutcome is the result of an attempted state-changing operation
type AuditOutcome string

const (
	AuditOutcomeSuccess AuditOutcome = "success"
	AuditOutcomeFailure AuditOutcome = "failure"
	AuditOutcomeSkipped AuditOutcome = "skipped"
)

// IsValid returns true if the outcome is known
func (o AuditOutcome) IsValid() bool {
	switch o {
	case AuditOutcomeSuccess, AuditOutcomeFailure, AuditOutcomeSkipped:
		return true
	}
	return false
}

// Audit actions
const (
	AuditActionEnqueue             = "enqueue"
	AuditActionCancel              = "cancel"
	AuditActionRetry               = "retry"
	AuditActionInboundCreate       = "inbound_create"
	AuditActionInboundUpdate       = "inbound_update"
	AuditActionStatusTransition    = "status_transition"
	AuditActionExternalIDCollision = "external_id_collision"
	AuditActionConnectionTest      = "connection_test"
	AuditActionConnectionUpdate    = "connection_update"
	AuditActionMappingImport       = "mapping_import"
	AuditActionMappingReset        = "mapping_reset"
)

// OutboundAuditAction names the audit action for an outbound delivery
func OutboundAuditAction(action SyncAction) string {
	return "outbound_" + string(action)
}

// IdempotentSuffix marks details of inbound events collapsed into an update
const IdempotentSuffix = " (idempotent update)"

// AuditLog is an immutable compliance record. Entries are only ever appended.
type AuditLog struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Platform       Platform
	Action         string
	TraceID        string
	ExternalID     string
	TicketID       string
	UserEmail      string
	Outcome        AuditOutcome
	Details        string
	ProductGroup   string
	CreatedAt      time.Time
}

// NewAuditLog creates an audit entry
func NewAuditLog(orgID uuid.UUID, platform Platform, action string, outcome AuditOutcome, details string) *AuditLog {
	return &AuditLog{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Platform:       platform,
		Action:         action,
		Outcome:        outcome,
		Details:        details,
		CreatedAt:      time.Now(),
	}
}

// NewQueueAuditLog creates an audit entry describing a queue item
func NewQueueAuditLog(item *SyncQueueItem, action string, outcome AuditOutcome, details string) *AuditLog {
	a := NewAuditLog(item.OrganizationID, item.Platform, action, outcome, details)
	a.TraceID = item.TraceID
	a.ExternalID = item.ExternalID
	a.TicketID = item.TicketID
	a.ProductGroup = item.ProductGroup
	return a
}

// IsIdempotentUpdate reports whether the entry records a collapsed inbound create
func (a *AuditLog) IsIdempotentUpdate() bool {
	n, m := len(a.Details), len(IdempotentSuffix)
	return n >= m && a.Details[n-m:] == IdempotentSuffix
}
