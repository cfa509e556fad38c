package itsm

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Page defaults for log and queue queries
const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// PageRequest is a 1-based page selection
type PageRequest struct {
	Page     int
	PageSize int
}

// Normalize clamps the page request to sane bounds
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

// Offset returns the row offset of the page
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// ---------------------------------------------------------------------------
// Connection
// ---------------------------------------------------------------------------

// ConnectionRepository persists connections. There is no delete operation:
// connections are never hard-deleted.
type ConnectionRepository interface {
	FindByPlatform(ctx context.Context, orgID uuid.UUID, platform Platform) (*Connection, error)
	FindAll(ctx context.Context, orgID uuid.UUID) ([]*Connection, error)
	Save(ctx context.Context, conn *Connection) error
}

// ---------------------------------------------------------------------------
// Field mappings
// ---------------------------------------------------------------------------

// FieldMappingRepository persists field mappings
type FieldMappingRepository interface {
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*FieldMapping, error)
	FindByPlatform(ctx context.Context, orgID uuid.UUID, platform Platform) ([]*FieldMapping, error)
	Save(ctx context.Context, m *FieldMapping) error
	SaveBatch(ctx context.Context, mappings []*FieldMapping) error
	Delete(ctx context.Context, orgID, id uuid.UUID) error
	DeleteByPlatform(ctx context.Context, orgID uuid.UUID, platform Platform) error
	// ReplacePlatform atomically swaps all mappings of a platform
	ReplacePlatform(ctx context.Context, orgID uuid.UUID, platform Platform, mappings []*FieldMapping) error
}

// ---------------------------------------------------------------------------
// Sync queue
// ---------------------------------------------------------------------------

// QueueFilter selects queue items
type QueueFilter struct {
	OrganizationID uuid.UUID
	Platform       Platform
	Status         QueueStatus
	TicketID       string
	// SortBy and SortOrder are checked against a column whitelist by the repository
	SortBy         string
	SortOrder      string
	PageRequest
}

// SyncQueueRepository persists outbound queue items
type SyncQueueRepository interface {
	Create(ctx context.Context, item *SyncQueueItem) error
	Save(ctx context.Context, item *SyncQueueItem) error
	// SaveIfStatus writes the item only while the stored status still equals
	// expected; false means a concurrent writer moved it first
	SaveIfStatus(ctx context.Context, item *SyncQueueItem, expected QueueStatus) (bool, error)
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*SyncQueueItem, error)
	// FindDue returns pending items whose retry time has elapsed and that are
	// the oldest unfinished item for their (platform, ticket) key, oldest first.
	FindDue(ctx context.Context, now time.Time, limit int) ([]*SyncQueueItem, error)
	// Claim atomically moves an item from pending to processing. It returns
	// false when another worker won the race or the ticket already has an item
	// in flight.
	Claim(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	FindByStatus(ctx context.Context, orgID uuid.UUID, platform Platform, status QueueStatus) ([]*SyncQueueItem, error)
	List(ctx context.Context, filter QueueFilter) ([]*SyncQueueItem, int64, error)
	CountByStatus(ctx context.Context, orgID uuid.UUID) (map[QueueStatus]int64, error)
	// ReleaseStale returns items stuck in processing since before cutoff to
	// pending without counting an attempt
	ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// ---------------------------------------------------------------------------
// Logs
// ---------------------------------------------------------------------------

// AuditLogFilter selects audit entries
type AuditLogFilter struct {
	OrganizationID uuid.UUID
	Platform       Platform
	TraceID        string
	ExternalID     string
	Outcome        AuditOutcome
	Action         string
	From           *time.Time
	To             *time.Time
	PageRequest
}

// AuditLogRepository is append-only: entries are created and queried, never
// updated or deleted.
type AuditLogRepository interface {
	Create(ctx context.Context, entry *AuditLog) error
	Query(ctx context.Context, filter AuditLogFilter) ([]*AuditLog, int64, error)
	ExistsByExternalID(ctx context.Context, orgID uuid.UUID, platform Platform, externalID string) (bool, error)
	// Stream visits entries in a time range oldest first
	Stream(ctx context.Context, filter AuditLogFilter, fn func(*AuditLog) error) error
}

// SyncEventFilter selects sync events
type SyncEventFilter struct {
	OrganizationID uuid.UUID
	Platform       Platform
	Status         SyncEventStatus
	ProductGroup   string
	EventType      string
	ExternalID     string
	From           *time.Time
	To             *time.Time
	PageRequest
}

// SyncEventRepository persists sync events. Only the retry count is mutable.
type SyncEventRepository interface {
	Create(ctx context.Context, event *SyncEvent) error
	IncrementRetryCount(ctx context.Context, id uuid.UUID) error
	Query(ctx context.Context, filter SyncEventFilter) ([]*SyncEvent, int64, error)
	ExistsByExternalID(ctx context.Context, orgID uuid.UUID, platform Platform, externalID string) (bool, error)
	FindLatestByQueueItem(ctx context.Context, queueItemID uuid.UUID) (*SyncEvent, error)
}

// ---------------------------------------------------------------------------
// Ticket state and policies
// ---------------------------------------------------------------------------

// TicketStateRepository persists ticket links and merged field state
type TicketStateRepository interface {
	FindByExternalID(ctx context.Context, orgID uuid.UUID, platform Platform, externalID string) (*TicketState, error)
	FindByTicketID(ctx context.Context, orgID uuid.UUID, platform Platform, ticketID string) (*TicketState, error)
	Save(ctx context.Context, state *TicketState) error
}

// ConflictPolicyRepository persists per-organization conflict policies
type ConflictPolicyRepository interface {
	// Find returns the organization's policies, or the defaults when none are stored
	Find(ctx context.Context, orgID uuid.UUID) (ConflictPolicies, error)
	Save(ctx context.Context, orgID uuid.UUID, policies ConflictPolicies) error
}

// ---------------------------------------------------------------------------
// Unit of work
// ---------------------------------------------------------------------------

// TxRepositories are repositories bound to one transaction
type TxRepositories struct {
	Queue   SyncQueueRepository
	Audit   AuditLogRepository
	Events  SyncEventRepository
	Tickets TicketStateRepository
}

// UnitOfWork runs fn in a single transaction. Returning an error rolls back
// every write made through the provided repositories.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(repos TxRepositories) error) error
}
