package itsm

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SyncAction is the outbound operation carried by a queue item
type SyncAction string

const (
	SyncActionCreate       SyncAction = "create"
	SyncActionUpdate       SyncAction = "update"
	SyncActionComment      SyncAction = "comment"
	SyncActionSyncResponse SyncAction = "sync_response"
)

// IsValid returns true if the action is known
func (a SyncAction) IsValid() bool {
	switch a {
	case SyncActionCreate, SyncActionUpdate, SyncActionComment, SyncActionSyncResponse:
		return true
	}
	return false
}

// String returns the string representation
func (a SyncAction) String() string {
	return string(a)
}

// RequiresExternalID reports whether the action targets an existing external ticket
func (a SyncAction) RequiresExternalID() bool {
	return a != SyncActionCreate
}

// QueueStatus is the lifecycle state of a queue item
type QueueStatus string

const (
	QueueStatusPending    QueueStatus = "pending"
	QueueStatusProcessing QueueStatus = "processing"
	QueueStatusCompleted  QueueStatus = "completed"
	QueueStatusFailed     QueueStatus = "failed"
	QueueStatusCancelled  QueueStatus = "cancelled"
)

// IsValid returns true if the status is known
func (s QueueStatus) IsValid() bool {
	switch s {
	case QueueStatusPending, QueueStatusProcessing, QueueStatusCompleted, QueueStatusFailed, QueueStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation
func (s QueueStatus) String() string {
	return string(s)
}

// AllQueueStatuses returns every queue status
func AllQueueStatuses() []QueueStatus {
	return []QueueStatus{
		QueueStatusPending,
		QueueStatusProcessing,
		QueueStatusCompleted,
		QueueStatusFailed,
		QueueStatusCancelled,
	}
}

// DefaultMaxAttempts is used when an item is enqueued without an explicit limit
const DefaultMaxAttempts = 3

// BackoffTable holds the fixed retry delays. It is bounded: attempts past the
// end of the table reuse the last delay.
var BackoffTable = []time.Duration{
	5 * time.Second,
	30 * time.Second,
	300 * time.Second,
}

// Backoff returns the delay before the next attempt after the given number of
// failed attempts.
func Backoff(attempts int) time.Duration {
	idx := attempts - 1
	if idx < 0 {
		idx = 0
	}
	if idx > len(BackoffTable)-1 {
		idx = len(BackoffTable) - 1
	}
	return BackoffTable[idx]
}

// SyncQueueItem is one outbound delivery to an external platform.
//
// Lifecycle:
//
//	pending -> processing -> completed
//	                      -> pending (transient failure, attempts < max_attempts)
//	                      -> failed  (non-retryable or attempts exhausted)
//	pending|failed -> cancelled
//	failed -> pending (operator retry)
type SyncQueueItem struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Platform       Platform
	Action         SyncAction
	TicketID       string
	// ExternalID is empty until the first successful delivery and immutable after
	ExternalID   string
	Payload      Payload
	ProductGroup string
	Status       QueueStatus
	Attempts     int
	MaxAttempts  int
	// NextRetryAt is only set while pending after a failure
	NextRetryAt         *time.Time
	ErrorMessage        string
	ErrorKind           ErrorKind
	TraceID             string
	ProcessingStartedAt *time.Time
	CompletedAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewSyncQueueItem creates a pending queue item
func NewSyncQueueItem(
	orgID uuid.UUID,
	platform Platform,
	action SyncAction,
	ticketID string,
	payload Payload,
	maxAttempts int,
) (*SyncQueueItem, error) {
	if orgID == uuid.Nil {
		return nil, ErrInvalidOrganization
	}
	if !platform.IsValid() {
		return nil, ErrInvalidPlatform
	}
	if !action.IsValid() {
		return nil, ErrInvalidAction
	}
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return nil, ErrMissingTicketID
	}
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if maxAttempts < 0 {
		return nil, ErrInvalidMaxAttempts
	}
	if payload == nil {
		payload = Payload{}
	}

	now := time.Now()
	return &SyncQueueItem{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Platform:       platform,
		Action:         action,
		TicketID:       ticketID,
		Payload:        payload,
		Status:         QueueStatusPending,
		MaxAttempts:    maxAttempts,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// SerializationKey identifies the external ticket this item writes to.
// At most one item per key may be in flight.
func (i *SyncQueueItem) SerializationKey() string {
	return SerializationKey(i.OrganizationID, i.Platform, i.TicketID)
}

// SerializationKey builds the per-ticket delivery key
func SerializationKey(orgID uuid.UUID, platform Platform, ticketID string) string {
	return "itsm:" + orgID.String() + ":" + string(platform) + ":" + ticketID
}

// IsDue reports whether a pending item may be claimed at now
func (i *SyncQueueItem) IsDue(now time.Time) bool {
	if i.Status != QueueStatusPending {
		return false
	}
	return i.NextRetryAt == nil || !i.NextRetryAt.After(now)
}

// IsTerminal reports whether the item reached a final state
func (i *SyncQueueItem) IsTerminal() bool {
	return i.Status == QueueStatusCompleted || i.Status == QueueStatusFailed || i.Status == QueueStatusCancelled
}

// MarkProcessing claims a due pending item
func (i *SyncQueueItem) MarkProcessing(now time.Time) error {
	if !i.IsDue(now) {
		return ErrInvalidQueueTransition
	}
	i.Status = QueueStatusProcessing
	i.ProcessingStartedAt = &now
	i.UpdatedAt = now
	return nil
}

// AssignExternalID records the external ticket id. Once set it cannot change.
func (i *SyncQueueItem) AssignExternalID(externalID string) error {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil
	}
	if i.ExternalID != "" && i.ExternalID != externalID {
		return ErrExternalIDImmutable
	}
	i.ExternalID = externalID
	return nil
}

// MarkCompleted records a successful delivery
func (i *SyncQueueItem) MarkCompleted(externalID string, now time.Time) error {
	if i.Status != QueueStatusProcessing {
		return ErrInvalidQueueTransition
	}
	if err := i.AssignExternalID(externalID); err != nil {
		return err
	}
	i.Status = QueueStatusCompleted
	i.NextRetryAt = nil
	i.ErrorMessage = ""
	i.ErrorKind = ErrorKindNone
	i.ProcessingStartedAt = nil
	i.CompletedAt = &now
	i.UpdatedAt = now
	return nil
}

// RecordFailure counts a failed delivery attempt. Transient failures go back to
// pending with a backoff while attempts remain; everything else is terminal.
// It returns true when a retry was scheduled.
func (i *SyncQueueItem) RecordFailure(cause error, now time.Time) (bool, error) {
	if i.Status != QueueStatusProcessing {
		return false, ErrInvalidQueueTransition
	}

	i.Attempts++
	i.ProcessingStartedAt = nil
	i.UpdatedAt = now
	i.ErrorKind = KindOf(cause)
	if cause != nil {
		i.ErrorMessage = cause.Error()
	}

	if IsRetryable(cause) && i.Attempts < i.MaxAttempts {
		next := now.Add(Backoff(i.Attempts))
		i.Status = QueueStatusPending
		i.NextRetryAt = &next
		return true, nil
	}

	i.Status = QueueStatusFailed
	i.NextRetryAt = nil
	i.CompletedAt = &now
	return false, nil
}

// Cancel moves a pending or failed item to cancelled. An item being delivered
// cannot be cancelled until the attempt resolves.
func (i *SyncQueueItem) Cancel(now time.Time) error {
	switch i.Status {
	case QueueStatusPending, QueueStatusFailed:
	case QueueStatusProcessing:
		return ErrQueueItemInFlight
	default:
		return ErrInvalidQueueTransition
	}
	i.Status = QueueStatusCancelled
	i.NextRetryAt = nil
	i.CompletedAt = &now
	i.UpdatedAt = now
	return nil
}

// Requeue returns a failed item to pending for an operator retry. Attempts keep
// accumulating; when the item exhausted its budget, exactly one more attempt is
// granted so attempts never exceeds max_attempts.
func (i *SyncQueueItem) Requeue(now time.Time) error {
	if i.Status != QueueStatusFailed {
		return ErrInvalidQueueTransition
	}
	if i.Attempts >= i.MaxAttempts {
		i.MaxAttempts = i.Attempts + 1
	}
	i.Status = QueueStatusPending
	i.NextRetryAt = nil
	i.CompletedAt = nil
	i.UpdatedAt = now
	return nil
}
