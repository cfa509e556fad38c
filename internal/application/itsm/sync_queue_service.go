package itsm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"go.uber.org/zap"
)

// errClaimLost aborts recording a delivery whose item left processing while
// the adapter call ran, which only happens after a stale-claim release
var errClaimLost = errors.New("itsm: queue item left processing before the delivery was recorded")

// PayloadResolver translates an internal record into a platform payload
type PayloadResolver interface {
	Resolve(ctx context.Context, orgID uuid.UUID, platform itsm.Platform, record itsm.Record) (itsm.Payload, error)
}

// RecordedPublisher announces committed sync events
type RecordedPublisher interface {
	PublishRecorded(ctx context.Context, events ...*itsm.SyncEvent)
}

// SyncQueueService owns the outbound queue: enqueueing, operator actions and
// the delivery of claimed items
type SyncQueueService struct {
	uow                itsm.UnitOfWork
	queueRepo          itsm.SyncQueueRepository
	connRepo           itsm.ConnectionRepository
	ticketRepo         itsm.TicketStateRepository
	resolver           PayloadResolver
	adapters           itsm.AdapterRegistry
	publisher          RecordedPublisher
	metrics            Metrics
	logger             *zap.Logger
	defaultMaxAttempts int
	now                func() time.Time
}

// SyncQueueServiceConfig contains the dependencies of SyncQueueService
type SyncQueueServiceConfig struct {
	UnitOfWork itsm.UnitOfWork
	QueueRepo  itsm.SyncQueueRepository
	ConnRepo   itsm.ConnectionRepository
	TicketRepo itsm.TicketStateRepository
	Resolver   PayloadResolver
	Adapters   itsm.AdapterRegistry
	Publisher  RecordedPublisher
	Metrics    Metrics
	Logger     *zap.Logger
	// DefaultMaxAttempts applies to items enqueued without an explicit limit
	DefaultMaxAttempts int
	// Now overrides the clock in tests
	Now func() time.Time
}

// NewSyncQueueService creates a new SyncQueueService
func NewSyncQueueService(cfg SyncQueueServiceConfig) *SyncQueueService {
	s := &SyncQueueService{
		uow:                cfg.UnitOfWork,
		queueRepo:          cfg.QueueRepo,
		connRepo:           cfg.ConnRepo,
		ticketRepo:         cfg.TicketRepo,
		resolver:           cfg.Resolver,
		adapters:           cfg.Adapters,
		publisher:          cfg.Publisher,
		metrics:            cfg.Metrics,
		logger:             cfg.Logger,
		defaultMaxAttempts: cfg.DefaultMaxAttempts,
		now:                cfg.Now,
	}
	if s.metrics == nil {
		s.metrics = NopMetrics{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.defaultMaxAttempts <= 0 {
		s.defaultMaxAttempts = itsm.DefaultMaxAttempts
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// EnqueueRequest describes one outbound change
type EnqueueRequest struct {
	Platform itsm.Platform
	Action   itsm.SyncAction
	TicketID string
	// ExternalID targets a known external ticket; otherwise the linked one is used
	ExternalID string
	// Category drives routing to a product group and default assignee
	Category    string
	Record      itsm.Record
	MaxAttempts int
	TraceID     string
	UserEmail   string
}

// Enqueue resolves the record through the field mappings and queues the
// delivery. Nothing is stored when the connection cannot sync the routed
// product group or a required field is missing.
func (s *SyncQueueService) Enqueue(ctx context.Context, orgID uuid.UUID, req EnqueueRequest) (*itsm.SyncQueueItem, error) {
	if !req.Platform.IsValid() {
		return nil, itsm.ErrInvalidPlatform
	}
	if !req.Action.IsValid() {
		return nil, itsm.ErrInvalidAction
	}
	if strings.TrimSpace(req.TicketID) == "" {
		return nil, itsm.ErrMissingTicketID
	}

	assignment := itsm.Route(req.Category)
	conn, err := s.syncableConnection(ctx, orgID, req.Platform, assignment.ProductGroup)
	if err != nil {
		return nil, err
	}

	record := req.Record
	if conn.AutoAssignmentEnabled && assignment.ProductGroup != itsm.ProductGroupUnknown && isBlank(record["assignee"]) {
		record = cloneRecord(record)
		record["assignee"] = assignment.Assignee
	}

	payload, err := s.resolver.Resolve(ctx, orgID, req.Platform, record)
	if err != nil {
		return nil, err
	}

	return s.enqueuePayload(ctx, orgID, req, assignment.ProductGroup, payload)
}

// EnqueuePayload queues an already platform-shaped payload, bypassing field
// mapping. It is used for acknowledgements of inbound changes.
func (s *SyncQueueService) EnqueuePayload(ctx context.Context, orgID uuid.UUID, req EnqueueRequest, productGroup string, payload itsm.Payload) (*itsm.SyncQueueItem, error) {
	if productGroup == "" {
		productGroup = itsm.ProductGroupUnknown
	}
	if _, err := s.syncableConnection(ctx, orgID, req.Platform, productGroup); err != nil {
		return nil, err
	}
	return s.enqueuePayload(ctx, orgID, req, productGroup, payload)
}

func (s *SyncQueueService) enqueuePayload(ctx context.Context, orgID uuid.UUID, req EnqueueRequest, productGroup string, payload itsm.Payload) (*itsm.SyncQueueItem, error) {
	maxAttempts := req.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = s.defaultMaxAttempts
	}
	item, err := itsm.NewSyncQueueItem(orgID, req.Platform, req.Action, req.TicketID, payload, maxAttempts)
	if err != nil {
		return nil, err
	}
	if err := item.AssignExternalID(req.ExternalID); err != nil {
		return nil, err
	}
	item.ProductGroup = productGroup
	item.TraceID = req.TraceID
	if item.TraceID == "" {
		item.TraceID = uuid.NewString()
	}
	now := s.now()
	item.CreatedAt, item.UpdatedAt = now, now

	if item.Action.RequiresExternalID() {
		if err := s.attachLinkedExternalID(ctx, item); err != nil {
			return nil, err
		}
	}

	event := itsm.NewQueueSyncEvent(item, itsm.SyncEventStatusPending, "queued for delivery")
	entry := itsm.NewQueueAuditLog(item, itsm.AuditActionEnqueue, itsm.AuditOutcomeSuccess,
		fmt.Sprintf("%s %s queued for ticket %s", req.Platform.DisplayName(), req.Action, item.TicketID))
	entry.UserEmail = req.UserEmail

	err = s.uow.Do(ctx, func(repos itsm.TxRepositories) error {
		if err := repos.Queue.Create(ctx, item); err != nil {
			return err
		}
		if err := repos.Events.Create(ctx, event); err != nil {
			return err
		}
		return repos.Audit.Create(ctx, entry)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue sync item: %w", err)
	}

	s.metrics.IncEnqueued(item.Platform, item.Action)
	s.publish(ctx, event)
	s.logger.Info("Sync item enqueued",
		zap.String("queue_item_id", item.ID.String()),
		zap.String("platform", string(item.Platform)),
		zap.String("action", string(item.Action)),
		zap.String("ticket_id", item.TicketID),
		zap.String("product_group", item.ProductGroup),
		zap.String("trace_id", item.TraceID))
	return item, nil
}

// syncableConnection returns the connection when it may carry the product group
func (s *SyncQueueService) syncableConnection(ctx context.Context, orgID uuid.UUID, platform itsm.Platform, productGroup string) (*itsm.Connection, error) {
	conn, err := s.connRepo.FindByPlatform(ctx, orgID, platform)
	if errors.Is(err, itsm.ErrConnectionNotFound) {
		return nil, itsm.NewValidationError(itsm.CodeSyncDisabled, "platform",
			fmt.Sprintf("no %s connection is configured", platform.DisplayName()))
	}
	if err != nil {
		return nil, err
	}
	if !conn.SyncEnabled {
		return nil, itsm.NewValidationError(itsm.CodeSyncDisabled, "platform",
			fmt.Sprintf("sync is disabled for the %s connection", platform.DisplayName()))
	}
	if !conn.CanSync(productGroup) {
		return nil, itsm.NewValidationError(itsm.CodeSyncDisabled, "product_group",
			fmt.Sprintf("sync is disabled for product group %s", productGroup))
	}
	return conn, nil
}

// attachLinkedExternalID copies the external id of the linked ticket, if any
func (s *SyncQueueService) attachLinkedExternalID(ctx context.Context, item *itsm.SyncQueueItem) error {
	if item.ExternalID != "" {
		return nil
	}
	state, err := s.ticketRepo.FindByTicketID(ctx, item.OrganizationID, item.Platform, item.TicketID)
	if errors.Is(err, itsm.ErrTicketNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return item.AssignExternalID(state.ExternalID)
}

// ---------------------------------------------------------------------------
// Operator actions
// ---------------------------------------------------------------------------

// Cancel stops a pending or failed item. An item being delivered cannot be
// cancelled until its attempt resolves.
func (s *SyncQueueService) Cancel(ctx context.Context, orgID, id uuid.UUID, userEmail string) (*itsm.SyncQueueItem, error) {
	item, err := s.queueRepo.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	previous := item.Status
	if err := item.Cancel(s.now()); err != nil {
		return nil, err
	}

	entry := itsm.NewQueueAuditLog(item, itsm.AuditActionCancel, itsm.AuditOutcomeSuccess,
		fmt.Sprintf("%s %s for ticket %s cancelled from %s", item.Platform.DisplayName(), item.Action, item.TicketID, previous))
	entry.UserEmail = userEmail

	err = s.uow.Do(ctx, func(repos itsm.TxRepositories) error {
		written, err := repos.Queue.SaveIfStatus(ctx, item, previous)
		if err != nil {
			return err
		}
		if !written {
			// claimed by a worker since it was read
			return itsm.ErrQueueItemInFlight
		}
		return repos.Audit.Create(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Sync item cancelled",
		zap.String("queue_item_id", item.ID.String()),
		zap.String("platform", string(item.Platform)),
		zap.String("ticket_id", item.TicketID),
		zap.String("user_email", userEmail))
	return item, nil
}

// Retry returns one failed item to pending. Attempts keep accumulating; an
// exhausted item is granted exactly one more attempt.
func (s *SyncQueueService) Retry(ctx context.Context, orgID, id uuid.UUID, userEmail string) (*itsm.SyncQueueItem, error) {
	item, err := s.queueRepo.FindByID(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if err := item.Requeue(s.now()); err != nil {
		return nil, err
	}

	var events []*itsm.SyncEvent
	err = s.uow.Do(ctx, func(repos itsm.TxRepositories) error {
		event, err := s.recordRequeue(ctx, repos, item, userEmail)
		if err != nil {
			return err
		}
		if event == nil {
			return itsm.ErrInvalidQueueTransition
		}
		events = append(events, event)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events...)
	return item, nil
}

// RetryAll returns every failed item of a platform to pending and reports how
// many were requeued
func (s *SyncQueueService) RetryAll(ctx context.Context, orgID uuid.UUID, platform itsm.Platform, userEmail string) (int, error) {
	if !platform.IsValid() {
		return 0, itsm.ErrInvalidPlatform
	}
	items, err := s.queueRepo.FindByStatus(ctx, orgID, platform, itsm.QueueStatusFailed)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	now := s.now()
	var events []*itsm.SyncEvent
	err = s.uow.Do(ctx, func(repos itsm.TxRepositories) error {
		events = events[:0]
		for _, item := range items {
			if err := item.Requeue(now); err != nil {
				continue
			}
			event, err := s.recordRequeue(ctx, repos, item, userEmail)
			if err != nil {
				return err
			}
			if event != nil {
				events = append(events, event)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.publish(ctx, events...)
	s.logger.Info("Failed sync items requeued",
		zap.String("organization_id", orgID.String()),
		zap.String("platform", string(platform)),
		zap.Int("requeued", len(events)),
		zap.String("user_email", userEmail))
	return len(events), nil
}

// recordRequeue persists a requeued item with its audit entry and retrying
// event. It returns nil when the item is no longer failed.
func (s *SyncQueueService) recordRequeue(ctx context.Context, repos itsm.TxRepositories, item *itsm.SyncQueueItem, userEmail string) (*itsm.SyncEvent, error) {
	written, err := repos.Queue.SaveIfStatus(ctx, item, itsm.QueueStatusFailed)
	if err != nil || !written {
		return nil, err
	}
	entry := itsm.NewQueueAuditLog(item, itsm.AuditActionRetry, itsm.AuditOutcomeSuccess,
		fmt.Sprintf("%s %s for ticket %s requeued (attempt %d of %d)",
			item.Platform.DisplayName(), item.Action, item.TicketID, item.Attempts+1, item.MaxAttempts))
	entry.UserEmail = userEmail
	if err := repos.Audit.Create(ctx, entry); err != nil {
		return nil, err
	}
	event := itsm.NewQueueSyncEvent(item, itsm.SyncEventStatusRetrying, "manual retry requested")
	if err := repos.Events.Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// Get returns one queue item of the organization
func (s *SyncQueueService) Get(ctx context.Context, orgID, id uuid.UUID) (*itsm.SyncQueueItem, error) {
	return s.queueRepo.FindByID(ctx, orgID, id)
}

// List returns a newest-first page of queue items and the total count
func (s *SyncQueueService) List(ctx context.Context, filter itsm.QueueFilter) ([]*itsm.SyncQueueItem, int64, error) {
	filter.PageRequest = filter.PageRequest.Normalize()
	return s.queueRepo.List(ctx, filter)
}

// QueueStats counts an organization's queue items per status
type QueueStats struct {
	Counts map[itsm.QueueStatus]int64 `json:"counts"`
	Total  int64                      `json:"total"`
}

// Stats returns per-status queue counts
func (s *SyncQueueService) Stats(ctx context.Context, orgID uuid.UUID) (*QueueStats, error) {
	counts, err := s.queueRepo.CountByStatus(ctx, orgID)
	if err != nil {
		return nil, err
	}
	stats := &QueueStats{Counts: counts}
	for _, c := range counts {
		stats.Total += c
	}
	return stats, nil
}

func (s *SyncQueueService) publish(ctx context.Context, events ...*itsm.SyncEvent) {
	if s.publisher != nil && len(events) > 0 {
		s.publisher.PublishRecorded(ctx, events...)
	}
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func cloneRecord(r itsm.Record) itsm.Record {
	out := make(itsm.Record, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	return out
}
