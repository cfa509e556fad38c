package itsm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/shared"
	"go.uber.org/zap"
)

// ErrArchiveDisabled is returned when no archive storage is configured
var ErrArchiveDisabled = errors.New("itsm: audit archive storage is not configured")

// ErrInvalidArchiveRange is returned when the archive range is empty or inverted
var ErrInvalidArchiveRange = errors.New("itsm: archive range requires from < to")

// LogService queries the audit trail and sync events and fans recorded sync
// events out to stream subscribers
type LogService struct {
	auditRepo itsm.AuditLogRepository
	eventRepo itsm.SyncEventRepository
	publisher shared.EventPublisher
	archiver  AuditArchiver
	logger    *zap.Logger
}

// LogServiceConfig contains the dependencies of LogService
type LogServiceConfig struct {
	AuditRepo itsm.AuditLogRepository
	EventRepo itsm.SyncEventRepository
	// Publisher is optional; without it recorded events are not streamed
	Publisher shared.EventPublisher
	// Archiver is optional; without it ArchiveAuditLogs returns ErrArchiveDisabled
	Archiver AuditArchiver
	Logger   *zap.Logger
}

// NewLogService creates a new LogService
func NewLogService(cfg LogServiceConfig) *LogService {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogService{
		auditRepo: cfg.AuditRepo,
		eventRepo: cfg.EventRepo,
		publisher: cfg.Publisher,
		archiver:  cfg.Archiver,
		logger:    logger,
	}
}

// QueryAuditLogs returns a newest-first page of audit entries and the total count
func (s *LogService) QueryAuditLogs(ctx context.Context, filter itsm.AuditLogFilter) ([]*itsm.AuditLog, int64, error) {
	filter.PageRequest = filter.PageRequest.Normalize()
	return s.auditRepo.Query(ctx, filter)
}

// QuerySyncEvents returns a newest-first page of sync events and the total count
func (s *LogService) QuerySyncEvents(ctx context.Context, filter itsm.SyncEventFilter) ([]*itsm.SyncEvent, int64, error) {
	filter.PageRequest = filter.PageRequest.Normalize()
	return s.eventRepo.Query(ctx, filter)
}

// PublishRecorded announces committed sync events on the event bus. Publishing
// is best effort: the events are already durable, so failures are only logged.
func (s *LogService) PublishRecorded(ctx context.Context, events ...*itsm.SyncEvent) {
	if s == nil || s.publisher == nil || len(events) == 0 {
		return
	}
	domainEvents := make([]shared.DomainEvent, 0, len(events))
	for _, e := range events {
		if e != nil {
			domainEvents = append(domainEvents, itsm.NewSyncEventRecorded(e))
		}
	}
	if err := s.publisher.Publish(ctx, domainEvents...); err != nil {
		s.logger.Warn("Failed to publish sync events",
			zap.Int("count", len(domainEvents)),
			zap.Error(err))
	}
}

// ArchiveResult describes a completed audit export
type ArchiveResult struct {
	Key      string    `json:"key"`
	Location string    `json:"location"`
	Entries  int       `json:"entries"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
}

// archivedAuditLog is the JSON Lines shape of an exported audit entry
type archivedAuditLog struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Platform       string    `json:"platform"`
	Action         string    `json:"action"`
	TraceID        string    `json:"trace_id,omitempty"`
	ExternalID     string    `json:"external_id,omitempty"`
	TicketID       string    `json:"ticket_id,omitempty"`
	UserEmail      string    `json:"user_email,omitempty"`
	Outcome        string    `json:"outcome"`
	Details        string    `json:"details"`
	ProductGroup   string    `json:"product_group,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ArchiveAuditLogs exports the organization's audit entries in [from, to) as
// JSON Lines to the archive storage
func (s *LogService) ArchiveAuditLogs(ctx context.Context, orgID uuid.UUID, from, to time.Time) (*ArchiveResult, error) {
	if s.archiver == nil {
		return nil, ErrArchiveDisabled
	}
	if !from.Before(to) {
		return nil, ErrInvalidArchiveRange
	}

	var (
		buf     bytes.Buffer
		entries int
	)
	enc := json.NewEncoder(&buf)
	filter := itsm.AuditLogFilter{OrganizationID: orgID, From: &from, To: &to}
	err := s.auditRepo.Stream(ctx, filter, func(a *itsm.AuditLog) error {
		entries++
		return enc.Encode(archivedAuditLog{
			ID:             a.ID,
			OrganizationID: a.OrganizationID,
			Platform:       string(a.Platform),
			Action:         a.Action,
			TraceID:        a.TraceID,
			ExternalID:     a.ExternalID,
			TicketID:       a.TicketID,
			UserEmail:      a.UserEmail,
			Outcome:        string(a.Outcome),
			Details:        a.Details,
			ProductGroup:   a.ProductGroup,
			CreatedAt:      a.CreatedAt.UTC(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to export audit logs: %w", err)
	}

	key := ArchiveKey(orgID, from, to)
	location, err := s.archiver.PutObject(ctx, key, "application/x-ndjson", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to store audit archive: %w", err)
	}

	s.logger.Info("Audit logs archived",
		zap.String("organization_id", orgID.String()),
		zap.String("key", key),
		zap.Int("entries", entries))

	return &ArchiveResult{Key: key, Location: location, Entries: entries, From: from, To: to}, nil
}
