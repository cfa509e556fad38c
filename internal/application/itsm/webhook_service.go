package itsm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/telemetry"
)

// Webhook outcomes reported to Metrics
const (
	WebhookOutcomeProcessed  = "processed"
	WebhookOutcomeIdempotent = "idempotent"
	WebhookOutcomeRejected   = "rejected"
	WebhookOutcomeError      = "error"
)

// Acknowledger queues the outbound acknowledgement of an inbound change
type Acknowledger interface {
	EnqueuePayload(ctx context.Context, orgID uuid.UUID, req EnqueueRequest, productGroup string, payload itsm.Payload) (*itsm.SyncQueueItem, error)
}

// WebhookService processes inbound platform webhooks
type WebhookService struct {
	uow         itsm.UnitOfWork
	normalizers itsm.NormalizerRegistry
	connRepo    itsm.ConnectionRepository
	policyRepo  itsm.ConflictPolicyRepository
	acks        Acknowledger
	publisher   RecordedPublisher
	metrics     Metrics
	logger      *zap.Logger
}

// WebhookServiceConfig contains the dependencies of WebhookService
type WebhookServiceConfig struct {
	UnitOfWork  itsm.UnitOfWork
	Normalizers itsm.NormalizerRegistry
	// ConnRepo scopes webhooks to organizations with a configured connection
	ConnRepo   itsm.ConnectionRepository
	PolicyRepo itsm.ConflictPolicyRepository
	// Acknowledger is optional; without it acknowledgements are never queued
	Acknowledger Acknowledger
	Publisher    RecordedPublisher
	Metrics      Metrics
	Logger       *zap.Logger
}

// NewWebhookService creates a new WebhookService
func NewWebhookService(cfg WebhookServiceConfig) *WebhookService {
	s := &WebhookService{
		uow:         cfg.UnitOfWork,
		normalizers: cfg.Normalizers,
		connRepo:    cfg.ConnRepo,
		policyRepo:  cfg.PolicyRepo,
		acks:        cfg.Acknowledger,
		publisher:   cfg.Publisher,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}
	if s.metrics == nil {
		s.metrics = NopMetrics{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// WebhookOptions tunes the processing of one webhook
type WebhookOptions struct {
	// Acknowledge queues a sync_response item for the external ticket
	Acknowledge bool
	TraceID     string
}

// WebhookResult is the outcome reported back to the platform
type WebhookResult struct {
	Success       bool               `json:"success"`
	ExternalID    string             `json:"external_id,omitempty"`
	Action        itsm.InboundAction `json:"action,omitempty"`
	Idempotent    bool               `json:"idempotent"`
	StatusSkipped bool               `json:"status_skipped,omitempty"`
	Collision     bool               `json:"collision,omitempty"`
	Error         string             `json:"error,omitempty"`
}

// Process normalizes an inbound webhook and applies it. A body that fails
// normalization yields success=false without touching any state; storage
// failures are returned as errors after rolling back every write.
func (s *WebhookService) Process(ctx context.Context, orgID uuid.UUID, platform itsm.Platform, body []byte, opts WebhookOptions) (*WebhookResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "webhook", "process",
		attribute.String(telemetry.SpanAttrOrganizationID, orgID.String()),
		attribute.String(telemetry.SpanAttrPlatform, string(platform)),
	)
	defer span.End()

	result, err := s.process(ctx, orgID, platform, body, opts)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrExternalID, result.ExternalID,
		"itsm.idempotent", result.Idempotent,
	)
	return result, nil
}

func (s *WebhookService) process(ctx context.Context, orgID uuid.UUID, platform itsm.Platform, body []byte, opts WebhookOptions) (*WebhookResult, error) {
	if !platform.IsValid() {
		return nil, itsm.ErrInvalidPlatform
	}
	if _, err := s.connRepo.FindByPlatform(ctx, orgID, platform); err != nil {
		if errors.Is(err, itsm.ErrConnectionNotFound) {
			s.metrics.IncWebhook(platform, WebhookOutcomeRejected)
			s.logger.Warn("Webhook rejected, no connection configured",
				zap.String("organization_id", orgID.String()),
				zap.String("platform", string(platform)))
		}
		return nil, err
	}
	normalizer, err := s.normalizers.Normalizer(platform)
	if err != nil {
		return nil, err
	}

	change, err := normalizer.Normalize(body)
	if err != nil {
		var ve *itsm.ValidationError
		if !errors.As(err, &ve) {
			return nil, err
		}
		s.metrics.IncWebhook(platform, WebhookOutcomeRejected)
		s.logger.Warn("Webhook rejected",
			zap.String("organization_id", orgID.String()),
			zap.String("platform", string(platform)),
			zap.String("code", ve.Code),
			zap.Error(err))
		return &WebhookResult{Success: false, Error: ve.Error()}, nil
	}

	policies, err := s.policyRepo.Find(ctx, orgID)
	if err != nil {
		return nil, err
	}

	traceID := opts.TraceID
	if traceID == "" {
		traceID = telemetry.TraceID(ctx)
	}
	if traceID == "" {
		traceID = uuid.NewString()
	}

	var (
		result *WebhookResult
		events []*itsm.SyncEvent
		state  *itsm.TicketState
	)
	err = s.uow.Do(ctx, func(repos itsm.TxRepositories) error {
		result = &WebhookResult{ExternalID: change.ExternalID, Action: change.Action}
		events = events[:0]

		seen, err := s.seenBefore(ctx, repos, orgID, platform, change.ExternalID)
		if err != nil {
			return err
		}
		if seen {
			result.Action = itsm.InboundActionUpdate
			result.Idempotent = true
		}

		state, err = repos.Tickets.FindByExternalID(ctx, orgID, platform, change.ExternalID)
		if errors.Is(err, itsm.ErrTicketNotFound) {
			state = itsm.NewTicketState(orgID, platform, change.ExternalID)
		} else if err != nil {
			return err
		}
		if change.Category != "" {
			state.ProductGroup = itsm.Route(change.Category).ProductGroup
		}

		base := func(action string, outcome itsm.AuditOutcome, details string) *itsm.AuditLog {
			entry := itsm.NewAuditLog(orgID, platform, action, outcome, details)
			entry.TraceID = traceID
			entry.ExternalID = change.ExternalID
			entry.ProductGroup = state.ProductGroup
			return entry
		}

		linked := state.TicketID
		if state.LinkTicket(change.TicketRef) {
			result.Collision = true
			entry := base(itsm.AuditActionExternalIDCollision, itsm.AuditOutcomeFailure,
				fmt.Sprintf("external id %s is linked to ticket %s but the payload references ticket %s",
					change.ExternalID, linked, change.TicketRef))
			entry.TicketID = change.TicketRef
			if err := repos.Audit.Create(ctx, entry); err != nil {
				return err
			}
		}

		outcome := state.Merge(change, policies)
		if outcome.StatusSkipped() {
			result.StatusSkipped = true
			entry := base(itsm.AuditActionStatusTransition, itsm.AuditOutcomeSkipped,
				fmt.Sprintf("status transition %q -> %q skipped: not forward", outcome.Status.Value, change.Status))
			entry.TicketID = state.TicketID
			if err := repos.Audit.Create(ctx, entry); err != nil {
				return err
			}
		}

		if err := repos.Tickets.Save(ctx, state); err != nil {
			return err
		}

		action, eventType := itsm.AuditActionInboundUpdate, itsm.EventTypeTicketUpdated
		if result.Action == itsm.InboundActionCreate {
			action, eventType = itsm.AuditActionInboundCreate, itsm.EventTypeTicketCreated
		}
		details := change.Details
		if result.Idempotent {
			details += itsm.IdempotentSuffix
		}
		entry := base(action, itsm.AuditOutcomeSuccess, details)
		entry.TicketID = state.TicketID
		if err := repos.Audit.Create(ctx, entry); err != nil {
			return err
		}

		event := itsm.NewSyncEvent(orgID, platform, eventType, itsm.SyncEventStatusSuccess)
		event.ExternalID = change.ExternalID
		event.TicketID = state.TicketID
		event.ProductGroup = state.ProductGroup
		event.Message = details
		if err := repos.Events.Create(ctx, event); err != nil {
			return err
		}
		events = append(events, event)
		return nil
	})
	if err != nil {
		s.metrics.IncWebhook(platform, WebhookOutcomeError)
		return nil, fmt.Errorf("failed to apply webhook: %w", err)
	}
	result.Success = true

	if result.Collision {
		s.metrics.IncCollision(platform)
		s.logger.Warn("External id collision",
			zap.String("organization_id", orgID.String()),
			zap.String("platform", string(platform)),
			zap.String("external_id", change.ExternalID),
			zap.String("linked_ticket_id", state.TicketID),
			zap.String("referenced_ticket_id", change.TicketRef))
	}
	if result.Idempotent {
		s.metrics.IncWebhook(platform, WebhookOutcomeIdempotent)
	} else {
		s.metrics.IncWebhook(platform, WebhookOutcomeProcessed)
	}
	if s.publisher != nil {
		s.publisher.PublishRecorded(ctx, events...)
	}

	s.logger.Info("Webhook processed",
		zap.String("organization_id", orgID.String()),
		zap.String("platform", string(platform)),
		zap.String("external_id", change.ExternalID),
		zap.String("action", string(result.Action)),
		zap.Bool("idempotent", result.Idempotent),
		zap.Bool("status_skipped", result.StatusSkipped),
		zap.String("trace_id", traceID))

	if opts.Acknowledge {
		s.acknowledge(ctx, orgID, platform, state, traceID)
	}
	return result, nil
}

// seenBefore reports whether the external id already has audit or event history
func (s *WebhookService) seenBefore(ctx context.Context, repos itsm.TxRepositories, orgID uuid.UUID, platform itsm.Platform, externalID string) (bool, error) {
	found, err := repos.Audit.ExistsByExternalID(ctx, orgID, platform, externalID)
	if err != nil || found {
		return found, err
	}
	return repos.Events.ExistsByExternalID(ctx, orgID, platform, externalID)
}

// acknowledge queues a sync_response for the external ticket. The webhook is
// already committed, so failures are only logged.
func (s *WebhookService) acknowledge(ctx context.Context, orgID uuid.UUID, platform itsm.Platform, state *itsm.TicketState, traceID string) {
	if s.acks == nil {
		return
	}
	ticketID := state.TicketID
	if ticketID == "" {
		ticketID = state.ExternalID
	}
	payload := itsm.Payload{
		"external_id": state.ExternalID,
		"status":      state.Status,
		"priority":    state.Priority,
	}
	_, err := s.acks.EnqueuePayload(ctx, orgID, EnqueueRequest{
		Platform:   platform,
		Action:     itsm.SyncActionSyncResponse,
		TicketID:   ticketID,
		ExternalID: state.ExternalID,
		TraceID:    traceID,
	}, state.ProductGroup, payload)

	var ve *itsm.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &ve) && ve.Code == itsm.CodeSyncDisabled:
		s.logger.Debug("Acknowledgement skipped, sync disabled",
			zap.String("platform", string(platform)),
			zap.String("external_id", state.ExternalID))
	default:
		s.logger.Error("Failed to queue webhook acknowledgement",
			zap.String("platform", string(platform)),
			zap.String("external_id", state.ExternalID),
			zap.Error(err))
	}
}
