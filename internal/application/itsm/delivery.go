package itsm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/telemetry"
)

// DeliveryResult summarizes one delivery attempt
type DeliveryResult struct {
	Outcome    string
	ExternalID string
	Retried    bool
	Collision  bool
}

// Deliver sends a claimed (processing) item to its platform and records the
// outcome. Only infrastructure failures before the adapter call are returned;
// such an item stays in processing until the stale-claim sweep releases it.
func (s *SyncQueueService) Deliver(ctx context.Context, item *itsm.SyncQueueItem) (result *DeliveryResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "sync_queue", "deliver",
		attribute.String(telemetry.SpanAttrOrganizationID, item.OrganizationID.String()),
		attribute.String(telemetry.SpanAttrPlatform, string(item.Platform)),
		attribute.String(telemetry.SpanAttrAction, string(item.Action)),
		attribute.String(telemetry.SpanAttrQueueItemID, item.ID.String()),
		attribute.String(telemetry.SpanAttrTicketID, item.TicketID),
		attribute.Int(telemetry.SpanAttrAttempt, item.Attempts+1),
	)
	defer span.End()

	labels := telemetry.DeliveryLabels(item.OrganizationID.String(), string(item.Platform), string(item.Action))
	telemetry.WithProfilingLabels(ctx, labels, func(ctx context.Context) {
		result, err = s.deliver(ctx, item)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String(telemetry.SpanAttrOutcome, result.Outcome))
	if result.ExternalID != "" {
		span.SetAttributes(attribute.String(telemetry.SpanAttrExternalID, result.ExternalID))
	}
	return result, nil
}

func (s *SyncQueueService) deliver(ctx context.Context, item *itsm.SyncQueueItem) (*DeliveryResult, error) {
	started := s.now()

	conn, err := s.connRepo.FindByPlatform(ctx, item.OrganizationID, item.Platform)
	if err != nil && !errors.Is(err, itsm.ErrConnectionNotFound) {
		return nil, err
	}
	if conn == nil || !conn.CanSync(item.ProductGroup) {
		cause := itsm.NewValidationError(itsm.CodeSyncDisabled, "platform",
			fmt.Sprintf("sync is disabled for %s product group %s", item.Platform.DisplayName(), item.ProductGroup))
		return s.recordFailure(ctx, item, nil, cause, started)
	}

	if item.Action.RequiresExternalID() && item.ExternalID == "" {
		if err := s.attachLinkedExternalID(ctx, item); err != nil {
			return nil, err
		}
		if item.ExternalID == "" {
			cause := itsm.NewValidationError(itsm.CodeMissingRequiredField, "external_id", itsm.ErrExternalIDRequired.Error())
			return s.recordFailure(ctx, item, conn, cause, started)
		}
	}

	adapter, err := s.adapters.Adapter(item.Platform)
	if err != nil {
		cause := itsm.NewValidationError(itsm.CodeInvalidFieldValue, "platform", err.Error())
		return s.recordFailure(ctx, item, conn, cause, started)
	}

	res, sendErr := adapter.Send(ctx, conn, item.Action, &itsm.SendRequest{
		TicketID:   item.TicketID,
		ExternalID: item.ExternalID,
		Payload:    item.Payload,
	})
	if sendErr != nil {
		return s.recordFailure(ctx, item, conn, sendErr, started)
	}
	return s.recordSuccess(ctx, item, res, started)
}

func (s *SyncQueueService) recordSuccess(ctx context.Context, item *itsm.SyncQueueItem, res *itsm.SendResult, started time.Time) (*DeliveryResult, error) {
	returned := ""
	if res != nil {
		returned = res.ExternalID
	}

	now := s.now()
	if err := item.MarkCompleted(returned, now); err != nil {
		if !errors.Is(err, itsm.ErrExternalIDImmutable) {
			return nil, err
		}
		s.logger.Warn("Platform returned a different external id, keeping the original",
			zap.String("queue_item_id", item.ID.String()),
			zap.String("external_id", item.ExternalID),
			zap.String("returned_external_id", returned))
		if err := item.MarkCompleted("", now); err != nil {
			return nil, err
		}
	}

	result := &DeliveryResult{Outcome: DeliveryOutcomeSuccess, ExternalID: item.ExternalID}
	event := itsm.NewQueueSyncEvent(item, itsm.SyncEventStatusSuccess,
		fmt.Sprintf("delivered to %s", item.Platform.DisplayName()))
	entry := itsm.NewQueueAuditLog(item, itsm.OutboundAuditAction(item.Action), itsm.AuditOutcomeSuccess,
		fmt.Sprintf("%s %s delivered for ticket %s", item.Platform.DisplayName(), item.Action, item.TicketID))

	err := s.uow.Do(ctx, func(repos itsm.TxRepositories) error {
		written, err := repos.Queue.SaveIfStatus(ctx, item, itsm.QueueStatusProcessing)
		if err != nil {
			return err
		}
		if !written {
			return errClaimLost
		}
		if err := repos.Audit.Create(ctx, entry); err != nil {
			return err
		}
		if err := repos.Events.Create(ctx, event); err != nil {
			return err
		}
		if item.Action == itsm.SyncActionCreate && item.ExternalID != "" {
			collision, err := s.linkCreatedTicket(ctx, repos, item)
			if err != nil {
				return err
			}
			result.Collision = collision
		}
		return nil
	})
	if errors.Is(err, errClaimLost) {
		s.logger.Warn("Delivered item was released before completion was recorded",
			zap.String("queue_item_id", item.ID.String()),
			zap.String("external_id", item.ExternalID))
		s.metrics.ObserveDelivery(item.Platform, item.Action, DeliveryOutcomeSkipped, s.now().Sub(started))
		result.Outcome = DeliveryOutcomeSkipped
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record delivery: %w", err)
	}

	if result.Collision {
		s.metrics.IncCollision(item.Platform)
	}
	s.metrics.ObserveDelivery(item.Platform, item.Action, DeliveryOutcomeSuccess, s.now().Sub(started))
	s.publish(ctx, event)
	s.logger.Info("Sync item delivered",
		zap.String("queue_item_id", item.ID.String()),
		zap.String("platform", string(item.Platform)),
		zap.String("action", string(item.Action)),
		zap.String("ticket_id", item.TicketID),
		zap.String("external_id", item.ExternalID),
		zap.String("trace_id", item.TraceID))
	return result, nil
}

// linkCreatedTicket stores the link between the internal ticket and the
// external ticket a create produced
func (s *SyncQueueService) linkCreatedTicket(ctx context.Context, repos itsm.TxRepositories, item *itsm.SyncQueueItem) (bool, error) {
	state, err := repos.Tickets.FindByExternalID(ctx, item.OrganizationID, item.Platform, item.ExternalID)
	if errors.Is(err, itsm.ErrTicketNotFound) {
		state = itsm.NewTicketState(item.OrganizationID, item.Platform, item.ExternalID)
		state.ProductGroup = item.ProductGroup
	} else if err != nil {
		return false, err
	}

	if state.LinkTicket(item.TicketID) {
		entry := itsm.NewQueueAuditLog(item, itsm.AuditActionExternalIDCollision, itsm.AuditOutcomeFailure,
			fmt.Sprintf("external id %s is already linked to ticket %s", item.ExternalID, state.TicketID))
		s.logger.Warn("External id collision",
			zap.String("platform", string(item.Platform)),
			zap.String("external_id", item.ExternalID),
			zap.String("linked_ticket_id", state.TicketID),
			zap.String("ticket_id", item.TicketID))
		return true, repos.Audit.Create(ctx, entry)
	}
	return false, repos.Tickets.Save(ctx, state)
}

// bumpRetryingEvent counts another failed attempt on the item's open
// retrying event. It returns nil when the item's latest event is not retrying.
func bumpRetryingEvent(ctx context.Context, repos itsm.TxRepositories, item *itsm.SyncQueueItem) (*itsm.SyncEvent, error) {
	latest, err := repos.Events.FindLatestByQueueItem(ctx, item.ID)
	if err != nil || latest == nil || latest.Status != itsm.SyncEventStatusRetrying {
		return nil, err
	}
	if err := repos.Events.IncrementRetryCount(ctx, latest.ID); err != nil {
		return nil, err
	}
	latest.IncrementRetryCount()
	return latest, nil
}

func (s *SyncQueueService) recordFailure(ctx context.Context, item *itsm.SyncQueueItem, conn *itsm.Connection, cause error, started time.Time) (*DeliveryResult, error) {
	retried, err := item.RecordFailure(cause, s.now())
	if err != nil {
		return nil, err
	}

	result := &DeliveryResult{Outcome: DeliveryOutcomeFailure, Retried: retried}
	var (
		event *itsm.SyncEvent
		entry *itsm.AuditLog
	)
	if retried {
		result.Outcome = DeliveryOutcomeRetrying
		event = itsm.NewQueueSyncEvent(item, itsm.SyncEventStatusRetrying,
			fmt.Sprintf("attempt %d of %d failed, next retry at %s: %s",
				item.Attempts, item.MaxAttempts, item.NextRetryAt.UTC().Format(time.RFC3339), item.ErrorMessage))
	} else {
		event = itsm.NewQueueSyncEvent(item, itsm.SyncEventStatusFailure, item.ErrorMessage)
		entry = itsm.NewQueueAuditLog(item, itsm.OutboundAuditAction(item.Action), itsm.AuditOutcomeFailure,
			fmt.Sprintf("%s %s failed after %d attempt(s) (%s): %s",
				item.Platform.DisplayName(), item.Action, item.Attempts, item.ErrorKind, item.ErrorMessage))
	}

	err = s.uow.Do(ctx, func(repos itsm.TxRepositories) error {
		written, err := repos.Queue.SaveIfStatus(ctx, item, itsm.QueueStatusProcessing)
		if err != nil {
			return err
		}
		if !written {
			return errClaimLost
		}
		if entry != nil {
			if err := repos.Audit.Create(ctx, entry); err != nil {
				return err
			}
		}
		if retried {
			bumped, err := bumpRetryingEvent(ctx, repos, item)
			if err != nil {
				return err
			}
			if bumped != nil {
				event = bumped
				return nil
			}
		}
		return repos.Events.Create(ctx, event)
	})
	if errors.Is(err, errClaimLost) {
		s.metrics.ObserveDelivery(item.Platform, item.Action, DeliveryOutcomeSkipped, s.now().Sub(started))
		result.Outcome = DeliveryOutcomeSkipped
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record delivery failure: %w", err)
	}

	var permErr *itsm.PermissionError
	if conn != nil && errors.As(cause, &permErr) {
		conn.MarkError(permErr.Error())
		if err := s.connRepo.Save(ctx, conn); err != nil {
			s.logger.Error("Failed to flag connection after permission failure",
				zap.String("platform", string(conn.Platform)),
				zap.Error(err))
		}
	}

	s.metrics.ObserveDelivery(item.Platform, item.Action, result.Outcome, s.now().Sub(started))
	s.publish(ctx, event)

	fields := []zap.Field{
		zap.String("queue_item_id", item.ID.String()),
		zap.String("platform", string(item.Platform)),
		zap.String("action", string(item.Action)),
		zap.String("ticket_id", item.TicketID),
		zap.Int("attempts", item.Attempts),
		zap.String("error_kind", string(item.ErrorKind)),
		zap.Error(cause),
	}
	if retried {
		s.logger.Warn("Sync delivery failed, retry scheduled", append(fields, zap.Timep("next_retry_at", item.NextRetryAt))...)
	} else {
		s.logger.Error("Sync delivery failed", fields...)
	}
	return result, nil
}
