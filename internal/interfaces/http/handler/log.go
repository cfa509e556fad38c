package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	itsmapp "github.com/reddomeuk/redscan-application-sub002/internal/application/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/interfaces/http/dto"
)

// EventSubscriber streams an organization's recorded sync events
type EventSubscriber interface {
	Subscribe(orgID uuid.UUID) (<-chan *itsm.SyncEventRecorded, func())
}

// LogHandler serves the audit log, the sync event feed and its live stream
type LogHandler struct {
	BaseHandler
	logs       *itsmapp.LogService
	subscriber EventSubscriber
	heartbeat  time.Duration
	logger     *zap.Logger
}

// NewLogHandler creates a new LogHandler. A nil subscriber disables the live stream.
func NewLogHandler(logs *itsmapp.LogService, subscriber EventSubscriber, logger *zap.Logger) *LogHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogHandler{
		logs:       logs,
		subscriber: subscriber,
		heartbeat:  30 * time.Second,
		logger:     logger,
	}
}

// AuditLogQuery filters the audit log
type AuditLogQuery struct {
	dto.PageQuery
	Platform   string     `form:"platform" binding:"omitempty,platform"`
	TraceID    string     `form:"trace_id" binding:"max=100"`
	ExternalID string     `form:"external_id" binding:"max=100"`
	Outcome    string     `form:"outcome" binding:"omitempty,oneof=success failure skipped"`
	Action     string     `form:"action" binding:"max=50"`
	From       *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To         *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

// SyncEventQuery filters the sync event feed
type SyncEventQuery struct {
	dto.PageQuery
	Platform     string     `form:"platform" binding:"omitempty,platform"`
	Status       string     `form:"status" binding:"omitempty,oneof=success failure pending retrying"`
	ProductGroup string     `form:"product_group" binding:"max=50"`
	EventType    string     `form:"event_type" binding:"max=50"`
	ExternalID   string     `form:"external_id" binding:"max=100"`
	From         *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To           *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

// ArchiveRequest selects the audit range to export
// @Description Half-open [from, to) audit range to archive
type ArchiveRequest struct {
	From time.Time `json:"from" binding:"required" example:"2026-09-01T00:00:00Z"`
	To   time.Time `json:"to" binding:"required" example:"2026-10-01T00:00:00Z"`
}

// AuditLogs godoc
// @ID           listAuditLogs
// @Summary      Query the audit log
// @Tags         logs
// @Produce      json
// @Param        platform query string false "Platform" Enums(servicenow, jira)
// @Param        trace_id query string false "Trace ID"
// @Param        external_id query string false "External ticket ID"
// @Param        outcome query string false "Outcome" Enums(success, failure, skipped)
// @Param        from query string false "From (RFC 3339)"
// @Param        to query string false "To (RFC 3339)"
// @Success      200 {object} dto.Response{data=[]AuditLogResponse}
// @Security     BearerAuth
// @Router       /itsm/audit-logs [get]
func (h *LogHandler) AuditLogs(c *gin.Context) {
	orgID, ok := h.RequireOrganization(c)
	if !ok {
		return
	}
	var q AuditLogQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	page := q.PageQuery.Normalize()

	logs, total, err := h.logs.QueryAuditLogs(c.Request.Context(), itsm.AuditLogFilter{
		OrganizationID: orgID,
		Platform:       itsm.Platform(q.Platform),
		TraceID:        q.TraceID,
		ExternalID:     q.ExternalID,
		Outcome:        itsm.AuditOutcome(q.Outcome),
		Action:         q.Action,
		From:           q.From,
		To:             q.To,
		PageRequest:    itsm.PageRequest{Page: page.Page, PageSize: page.PageSize},
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, toAuditLogResponses(logs), total, page.Page, page.PageSize)
}

// SyncEvents godoc
// @ID           listSyncEvents
// @Summary      Query the sync event feed
// @Tags         logs
// @Produce      json
// @Param        platform query string false "Platform" Enums(servicenow, jira)
// @Param        status query string false "Status" Enums(success, failure, pending, retrying)
// @Param        product_group query string false "Product group"
// @Success      200 {object} dto.Response{data=[]SyncEventResponse}
// @Security     BearerAuth
// @Router       /itsm/sync-events [get]
func (h *LogHandler) SyncEvents(c *gin.Context) {
	orgID, ok := h.RequireOrganization(c)
	if !ok {
		return
	}
	var q SyncEventQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	page := q.PageQuery.Normalize()

	events, total, err := h.logs.QuerySyncEvents(c.Request.Context(), itsm.SyncEventFilter{
		OrganizationID: orgID,
		Platform:       itsm.Platform(q.Platform),
		Status:         itsm.SyncEventStatus(q.Status),
		ProductGroup:   q.ProductGroup,
		EventType:      q.EventType,
		ExternalID:     q.ExternalID,
		From:           q.From,
		To:             q.To,
		PageRequest:    itsm.PageRequest{Page: page.Page, PageSize: page.PageSize},
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, toSyncEventResponses(events), total, page.Page, page.PageSize)
}

// Archive godoc
// @ID           archiveAuditLogs
// @Summary      Export an audit range to archive storage as JSON Lines
// @Tags         logs
// @Accept       json
// @Produce      json
// @Param        request body ArchiveRequest true "Range"
// @Success      200 {object} dto.Response{data=itsmapp.ArchiveResult}
// @Failure      400 {object} dto.Response
// @Failure      503 {object} dto.Response
// @Security     BearerAuth
// @Router       /itsm/audit-logs/archive [post]
func (h *LogHandler) Archive(c *gin.Context) {
	orgID, ok := h.RequireOrganization(c)
	if !ok {
		return
	}
	var req ArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	result, err := h.logs.ArchiveAuditLogs(c.Request.Context(), orgID, req.From, req.To)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Stream godoc
// @ID           streamSyncEvents
// @Summary      Stream recorded sync events
// @Description  Server-Sent Events. Each recorded sync event of the caller's organization is sent as a "sync_event" event.
// @Tags         logs
// @Produce      text/event-stream
// @Success      200 {string} string "event stream"
// @Failure      503 {object} dto.Response
// @Security     BearerAuth
// @Router       /itsm/events/stream [get]
func (h *LogHandler) Stream(c *gin.Context) {
	orgID, ok := h.RequireOrganization(c)
	if !ok {
		return
	}
	if h.subscriber == nil {
		h.ErrorWithCode(c, dto.ErrCodeUnavailable, "Event streaming is not enabled")
		return
	}

	events, cancel := h.subscriber.Subscribe(orgID)
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	h.logger.Debug("Sync event stream opened", zap.String("organization_id", orgID.String()))
	writeSSE(c.Writer, "connected", "", fmt.Sprintf(`{"organization_id":%q}`, orgID.String()))
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("Sync event stream closed", zap.String("organization_id", orgID.String()))
			return
		case <-ticker.C:
			_, _ = io.WriteString(c.Writer, ": heartbeat\n\n")
			c.Writer.Flush()
		case evt, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				h.logger.Error("Failed to marshal sync event", zap.Error(err))
				continue
			}
			writeSSE(c.Writer, "sync_event", evt.SyncEventID.String(), string(data))
			c.Writer.Flush()
		}
	}
}

// writeSSE writes one Server-Sent Event frame
func writeSSE(w io.Writer, event, id, data string) {
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	if id != "" {
		fmt.Fprintf(w, "id: %s\n", id)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
