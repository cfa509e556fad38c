package handler

import (
	"github.com/gin-gonic/gin"

	itsmapp "github.com/reddomeuk/redscan-application-sub002/internal/application/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/telemetry"
	"github.com/reddomeuk/redscan-application-sub002/internal/interfaces/http/dto"
)

// QueueHandler handles outbound sync queue endpoints
type QueueHandler struct {
	BaseHandler
	queue *itsmapp.SyncQueueService
}

// NewQueueHandler creates a new QueueHandler
func NewQueueHandler(queue *itsmapp.SyncQueueService) *QueueHandler {
	return &QueueHandler{queue: queue}
}

// EnqueueRequest queues one outbound change
// @Description Request body for queueing an outbound change
type EnqueueRequest struct {
	Platform    string         `json:"platform" binding:"required,platform" example:"servicenow"`
	Action      string         `json:"action" binding:"required,oneof=create update comment sync_response" example:"create"`
	TicketID    string         `json:"ticket_id" binding:"required,max=100" example:"FND-1042"`
	ExternalID  string         `json:"external_id" binding:"max=100" example:"INC0010023"`
	Category    string         `json:"category" binding:"max=50" example:"sast"`
	Record      map[string]any `json:"record"`
	MaxAttempts int            `json:"max_attempts" binding:"omitempty,min=1,max=10" example:"3"`
}

// QueueListQuery filters the queue listing
type QueueListQuery struct {
	dto.PageQuery
	Platform  string `form:"platform" binding:"omitempty,platform"`
	Status    string `form:"status" binding:"omitempty,oneof=pending processing completed failed cancelled"`
	TicketID  string `form:"ticket_id" binding:"max=100"`
	SortBy    string `form:"sort_by" binding:"omitempty,oneof=created_at updated_at next_retry_at attempts ticket_id status"`
	SortOrder string `form:"sort_order" binding:"omitempty,oneof=asc desc"`
}

// RetryAllRequest requeues every failed item of a platform
// @Description Request body for retry-all
type RetryAllRequest struct {
	Platform string `json:"platform" binding:"required,platform" example:"jira"`
}

// CountData carries a count result
type CountData struct {
	Count int `json:"count"`
}

// Enqueue godoc
// @ID           enqueueSync
// @Summary      Queue an outbound change
// @Description  The record is resolved through the field mappings before it is stored.
// @Tags         queue
// @Accept       json
// @Produce      json
// @Param        request body EnqueueRequest true "Outbound change"
// @Success      201 {object} dto.Response{data=QueueItemResponse}
// @Failure      400 {object} dto.Response
// @Failure      422 {object} dto.Response
// @Security     BearerAuth
// @Router       /itsm/queue [post]
func (h *QueueHandler) Enqueue(c *gin.Context) {
	orgID, ok := h.RequireOrganization(c)
	if !ok {
		return
	}
	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	item, err := h.queue.Enqueue(c.Request.Context(), orgID, itsmapp.EnqueueRequest{
		Platform:    itsm.Platform(req.Platform),
		Action:      itsm.SyncAction(req.Action),
		TicketID:    req.TicketID,
		ExternalID:  req.ExternalID,
		Category:    req.Category,
		Record:      itsm.Record(req.Record),
		MaxAttempts: req.MaxAttempts,
		TraceID:     telemetry.TraceID(c.Request.Context()),
		UserEmail:   getUserEmail(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toQueueItemResponse(item))
}

// List godoc
// @ID           listQueue
// @Summary      List queue items
// @Tags         queue
// @Produce      json
// @Param        platform query string false "Platform" Enums(servicenow, jira)
// @Param        status query string false "Status" Enums(pending, processing, completed, failed, cancelled)
// @Param        ticket_id query string false "Internal ticket ID"
// @Param        sort_by query string false "Sort column" Enums(created_at, updated_at, next_retry_at, attempts, ticket_id, status)
// @Param        sort_order query string false "Sort direction" Enums(asc, desc)
// @Param        page query int false "Page" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Success      200 {object} dto.Response{data=[]QueueItemResponse}
// @Security     BearerAuth
// @Router       /itsm/queue [get]
func (h *QueueHandler) List(c *gin.Context) {
	orgID, ok := h.RequireOrganization(c)
	if !ok {
		return
	}
	var q QueueListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.BindError(c, err)
		return
	}
	page := q.PageQuery.Normalize()

	items, total, err := h.queue.List(c.Request.Context(), itsm.QueueFilter{
		OrganizationID: orgID,
		Platform:       itsm.Platform(q.Platform),
		Status:         itsm.QueueStatus(q.Status),
		TicketID:       q.TicketID,
		SortBy:         q.SortBy,
		SortOrder:      q.SortOrder,
		PageRequest:    itsm.PageRequest{Page: page.Page, PageSize: page.PageSize},
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, toQueueItemResponses(items), total, page.Page, page.PageSize)
}

// Stats godoc
// @ID           queueStats
// @Summary      Count queue items per status
// @Tags         queue
// @Produce      json
// @Success      200 {object} dto.Response{data=itsmapp.QueueStats}
// @Security     BearerAuth
// @Router       /itsm/queue/stats [get]
func (h *QueueHandler) Stats(c *gin.Context) {
	orgID, ok := h.RequireOrganization(c)
	if !ok {
		return
	}
	stats, err := h.queue.Stats(c.Request.Context(), orgID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}

// Get godoc
// @ID           getQueueItem
// @Summary      Get a queue item
// @Tags         queue
// @Produce      json
// @Param        id path string true "Queue item ID" format(uuid)
// @Success      200 {object} dto.Response{data=QueueItemResponse}
// @Failure      404 {object} dto.Response
// @Security     BearerAuth
// @Router       /itsm/queue/{id} [get]
func (h *QueueHandler) Get(c *gin.Context) {
	orgID, ok := h.RequireOrganization(c)
	if !ok {
		return
	}
	id, ok := h.RequireUUIDParam(c, "id")
	if !ok {
		return
	}
	item, err := h.queue.Get(c.Request.Context(), orgID, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toQueueItemResponse(item))
}

// Cancel godoc
// @ID           cancelQueueItem
// @Summary      Cancel a pending or failed queue item
// @Tags         queue
// @Produce      json
// @Param        id path string true "Queue item ID" format(uuid)
// @Success      200 {object} dto.Response{data=QueueItemResponse}
// @Failure      409 {object} dto.Response
// @Failure      422 {object} dto.Response
// @Security     BearerAuth
// @Router       /itsm/queue/{id}/cancel [post]
func (h *QueueHandler) Cancel(c *gin.Context) {
	orgID, ok := h.RequireOrganization(c)
	if !ok {
		return
	}
	id, ok := h.RequireUUIDParam(c, "id")
	if !ok {
		return
	}
	item, err := h.queue.Cancel(c.Request.Context(), orgID, id, getUserEmail(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toQueueItemResponse(item))
}

// Retry godoc
// @ID           retryQueueItem
// @Summary      Requeue a failed or cancelled item
// @Tags         queue
// @Produce      json
// @Param        id path string true "Queue item ID" format(uuid)
// @Success      200 {object} dto.Response{data=QueueItemResponse}
// @Failure      422 {object} dto.Response
// @Security     BearerAuth
// @Router       /itsm/queue/{id}/retry [post]
func (h *QueueHandler) Retry(c *gin.Context) {
	orgID, ok := h.RequireOrganization(c)
	if !ok {
		return
	}
	id, ok := h.RequireUUIDParam(c, "id")
	if !ok {
		return
	}
	item, err := h.queue.Retry(c.Request.Context(), orgID, id, getUserEmail(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toQueueItemResponse(item))
}

// RetryAll godoc
// @ID           retryAllQueueItems
// @Summary      Requeue every failed item of a platform
// @Tags         queue
// @Accept       json
// @Produce      json
// @Param        request body RetryAllRequest true "Platform"
// @Success      200 {object} dto.Response{data=CountData}
// @Security     BearerAuth
// @Router       /itsm/queue/retry-all [post]
func (h *QueueHandler) RetryAll(c *gin.Context) {
	orgID, ok := h.RequireOrganization(c)
	if !ok {
		return
	}
	var req RetryAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	n, err := h.queue.RetryAll(c.Request.Context(), orgID, itsm.Platform(req.Platform), getUserEmail(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, CountData{Count: n})
}
