package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	itsmapp "github.com/reddomeuk/redscan-application-sub002/internal/application/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/logger"
	"github.com/reddomeuk/redscan-application-sub002/internal/infrastructure/ticketing"
	"github.com/reddomeuk/redscan-application-sub002/internal/interfaces/http/dto"
)

// WebhookHandlerConfig holds the inbound webhook settings
type WebhookHandlerConfig struct {
	// Secrets holds the per-platform HMAC secret; a missing or empty secret disables verification
	Secrets     map[itsm.Platform]string
	Acknowledge bool
}

// WebhookHandler receives inbound platform webhooks
type WebhookHandler struct {
	BaseHandler
	webhooks *itsmapp.WebhookService
	cfg      WebhookHandlerConfig
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(webhooks *itsmapp.WebhookService, cfg WebhookHandlerConfig) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks, cfg: cfg}
}

// ServiceNow godoc
// @ID           serviceNowWebhook
// @Summary      Receive a ServiceNow webhook
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        org path string true "Organization ID" format(uuid)
// @Param        X-Signature header string false "Hex HMAC-SHA256 of the body"
// @Success      200 {object} dto.Response{data=itsmapp.WebhookResult}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Router       /itsm/webhooks/{org}/servicenow [post]
func (h *WebhookHandler) ServiceNow(c *gin.Context) {
	h.receive(c, itsm.PlatformServiceNow)
}

// Jira godoc
// @ID           jiraWebhook
// @Summary      Receive a Jira webhook
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        org path string true "Organization ID" format(uuid)
// @Param        X-Signature header string false "Hex HMAC-SHA256 of the body"
// @Success      200 {object} dto.Response{data=itsmapp.WebhookResult}
// @Failure      400 {object} dto.Response
// @Failure      401 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Router       /itsm/webhooks/{org}/jira [post]
func (h *WebhookHandler) Jira(c *gin.Context) {
	h.receive(c, itsm.PlatformJira)
}

func (h *WebhookHandler) receive(c *gin.Context, platform itsm.Platform) {
	orgID, err := uuid.Parse(c.Param("org"))
	if err != nil {
		h.BadRequest(c, "Invalid organization ID")
		return
	}

	ctx := c.Request.Context()
	ctx, log := logger.WithOrganizationID(ctx, logger.L(ctx), orgID.String())
	ctx, log = logger.WithPlatform(ctx, log, platform.String())
	c.Request = c.Request.WithContext(ctx)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeBadRequest, "Request body too large")
			return
		}
		h.BadRequest(c, "Unable to read request body")
		return
	}

	if err := ticketing.VerifySignature(h.cfg.Secrets[platform], body, c.GetHeader(ticketing.SignatureHeader)); err != nil {
		log.Warn("Rejected webhook with invalid signature")
		h.Error(c, http.StatusUnauthorized, dto.ErrCodeInvalidSignature, "Webhook signature does not verify")
		return
	}

	result, err := h.webhooks.Process(ctx, orgID, platform, body, itsmapp.WebhookOptions{
		Acknowledge: h.cfg.Acknowledge,
		TraceID:     c.GetHeader("X-Trace-ID"),
	})
	if errors.Is(err, itsm.ErrConnectionNotFound) {
		h.NotFound(c, "No connection is configured for this platform")
		return
	}
	if err != nil {
		log.Error("Webhook processing failed", zap.Error(err))
		h.HandleError(c, err)
		return
	}
	if !result.Success {
		resp := dto.NewErrorResponseWithRequestID(dto.ErrCodeValidation, result.Error, getRequestID(c))
		resp.Data = result
		c.JSON(http.StatusBadRequest, resp)
		return
	}
	h.Success(c, result)
}
