// Package handler holds the gin handlers of the sync API.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	itsmapp "github.com/reddomeuk/redscan-application-sub002/internal/application/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/interfaces/http/dto"
	"github.com/reddomeuk/redscan-application-sub002/internal/interfaces/http/middleware"
)

// errMissingOrganization is returned when no organization can be resolved for a request
var errMissingOrganization = errors.New("organization ID not found in context")

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDKey); id != "" {
		return id
	}
	return c.GetHeader(middleware.RequestIDKey)
}

// getOrganizationID extracts the organization from the JWT claims
func getOrganizationID(c *gin.Context) (uuid.UUID, error) {
	orgID := middleware.GetJWTOrganizationID(c)
	if orgID == "" {
		return uuid.Nil, errMissingOrganization
	}
	return uuid.Parse(orgID)
}

// getUserEmail returns the acting user's email for audit entries
func getUserEmail(c *gin.Context) string {
	return middleware.GetJWTEmail(c)
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// ErrorWithCode sends an error response, deriving status code from error
// code. Codes outside the API set are reported as ERR_INTERNAL.
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	if !dto.KnownCode(code) {
		code = dto.ErrCodeInternal
	}
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// Unauthorized sends a 401 unauthorized response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// ValidationError sends a 400 validation error response with details
func (h *BaseHandler) ValidationError(c *gin.Context, details []dto.ValidationDetail) {
	c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse(
		"Request validation failed",
		getRequestID(c),
		details,
	))
}

// BindError reports a request body or query that failed binding
func (h *BaseHandler) BindError(c *gin.Context, err error) {
	middleware.HandleValidationError(c, err)
}

// RequireOrganization resolves the caller's organization or writes a 401.
// The boolean is false when the handler must return.
func (h *BaseHandler) RequireOrganization(c *gin.Context) (uuid.UUID, bool) {
	orgID, err := getOrganizationID(c)
	if err != nil {
		h.Unauthorized(c, "Token carries no valid organization")
		return uuid.Nil, false
	}
	return orgID, true
}

// RequirePlatform parses the :platform path parameter or writes a 400
func (h *BaseHandler) RequirePlatform(c *gin.Context) (itsm.Platform, bool) {
	platform, err := itsm.ParsePlatform(c.Param("platform"))
	if err != nil {
		h.BadRequest(c, "Unsupported platform: "+c.Param("platform"))
		return "", false
	}
	return platform, true
}

// RequireUUIDParam parses a UUID path parameter or writes a 400
func (h *BaseHandler) RequireUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.BadRequest(c, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// HandleError converts service errors into HTTP responses
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	code, status, message := classifyError(err)
	h.Error(c, status, code, message)
}

// classifyError maps the sync error taxonomy to an API error code, status and message
func classifyError(err error) (code string, status int, message string) {
	var (
		ve *itsm.ValidationError
		pe *itsm.PermissionError
		le *itsm.PlanLimitError
		te *itsm.TransientError
	)
	switch {
	case errors.As(err, &ve):
		if ve.Code == itsm.CodeSyncDisabled {
			return dto.ErrCodeSyncDisabled, http.StatusUnprocessableEntity, ve.Message
		}
		return dto.ErrCodeValidation, http.StatusBadRequest, ve.Error()
	case errors.Is(err, itsm.ErrSyncDisabled):
		return dto.ErrCodeSyncDisabled, http.StatusUnprocessableEntity, err.Error()

	case errors.Is(err, itsm.ErrConnectionNotFound),
		errors.Is(err, itsm.ErrMappingNotFound),
		errors.Is(err, itsm.ErrQueueItemNotFound),
		errors.Is(err, itsm.ErrTicketNotFound),
		errors.Is(err, itsm.ErrNoDefaultTemplate):
		return dto.ErrCodeNotFound, http.StatusNotFound, err.Error()

	case errors.Is(err, itsm.ErrDuplicateMapping):
		return dto.ErrCodeAlreadyExists, http.StatusConflict, err.Error()
	case errors.Is(err, itsm.ErrQueueItemInFlight):
		return dto.ErrCodeConflict, http.StatusConflict, err.Error()
	case errors.Is(err, itsm.ErrInvalidQueueTransition),
		errors.Is(err, itsm.ErrExternalIDImmutable):
		return dto.ErrCodeInvalidState, http.StatusUnprocessableEntity, err.Error()

	case errors.Is(err, itsm.ErrInvalidPlatform),
		errors.Is(err, itsm.ErrInvalidOrganization),
		errors.Is(err, itsm.ErrInvalidInstanceURL),
		errors.Is(err, itsm.ErrInvalidCredentialRef),
		errors.Is(err, itsm.ErrInvalidConnectionStatus),
		errors.Is(err, itsm.ErrUnknownProductGroup),
		errors.Is(err, itsm.ErrInvalidFieldType),
		errors.Is(err, itsm.ErrMissingFieldName),
		errors.Is(err, itsm.ErrInvalidTransformRule),
		errors.Is(err, itsm.ErrInvalidAction),
		errors.Is(err, itsm.ErrMissingTicketID),
		errors.Is(err, itsm.ErrInvalidMaxAttempts),
		errors.Is(err, itsm.ErrExternalIDRequired),
		errors.Is(err, itsmapp.ErrInvalidArchiveRange):
		return dto.ErrCodeInvalidInput, http.StatusBadRequest, err.Error()

	case errors.As(err, &pe):
		// the platform rejected our credentials; the caller itself is authorized
		return dto.ErrCodeUpstream, http.StatusBadGateway, pe.Error()
	case errors.As(err, &le):
		return dto.ErrCodePaymentRequired, http.StatusPaymentRequired, le.Error()
	case errors.As(err, &te):
		if te.StatusCode == http.StatusTooManyRequests || te.StatusCode == 0 {
			return dto.ErrCodeUpstream, http.StatusServiceUnavailable, te.Error()
		}
		return dto.ErrCodeUpstream, http.StatusBadGateway, te.Error()

	case errors.Is(err, itsmapp.ErrArchiveDisabled),
		errors.Is(err, itsm.ErrAdapterNotFound),
		errors.Is(err, itsm.ErrNormalizerNotFound):
		return dto.ErrCodeUnavailable, http.StatusServiceUnavailable, err.Error()
	}
	return dto.ErrCodeInternal, http.StatusInternalServerError, "An unexpected error occurred"
}
