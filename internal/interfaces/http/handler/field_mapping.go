package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	itsmapp "github.com/reddomeuk/redscan-application-sub002/internal/application/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/interfaces/http/dto"
)

// maxImportFileSize bounds uploaded mapping CSV files
const maxImportFileSize = 1 << 20

// FieldMappingHandler handles field mapping endpoints
type FieldMappingHandler struct {
	BaseHandler
	mappings *itsmapp.FieldMappingService
}

// NewFieldMappingHandler creates a new FieldMappingHandler
func NewFieldMappingHandler(mappings *itsmapp.FieldMappingService) *FieldMappingHandler {
	return &FieldMappingHandler{mappings: mappings}
}

// FieldMappingRequest creates or updates a field mapping
// @Description Request body for a field mapping
type FieldMappingRequest struct {
	InternalField string `json:"internal_field" binding:"required,max=100" example:"severity"`
	ExternalField string `json:"external_field" binding:"required,max=100" example:"urgency"`
	FieldType     string `json:"field_type" binding:"omitempty,field_type" example:"string"`
	IsRequired    bool   `json:"is_required" example:"false"`
	TransformRule string `json:"transform_rule" binding:"max=1000" example:"critical->1,high->2"`
	Notes         string `json:"notes" binding:"max=500"`
	Position      int    `json:"position" binding:"min=0"`
}

func (r FieldMappingRequest) toInput() itsmapp.FieldMappingInput {
	return itsmapp.FieldMappingInput{
		InternalField: r.InternalField,
		ExternalField: r.ExternalField,
		FieldType:     r.FieldType,
		IsRequired:    r.IsRequired,
		TransformRule: r.TransformRule,
		Notes:         r.Notes,
		Position:      r.Position,
	}
}

// ResolveRequest carries an internal record to translate
// @Description Internal record to resolve through the field mappings
type ResolveRequest struct {
	Record map[string]any `json:"record" binding:"required"`
}

// List godoc
// @ID           listFieldMappings
// @Summary      List the field mappings of a platform
// @Tags         field-mappings
// @Produce      json
// @Param        platform path string true "Platform" Enums(servicenow, jira)
// @Success      200 {object} dto.Response{data=[]FieldMappingResponse}
// @Security     BearerAuth
// @Router       /itsm/field-mappings/{platform} [get]
func (h *FieldMappingHandler) List(c *gin.Context) {
	orgID, platform, ok := h.scope(c)
	if !ok {
		return
	}
	mappings, err := h.mappings.List(c.Request.Context(), orgID, platform)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toFieldMappingResponses(mappings))
}

// Create godoc
// @ID           createFieldMapping
// @Summary      Add a field mapping
// @Tags         field-mappings
// @Accept       json
// @Produce      json
// @Param        platform path string true "Platform" Enums(servicenow, jira)
// @Param        request body FieldMappingRequest true "Mapping"
// @Success      201 {object} dto.Response{data=FieldMappingResponse}
// @Failure      400 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Security     BearerAuth
// @Router       /itsm/field-mappings/{platform} [post]
func (h *FieldMappingHandler) Create(c *gin.Context) {
	orgID, platform, ok := h.scope(c)
	if !ok {
		return
	}
	var req FieldMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	mapping, err := h.mappings.Create(c.Request.Context(), orgID, platform, req.toInput())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toFieldMappingResponse(mapping))
}

// Update godoc
// @ID           updateFieldMapping
// @Summary      Update a field mapping
// @Tags         field-mappings
// @Accept       json
// @Produce      json
// @Param        platform path string true "Platform" Enums(servicenow, jira)
// @Param        id path string true "Mapping ID" format(uuid)
// @Param        request body FieldMappingRequest true "Mapping"
// @Success      200 {object} dto.Response{data=FieldMappingResponse}
// @Failure      404 {object} dto.Response
// @Security     BearerAuth
// @Router       /itsm/field-mappings/{platform}/{id} [put]
func (h *FieldMappingHandler) Update(c *gin.Context) {
	orgID, _, ok := h.scope(c)
	if !ok {
		return
	}
	id, ok := h.RequireUUIDParam(c, "id")
	if !ok {
		return
	}
	var req FieldMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	mapping, err := h.mappings.Update(c.Request.Context(), orgID, id, req.toInput())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toFieldMappingResponse(mapping))
}

// Delete godoc
// @ID           deleteFieldMapping
// @Summary      Delete a field mapping
// @Tags         field-mappings
// @Param        platform path string true "Platform" Enums(servicenow, jira)
// @Param        id path string true "Mapping ID" format(uuid)
// @Success      204
// @Failure      404 {object} dto.Response
// @Security     BearerAuth
// @Router       /itsm/field-mappings/{platform}/{id} [delete]
func (h *FieldMappingHandler) Delete(c *gin.Context) {
	orgID, _, ok := h.scope(c)
	if !ok {
		return
	}
	id, ok := h.RequireUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.mappings.Delete(c.Request.Context(), orgID, id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Reset godoc
// @ID           resetFieldMappings
// @Summary      Replace the platform's mappings with the default template
// @Tags         field-mappings
// @Produce      json
// @Param        platform path string true "Platform" Enums(servicenow, jira)
// @Success      200 {object} dto.Response{data=[]FieldMappingResponse}
// @Security     BearerAuth
// @Router       /itsm/field-mappings/{platform}/reset [post]
func (h *FieldMappingHandler) Reset(c *gin.Context) {
	orgID, platform, ok := h.scope(c)
	if !ok {
		return
	}
	mappings, err := h.mappings.ResetToDefault(c.Request.Context(), orgID, platform, getUserEmail(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toFieldMappingResponses(mappings))
}

// Resolve godoc
// @ID           resolveFieldMappings
// @Summary      Preview the platform payload of an internal record
// @Tags         field-mappings
// @Accept       json
// @Produce      json
// @Param        platform path string true "Platform" Enums(servicenow, jira)
// @Param        request body ResolveRequest true "Record"
// @Success      200 {object} dto.Response{data=map[string]any}
// @Failure      400 {object} dto.Response
// @Security     BearerAuth
// @Router       /itsm/field-mappings/{platform}/resolve [post]
func (h *FieldMappingHandler) Resolve(c *gin.Context) {
	orgID, platform, ok := h.scope(c)
	if !ok {
		return
	}
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	payload, err := h.mappings.Resolve(c.Request.Context(), orgID, platform, itsm.Record(req.Record))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, payload)
}

// Import godoc
// @ID           importFieldMappings
// @Summary      Import field mappings from CSV
// @Description  Rows are validated one by one. With replace=true the valid rows replace the platform's mappings.
// @Tags         field-mappings
// @Accept       multipart/form-data
// @Produce      json
// @Param        platform path string true "Platform" Enums(servicenow, jira)
// @Param        file formData file true "CSV file"
// @Param        replace query bool false "Replace existing mappings"
// @Success      200 {object} dto.Response{data=itsmapp.ImportResult}
// @Failure      400 {object} dto.Response
// @Security     BearerAuth
// @Router       /itsm/field-mappings/{platform}/import [post]
func (h *FieldMappingHandler) Import(c *gin.Context) {
	orgID, platform, ok := h.scope(c)
	if !ok {
		return
	}
	replace, _ := strconv.ParseBool(c.DefaultQuery("replace", "false"))

	header, err := c.FormFile("file")
	if err != nil {
		h.BadRequest(c, "A CSV file is required in the \"file\" form field")
		return
	}
	if header.Size > maxImportFileSize {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeBadRequest,
			fmt.Sprintf("CSV file exceeds %d bytes", maxImportFileSize))
		return
	}
	file, err := header.Open()
	if err != nil {
		h.BadRequest(c, "Unable to read the uploaded file")
		return
	}
	defer file.Close()

	result, err := h.mappings.ImportCSV(c.Request.Context(), orgID, platform, file, replace, getUserEmail(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Export godoc
// @ID           exportFieldMappings
// @Summary      Export field mappings as CSV
// @Tags         field-mappings
// @Produce      text/csv
// @Param        platform path string true "Platform" Enums(servicenow, jira)
// @Success      200 {file} file
// @Security     BearerAuth
// @Router       /itsm/field-mappings/{platform}/export [get]
func (h *FieldMappingHandler) Export(c *gin.Context) {
	orgID, platform, ok := h.scope(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.mappings.ExportCSV(c.Request.Context(), orgID, platform, &buf); err != nil {
		h.HandleError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-field-mappings.csv"`, platform))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (h *FieldMappingHandler) scope(c *gin.Context) (orgID uuid.UUID, platform itsm.Platform, ok bool) {
	if orgID, ok = h.RequireOrganization(c); !ok {
		return
	}
	platform, ok = h.RequirePlatform(c)
	return
}
