package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	itsmapp "github.com/reddomeuk/redscan-application-sub002/internal/application/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
)

// ConnectionHandler handles platform connection endpoints
type ConnectionHandler struct {
	BaseHandler
	connections *itsmapp.ConnectionService
}

// NewConnectionHandler creates a new ConnectionHandler
func NewConnectionHandler(connections *itsmapp.ConnectionService) *ConnectionHandler {
	return &ConnectionHandler{connections: connections}
}

// ConfigureConnectionRequest configures a platform connection
// @Description Request body for configuring a platform connection
type ConfigureConnectionRequest struct {
	InstanceURL           string `json:"instance_url" binding:"required,url,max=500" example:"https://acme.atlassian.net"`
	CredentialRef         string `json:"credential_ref" binding:"required,max=200" example:"vault:itsm/acme/jira"`
	SyncEnabled           *bool  `json:"sync_enabled" example:"true"`
	AutoAssignmentEnabled *bool  `json:"auto_assignment_enabled" example:"false"`
}

// ProductGroupSyncRequest toggles sync for one product group
// @Description Request body for a product group sync toggle
type ProductGroupSyncRequest struct {
	Enabled *bool `json:"enabled" binding:"required" example:"false"`
}

// List godoc
// @ID           listConnections
// @Summary      List platform connections
// @Tags         connections
// @Produce      json
// @Success      200 {object} dto.Response{data=[]ConnectionResponse}
// @Failure      401 {object} dto.Response
// @Security     BearerAuth
// @Router       /itsm/connections [get]
func (h *ConnectionHandler) List(c *gin.Context) {
	orgID, ok := h.RequireOrganization(c)
	if !ok {
		return
	}
	conns, err := h.connections.List(c.Request.Context(), orgID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toConnectionResponses(conns))
}

// Get godoc
// @ID           getConnection
// @Summary      Get the connection of a platform
// @Tags         connections
// @Produce      json
// @Param        platform path string true "Platform" Enums(servicenow, jira)
// @Success      200 {object} dto.Response{data=ConnectionResponse}
// @Failure      404 {object} dto.Response
// @Security     BearerAuth
// @Router       /itsm/connections/{platform} [get]
func (h *ConnectionHandler) Get(c *gin.Context) {
	orgID, ok := h.RequireOrganization(c)
	if !ok {
		return
	}
	platform, ok := h.RequirePlatform(c)
	if !ok {
		return
	}
	conn, err := h.connections.Get(c.Request.Context(), orgID, platform)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toConnectionResponse(conn))
}

// Configure godoc
// @ID           configureConnection
// @Summary      Create or update the connection of a platform
// @Tags         connections
// @Accept       json
// @Produce      json
// @Param        platform path string true "Platform" Enums(servicenow, jira)
// @Param        request body ConfigureConnectionRequest true "Connection settings"
// @Success      200 {object} dto.Response{data=ConnectionResponse}
// @Failure      400 {object} dto.Response
// @Security     BearerAuth
// @Router       /itsm/connections/{platform} [put]
func (h *ConnectionHandler) Configure(c *gin.Context) {
	orgID, ok := h.RequireOrganization(c)
	if !ok {
		return
	}
	platform, ok := h.RequirePlatform(c)
	if !ok {
		return
	}
	var req ConfigureConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	conn, err := h.connections.Configure(c.Request.Context(), orgID, platform, itsmapp.ConfigureConnectionInput{
		InstanceURL:           req.InstanceURL,
		CredentialRef:         req.CredentialRef,
		SyncEnabled:           req.SyncEnabled,
		AutoAssignmentEnabled: req.AutoAssignmentEnabled,
		UserEmail:             getUserEmail(c),
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toConnectionResponse(conn))
}

// Connect godoc
// @ID           connectConnection
// @Summary      Verify credentials and mark the connection connected
// @Tags         connections
// @Produce      json
// @Param        platform path string true "Platform" Enums(servicenow, jira)
// @Success      200 {object} dto.Response{data=ConnectionResponse}
// @Failure      502 {object} dto.Response
// @Security     BearerAuth
// @Router       /itsm/connections/{platform}/connect [post]
func (h *ConnectionHandler) Connect(c *gin.Context) {
	h.transition(c, h.connections.Connect)
}

// Test godoc
// @ID           testConnection
// @Summary      Test a platform connection
// @Tags         connections
// @Produce      json
// @Param        platform path string true "Platform" Enums(servicenow, jira)
// @Success      200 {object} dto.Response{data=ConnectionResponse}
// @Security     BearerAuth
// @Router       /itsm/connections/{platform}/test [post]
func (h *ConnectionHandler) Test(c *gin.Context) {
	h.transition(c, h.connections.Test)
}

// Disconnect godoc
// @ID           disconnectConnection
// @Summary      Disconnect a platform
// @Tags         connections
// @Produce      json
// @Param        platform path string true "Platform" Enums(servicenow, jira)
// @Success      200 {object} dto.Response{data=ConnectionResponse}
// @Security     BearerAuth
// @Router       /itsm/connections/{platform}/disconnect [post]
func (h *ConnectionHandler) Disconnect(c *gin.Context) {
	h.transition(c, h.connections.Disconnect)
}

type connectionOp func(ctx context.Context, orgID uuid.UUID, platform itsm.Platform, userEmail string) (*itsm.Connection, error)

func (h *ConnectionHandler) transition(c *gin.Context, op connectionOp) {
	orgID, ok := h.RequireOrganization(c)
	if !ok {
		return
	}
	platform, ok := h.RequirePlatform(c)
	if !ok {
		return
	}
	conn, err := op(c.Request.Context(), orgID, platform, getUserEmail(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toConnectionResponse(conn))
}

// SetProductGroupSync godoc
// @ID           setProductGroupSync
// @Summary      Enable or disable sync for one product group
// @Tags         connections
// @Accept       json
// @Produce      json
// @Param        platform path string true "Platform" Enums(servicenow, jira)
// @Param        group path string true "Product group" Enums(devsecops, devops, endpoint, unknown)
// @Param        request body ProductGroupSyncRequest true "Toggle"
// @Success      200 {object} dto.Response{data=ConnectionResponse}
// @Failure      400 {object} dto.Response
// @Security     BearerAuth
// @Router       /itsm/connections/{platform}/product-groups/{group} [put]
func (h *ConnectionHandler) SetProductGroupSync(c *gin.Context) {
	orgID, ok := h.RequireOrganization(c)
	if !ok {
		return
	}
	platform, ok := h.RequirePlatform(c)
	if !ok {
		return
	}
	var req ProductGroupSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	conn, err := h.connections.SetProductGroupSync(c.Request.Context(), orgID, platform,
		c.Param("group"), *req.Enabled, getUserEmail(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toConnectionResponse(conn))
}
