package handler

import (
	"github.com/gin-gonic/gin"

	itsmapp "github.com/reddomeuk/redscan-application-sub002/internal/application/itsm"
	"github.com/reddomeuk/redscan-application-sub002/internal/domain/itsm"
)

// RoutingHandler exposes the routing table and the conflict policies
type RoutingHandler struct {
	BaseHandler
	policies *itsmapp.ConflictPolicyService
}

// NewRoutingHandler creates a new RoutingHandler
func NewRoutingHandler(policies *itsmapp.ConflictPolicyService) *RoutingHandler {
	return &RoutingHandler{policies: policies}
}

// RoutingTableResponse lists the routing rules and product groups
// @Description Static category routing table
type RoutingTableResponse struct {
	Rules         []itsm.RoutingRule `json:"rules"`
	ProductGroups []string           `json:"product_groups"`
}

// UpdateConflictPoliciesRequest toggles merge policies; omitted fields stay unchanged
// @Description Conflict policy toggles
type UpdateConflictPoliciesRequest struct {
	Comments *bool `json:"comments" example:"true"`
	Status   *bool `json:"status" example:"true"`
	Priority *bool `json:"priority" example:"false"`
}

// Rules godoc
// @ID           listRoutingRules
// @Summary      List the routing rules
// @Tags         routing
// @Produce      json
// @Success      200 {object} dto.Response{data=RoutingTableResponse}
// @Security     BearerAuth
// @Router       /itsm/routing [get]
func (h *RoutingHandler) Rules(c *gin.Context) {
	h.Success(c, RoutingTableResponse{
		Rules:         itsm.RoutingRules(),
		ProductGroups: itsm.ProductGroups(),
	})
}

// Route godoc
// @ID           routeCategory
// @Summary      Resolve the product group and assignee of a category
// @Description  Unknown categories resolve to the "unknown" group and the default assignee.
// @Tags         routing
// @Produce      json
// @Param        category path string true "Finding category"
// @Success      200 {object} dto.Response{data=itsm.Assignment}
// @Security     BearerAuth
// @Router       /itsm/routing/{category} [get]
func (h *RoutingHandler) Route(c *gin.Context) {
	h.Success(c, itsm.Route(c.Param("category")))
}

// GetConflictPolicies godoc
// @ID           getConflictPolicies
// @Summary      Get the organization's conflict policies
// @Tags         conflict-policies
// @Produce      json
// @Success      200 {object} dto.Response{data=itsm.ConflictPolicies}
// @Security     BearerAuth
// @Router       /itsm/conflict-policies [get]
func (h *RoutingHandler) GetConflictPolicies(c *gin.Context) {
	orgID, ok := h.RequireOrganization(c)
	if !ok {
		return
	}
	policies, err := h.policies.Get(c.Request.Context(), orgID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, policies)
}

// UpdateConflictPolicies godoc
// @ID           updateConflictPolicies
// @Summary      Update the organization's conflict policies
// @Tags         conflict-policies
// @Accept       json
// @Produce      json
// @Param        request body UpdateConflictPoliciesRequest true "Toggles"
// @Success      200 {object} dto.Response{data=itsm.ConflictPolicies}
// @Security     BearerAuth
// @Router       /itsm/conflict-policies [put]
func (h *RoutingHandler) UpdateConflictPolicies(c *gin.Context) {
	orgID, ok := h.RequireOrganization(c)
	if !ok {
		return
	}
	var req UpdateConflictPoliciesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}
	policies, err := h.policies.Update(c.Request.Context(), orgID, itsmapp.UpdateConflictPoliciesInput{
		Comments: req.Comments,
		Status:   req.Status,
		Priority: req.Priority,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, policies)
}
