package handler

import (
	"github.com/gin-gonic/gin"
	identityapp "github.com/promptlab/backend/internal/application/identity"
	"github.com/promptlab/backend/internal/domain/billing"
	"github.com/promptlab/backend/internal/infrastructure/tenantctx"
)

// TenantHandler serves the session's own tenant
type TenantHandler struct {
	BaseHandler
	tenants *identityapp.TenantService
}

// NewTenantHandler creates a new TenantHandler
func NewTenantHandler(tenants *identityapp.TenantService) *TenantHandler {
	return &TenantHandler{tenants: tenants}
}

// Get godoc
//
//	@Summary	Get the current tenant
//	@Tags		tenant
//	@Produce	json
//	@Success	200	{object}	dto.Response{data=identityapp.TenantResponse}
//	@Security	BearerAuth
//	@Router		/tenant [get]
func (h *TenantHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	id, err := tenantctx.MustCurrent(ctx)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return
	}

	t, err := h.tenants.Get(ctx, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, t)
}

// ChangePlan godoc
//
//	@Summary		Change the current tenant's plan
//	@Description	Requires the owner or admin role. Takes effect for the next entitlement check.
//	@Tags			tenant
//	@Accept			json
//	@Produce		json
//	@Param			request	body		identityapp.ChangePlanRequest	true	"New plan"
//	@Success		200		{object}	dto.Response{data=identityapp.TenantResponse}
//	@Failure		400		{object}	dto.Response{error=dto.ErrorInfo}
//	@Failure		403		{object}	dto.Response{error=dto.ErrorInfo}
//	@Security		BearerAuth
//	@Router			/tenant/plan [put]
func (h *TenantHandler) ChangePlan(c *gin.Context) {
	var req identityapp.ChangePlanRequest
	if !h.BindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	id, err := tenantctx.MustCurrent(ctx)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return
	}

	t, err := h.tenants.ChangePlan(ctx, id, billing.PlanID(req.Plan))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, t)
}
