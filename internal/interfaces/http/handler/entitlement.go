package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	billingapp "github.com/promptlab/backend/internal/application/billing"
	"github.com/promptlab/backend/internal/domain/billing"
	"github.com/promptlab/backend/internal/infrastructure/tenantctx"
)

// EntitlementHandler answers entitlement questions for the session's tenant without
// consuming anything
type EntitlementHandler struct {
	BaseHandler
	entitlements *billingapp.EntitlementService
}

// NewEntitlementHandler creates a new EntitlementHandler
func NewEntitlementHandler(entitlements *billingapp.EntitlementService) *EntitlementHandler {
	return &EntitlementHandler{entitlements: entitlements}
}

// CheckQuota godoc
//
//	@Summary	Check a quota
//	@Tags		entitlements
//	@Produce	json
//	@Param		name		path		string	true	"Meter"	Enums(run_count, token_count, test_run_count)
//	@Param		requested	query		int		false	"Units to check for"	default(1)
//	@Success	200			{object}	dto.Response{data=billing.QuotaDecision}
//	@Failure	400			{object}	dto.Response{error=dto.ErrorInfo}
//	@Security	BearerAuth
//	@Router		/entitlements/quotas/{name} [get]
func (h *EntitlementHandler) CheckQuota(c *gin.Context) {
	meter := billing.Meter(c.Param("name"))
	if !meter.IsValid() {
		h.BadRequest(c, "Unknown quota "+string(meter))
		return
	}
	requested := int64(1)
	if raw := c.Query("requested"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 {
			h.BadRequest(c, "Invalid requested")
			return
		}
		requested = n
	}

	ctx := c.Request.Context()
	tenantID, err := tenantctx.MustCurrent(ctx)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return
	}
	d, err := h.entitlements.CheckQuota(ctx, tenantID, meter, requested, map[string]any{"source": "api"})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, d)
}

// CheckFeature godoc
//
//	@Summary	Check a feature
//	@Tags		entitlements
//	@Produce	json
//	@Param		name	path		string	true	"Feature, e.g. provider:anthropic"
//	@Success	200		{object}	dto.Response{data=billing.EntitlementDecision}
//	@Security	BearerAuth
//	@Router		/entitlements/features/{name} [get]
func (h *EntitlementHandler) CheckFeature(c *gin.Context) {
	feature := c.Param("name")
	ctx := c.Request.Context()
	tenantID, err := tenantctx.MustCurrent(ctx)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return
	}
	d, err := h.entitlements.CheckFeatureAccess(ctx, tenantID, feature, map[string]any{"source": "api"})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, d)
}

// Usage returns the tenant's plan and usage for the current period
//
//	@Summary	Current usage
//	@Tags		entitlements
//	@Produce	json
//	@Success	200	{object}	dto.Response{data=billing.UsageCapabilities}
//	@Security	BearerAuth
//	@Router		/usage [get]
func (h *EntitlementHandler) Usage(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID, err := tenantctx.MustCurrent(ctx)
	if err != nil {
		h.Unauthorized(c, err.Error())
		return
	}
	caps, err := h.entitlements.Capabilities(ctx, tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, caps)
}
