package handler

import (
	"github.com/gin-gonic/gin"
	billingapp "github.com/promptlab/backend/internal/application/billing"
	"github.com/promptlab/backend/internal/domain/billing"
)

// LinkMeterRequest points a meter at a metered price item
type LinkMeterRequest struct {
	ItemID string `json:"item_id" binding:"required,max=100"`
}

// BillingHandler manages how the tenant's meters map onto billing provider items
type BillingHandler struct {
	BaseHandler
	exports *billingapp.UsageExportService
}

// NewBillingHandler creates a new BillingHandler
func NewBillingHandler(exports *billingapp.UsageExportService) *BillingHandler {
	return &BillingHandler{exports: exports}
}

// ListMeters godoc
//
//	@Summary	List exported meters
//	@Tags		billing
//	@Produce	json
//	@Success	200	{object}	dto.Response{data=[]billing.MeterSubscription}
//	@Security	BearerAuth
//	@Router		/billing/meters [get]
func (h *BillingHandler) ListMeters(c *gin.Context) {
	links, err := h.exports.Links(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, links)
}

// LinkMeter godoc
//
//	@Summary	Export a meter to a billing item
//	@Tags		billing
//	@Accept		json
//	@Produce	json
//	@Param		meter	path		string				true	"Meter name"
//	@Param		request	body		LinkMeterRequest	true	"Item"
//	@Success	200		{object}	dto.Response{data=billing.MeterSubscription}
//	@Failure	400		{object}	dto.Response{error=dto.ErrorInfo}
//	@Security	BearerAuth
//	@Router		/billing/meters/{meter} [put]
func (h *BillingHandler) LinkMeter(c *gin.Context) {
	meter := billing.Meter(c.Param("meter"))
	if !meter.IsValid() {
		h.BadRequest(c, "Unknown meter "+c.Param("meter"))
		return
	}
	var req LinkMeterRequest
	if !h.BindJSON(c, &req) {
		return
	}
	link, err := h.exports.Link(c.Request.Context(), meter, req.ItemID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, link)
}
