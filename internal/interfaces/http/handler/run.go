package handler

import (
	"github.com/gin-gonic/gin"
	promptapp "github.com/promptlab/backend/internal/application/prompt"
	"github.com/promptlab/backend/internal/interfaces/http/middleware"
)

// RunHandler handles prompt runs and their feedback
type RunHandler struct {
	BaseHandler
	runs *promptapp.RunService
}

// NewRunHandler creates a new RunHandler
func NewRunHandler(runs *promptapp.RunService) *RunHandler {
	return &RunHandler{runs: runs}
}

// CreateRun godoc
//
//	@Summary		Start a run
//	@Description	Checks the plan's entitlements, records the run and queues it for execution.
//	@Description	The run is returned pending; poll GET /runs/{id} for the result.
//	@Tags			runs
//	@Accept			json
//	@Produce		json
//	@Param			request	body		promptapp.CreateRunRequest	true	"Run"
//	@Success		202		{object}	dto.Response{data=prompt.Run}
//	@Failure		400		{object}	dto.Response{error=dto.ErrorInfo}
//	@Failure		403		{object}	dto.Response{error=dto.ErrorInfo}
//	@Failure		404		{object}	dto.Response{error=dto.ErrorInfo}
//	@Failure		429		{object}	dto.Response{error=dto.ErrorInfo}
//	@Security		BearerAuth
//	@Router			/runs [post]
func (h *RunHandler) CreateRun(c *gin.Context) {
	var req promptapp.CreateRunRequest
	if !h.BindJSON(c, &req) {
		return
	}
	run, err := h.runs.CreateRun(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, run)
}

// ListRuns godoc
//
//	@Summary	List runs
//	@Tags		runs
//	@Produce	json
//	@Param		prompt_id	query		int	false	"Restrict to a prompt"
//	@Param		page		query		int	false	"Page number"	default(1)
//	@Param		page_size	query		int	false	"Page size"		default(20)	maximum(100)
//	@Success	200			{object}	dto.Response{data=[]prompt.Run}
//	@Security	BearerAuth
//	@Router		/runs [get]
func (h *RunHandler) ListRuns(c *gin.Context) {
	filter, ok := h.ListFilter(c)
	if !ok {
		return
	}
	promptID, ok := h.optionalQueryID(c, "prompt_id")
	if !ok {
		return
	}
	page, err := h.runs.ListRuns(c.Request.Context(), promptapp.ListRunsFilter{Filter: filter, PromptID: promptID})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	paginated(&h.BaseHandler, c, page)
}

// GetRun returns a run
//
//	@Router	/runs/{id} [get]
func (h *RunHandler) GetRun(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	run, err := h.runs.GetRun(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, run)
}

// ListFeedback lists a run's feedback
//
//	@Router	/runs/{id}/feedback [get]
func (h *RunHandler) ListFeedback(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	fb, err := h.runs.ListFeedback(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, fb)
}

// AddFeedback rates a run as the calling user
//
//	@Router	/runs/{id}/feedback [post]
func (h *RunHandler) AddFeedback(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req promptapp.CreateFeedbackRequest
	if !h.BindJSON(c, &req) {
		return
	}
	claims := middleware.GetClaims(c)
	if claims == nil {
		h.Unauthorized(c, "Not authenticated")
		return
	}
	fb, err := h.runs.AddFeedback(c.Request.Context(), id, claims.UserID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, fb)
}
