package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	promptapp "github.com/promptlab/backend/internal/application/prompt"
)

// PromptHandler handles projects, prompts, their versions and test cases
type PromptHandler struct {
	BaseHandler
	prompts *promptapp.PromptService
}

// NewPromptHandler creates a new PromptHandler
func NewPromptHandler(prompts *promptapp.PromptService) *PromptHandler {
	return &PromptHandler{prompts: prompts}
}

// ============================================================================
// Projects
// ============================================================================

// ListProjects godoc
//
//	@Summary	List projects
//	@Tags		projects
//	@Produce	json
//	@Param		page		query		int	false	"Page number"	default(1)
//	@Param		page_size	query		int	false	"Page size"		default(20)	maximum(100)
//	@Success	200			{object}	dto.Response{data=[]prompt.Project}
//	@Security	BearerAuth
//	@Router		/projects [get]
func (h *PromptHandler) ListProjects(c *gin.Context) {
	filter, ok := h.ListFilter(c)
	if !ok {
		return
	}
	page, err := h.prompts.ListProjects(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	paginated(&h.BaseHandler, c, page)
}

// CreateProject godoc
//
//	@Summary	Create a project
//	@Tags		projects
//	@Accept		json
//	@Produce	json
//	@Param		request	body		promptapp.CreateProjectRequest	true	"Project"
//	@Success	201		{object}	dto.Response{data=prompt.Project}
//	@Security	BearerAuth
//	@Router		/projects [post]
func (h *PromptHandler) CreateProject(c *gin.Context) {
	var req promptapp.CreateProjectRequest
	if !h.BindJSON(c, &req) {
		return
	}
	p, err := h.prompts.CreateProject(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, p)
}

// ============================================================================
// Prompts
// ============================================================================

// ListPrompts godoc
//
//	@Summary	List prompts
//	@Tags		prompts
//	@Produce	json
//	@Param		project_id	query		int	false	"Restrict to a project"
//	@Param		page		query		int	false	"Page number"	default(1)
//	@Param		page_size	query		int	false	"Page size"		default(20)	maximum(100)
//	@Success	200			{object}	dto.Response{data=[]prompt.Prompt}
//	@Security	BearerAuth
//	@Router		/prompts [get]
func (h *PromptHandler) ListPrompts(c *gin.Context) {
	filter, ok := h.ListFilter(c)
	if !ok {
		return
	}
	projectID, ok := h.optionalQueryID(c, "project_id")
	if !ok {
		return
	}
	page, err := h.prompts.ListPrompts(c.Request.Context(), projectID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	paginated(&h.BaseHandler, c, page)
}

// CreatePrompt godoc
//
//	@Summary		Create a prompt
//	@Description	Create a prompt in a project, optionally with its first version
//	@Tags			prompts
//	@Accept			json
//	@Produce		json
//	@Param			request	body		promptapp.CreatePromptRequest	true	"Prompt"
//	@Success		201		{object}	dto.Response{data=promptapp.PromptResponse}
//	@Failure		400		{object}	dto.Response{error=dto.ErrorInfo}
//	@Failure		404		{object}	dto.Response{error=dto.ErrorInfo}
//	@Security		BearerAuth
//	@Router			/prompts [post]
func (h *PromptHandler) CreatePrompt(c *gin.Context) {
	var req promptapp.CreatePromptRequest
	if !h.BindJSON(c, &req) {
		return
	}
	p, err := h.prompts.CreatePrompt(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, p)
}

// GetPrompt returns a prompt with its versions
//
//	@Summary	Get a prompt
//	@Tags		prompts
//	@Produce	json
//	@Param		id	path		int	true	"Prompt ID"
//	@Success	200	{object}	dto.Response{data=promptapp.PromptResponse}
//	@Failure	404	{object}	dto.Response{error=dto.ErrorInfo}
//	@Security	BearerAuth
//	@Router		/prompts/{id} [get]
func (h *PromptHandler) GetPrompt(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	p, err := h.prompts.GetPrompt(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, p)
}

// UpdatePrompt changes a prompt's name or description
//
//	@Router	/prompts/{id} [put]
func (h *PromptHandler) UpdatePrompt(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req promptapp.UpdatePromptRequest
	if !h.BindJSON(c, &req) {
		return
	}
	p, err := h.prompts.UpdatePrompt(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, p)
}

// DeletePrompt deletes a prompt
//
//	@Router	/prompts/{id} [delete]
func (h *PromptHandler) DeletePrompt(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	if err := h.prompts.DeletePrompt(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// ============================================================================
// Versions
// ============================================================================

// ListVersions lists a prompt's versions, newest first
//
//	@Router	/prompts/{id}/versions [get]
func (h *PromptHandler) ListVersions(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	versions, err := h.prompts.ListVersions(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, versions)
}

// CreateVersion godoc
//
//	@Summary		Create a prompt version
//	@Description	Versions are immutable; each call appends the next number
//	@Tags			prompts
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int								true	"Prompt ID"
//	@Param			request	body		promptapp.CreateVersionRequest	true	"Version"
//	@Success		201		{object}	dto.Response{data=prompt.Version}
//	@Failure		400		{object}	dto.Response{error=dto.ErrorInfo}
//	@Failure		404		{object}	dto.Response{error=dto.ErrorInfo}
//	@Security		BearerAuth
//	@Router			/prompts/{id}/versions [post]
func (h *PromptHandler) CreateVersion(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req promptapp.CreateVersionRequest
	if !h.BindJSON(c, &req) {
		return
	}
	v, err := h.prompts.CreateVersion(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, v)
}

// GetVersion returns one version by number
//
//	@Router	/prompts/{id}/versions/{number} [get]
func (h *PromptHandler) GetVersion(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number < 1 {
		h.BadRequest(c, "Invalid version number")
		return
	}
	v, err := h.prompts.GetVersion(c.Request.Context(), id, number)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, v)
}

// ============================================================================
// Test cases
// ============================================================================

// ListTestCases lists a prompt's test cases
//
//	@Router	/prompts/{id}/test-cases [get]
func (h *PromptHandler) ListTestCases(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	cases, err := h.prompts.ListTestCases(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, cases)
}

// CreateTestCase adds a test case to a prompt
//
//	@Router	/prompts/{id}/test-cases [post]
func (h *PromptHandler) CreateTestCase(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req promptapp.CreateTestCaseRequest
	if !h.BindJSON(c, &req) {
		return
	}
	tc, err := h.prompts.CreateTestCase(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, tc)
}
