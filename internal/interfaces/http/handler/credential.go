package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/promptlab/backend/internal/application/credential"
)

// CredentialHandler manages the tenant's provider API keys. Keys are write-only over the API.
type CredentialHandler struct {
	BaseHandler
	credentials *credential.CredentialService
}

// NewCredentialHandler creates a new CredentialHandler
func NewCredentialHandler(credentials *credential.CredentialService) *CredentialHandler {
	return &CredentialHandler{credentials: credentials}
}

// List godoc
//
//	@Summary	List provider credentials
//	@Tags		credentials
//	@Produce	json
//	@Success	200	{object}	dto.Response{data=[]credential.CredentialResponse}
//	@Security	BearerAuth
//	@Router		/credentials [get]
func (h *CredentialHandler) List(c *gin.Context) {
	list, err := h.credentials.List(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, list)
}

// Save godoc
//
//	@Summary		Store a provider credential
//	@Description	Replaces any key already stored for the provider
//	@Tags			credentials
//	@Accept			json
//	@Produce		json
//	@Param			request	body		credential.SaveCredentialRequest	true	"Credential"
//	@Success		200		{object}	dto.Response{data=credential.CredentialResponse}
//	@Failure		400		{object}	dto.Response{error=dto.ErrorInfo}
//	@Security		BearerAuth
//	@Router			/credentials [post]
func (h *CredentialHandler) Save(c *gin.Context) {
	var req credential.SaveCredentialRequest
	if !h.BindJSON(c, &req) {
		return
	}
	resp, err := h.credentials.Save(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
