package handler

import (
	"github.com/gin-gonic/gin"
	identityapp "github.com/promptlab/backend/internal/application/identity"
	"github.com/promptlab/backend/internal/interfaces/http/middleware"
)

// AuthHandler handles signup, login and logout
type AuthHandler struct {
	BaseHandler
	auth *identityapp.AuthService
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(auth *identityapp.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Signup godoc
//
//	@Summary		Sign up
//	@Description	Create a user and a new tenant they own, and return a session for it
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		identityapp.SignupRequest	true	"Signup request"
//	@Success		201		{object}	dto.Response{data=identityapp.SessionResponse}
//	@Failure		400		{object}	dto.Response{error=dto.ErrorInfo}
//	@Failure		409		{object}	dto.Response{error=dto.ErrorInfo}
//	@Router			/auth/signup [post]
func (h *AuthHandler) Signup(c *gin.Context) {
	var req identityapp.SignupRequest
	if !h.BindJSON(c, &req) {
		return
	}

	session, err := h.auth.Signup(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, session)
}

// Login godoc
//
//	@Summary		Log in
//	@Description	Authenticate and return a session bound to one of the user's tenants
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		identityapp.LoginRequest	true	"Login request"
//	@Success		200		{object}	dto.Response{data=identityapp.SessionResponse}
//	@Failure		401		{object}	dto.Response{error=dto.ErrorInfo}
//	@Failure		403		{object}	dto.Response{error=dto.ErrorInfo}
//	@Router			/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req identityapp.LoginRequest
	if !h.BindJSON(c, &req) {
		return
	}

	session, err := h.auth.Login(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, session)
}

// Logout revokes the caller's token
//
//	@Summary	Log out
//	@Tags		auth
//	@Success	204
//	@Security	BearerAuth
//	@Router		/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		h.Unauthorized(c, "Not authenticated")
		return
	}
	if err := h.auth.Logout(c.Request.Context(), claims); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
