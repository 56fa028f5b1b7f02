package middleware

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/promptlab/backend/internal/domain/identity"
	"github.com/promptlab/backend/internal/infrastructure/auth"
	"github.com/promptlab/backend/internal/infrastructure/logger"
	"github.com/promptlab/backend/internal/infrastructure/tenantctx"
	"github.com/promptlab/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// Auth context keys and headers
const (
	ClaimsKey     = "jwt_claims"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// AuthConfig holds configuration for the auth middleware
type AuthConfig struct {
	JWT *auth.JWTService
	// Revoker is optional; when set, revoked token ids are rejected
	Revoker auth.TokenRevoker
	Logger  *zap.Logger
}

// Auth validates the bearer token and establishes the session's tenant on the request
// context. Nothing downstream reads a tenant from headers or the body.
func Auth(cfg AuthConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader(AuthHeaderKey), BearerPrefix)
		if !ok || strings.TrimSpace(token) == "" {
			abortWithError(c, dto.ErrCodeUnauthorized, "Missing bearer token")
			return
		}

		claims, err := cfg.JWT.Validate(strings.TrimSpace(token))
		if err != nil {
			code := dto.ErrCodeTokenInvalid
			if errors.Is(err, auth.ErrExpiredToken) {
				code = dto.ErrCodeTokenExpired
			}
			abortWithError(c, code, err.Error())
			return
		}

		if cfg.Revoker != nil {
			revoked, err := cfg.Revoker.IsRevoked(c.Request.Context(), claims.ID)
			switch {
			case err != nil:
				// fail open, the token itself is still valid
				logger.WithLogger(c.Request.Context(), log).Error("Failed to check token revocation",
					zap.String("jti", claims.ID),
					zap.Error(err),
				)
			case revoked:
				abortWithError(c, dto.ErrCodeTokenRevoked, auth.ErrTokenRevoked.Error())
				return
			}
		}

		ctx := tenantctx.Set(c.Request.Context(), claims.TenantID)
		ctx = logger.WithUserID(ctx, strconv.FormatUint(claims.UserID, 10))
		c.Request = c.Request.WithContext(ctx)
		c.Set(ClaimsKey, claims)
		annotateSpan(c, claims.TenantID, claims.UserID)
		c.Next()
	}
}

// GetClaims returns the claims set by Auth, or nil on unauthenticated routes
func GetClaims(c *gin.Context) *auth.Claims {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}

// RequireManager allows only owners and admins of the session's tenant
func RequireManager() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil || !identity.Role(claims.Role).CanManage() {
			abortWithError(c, dto.ErrCodeForbidden, "owner or admin role required")
			return
		}
		c.Next()
	}
}
