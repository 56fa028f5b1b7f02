package identity

import (
	"time"

	"github.com/promptlab/backend/internal/domain/billing"
	"github.com/promptlab/backend/internal/domain/identity"
	"github.com/promptlab/backend/internal/infrastructure/auth"
)

// SignupRequest creates a user together with a new tenant they own
type SignupRequest struct {
	Email      string `json:"email" binding:"required,email,max=200"`
	Password   string `json:"password" binding:"required,min=8,max=72"`
	Name       string `json:"name" binding:"max=200"`
	TenantName string `json:"tenant_name" binding:"required,min=1,max=200"`
}

// LoginRequest signs a user into one tenant. TenantID 0 picks the user's first tenant.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	TenantID uint64 `json:"tenant_id"`
}

// ChangePlanRequest moves the current tenant to another plan
type ChangePlanRequest struct {
	Plan string `json:"plan" binding:"required,max=32"`
}

// UserResponse is the public view of a user
type UserResponse struct {
	ID        uint64    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TenantResponse is the public view of a tenant
type TenantResponse struct {
	ID        uint64                `json:"id"`
	Name      string                `json:"name"`
	Slug      string                `json:"slug"`
	Status    identity.TenantStatus `json:"status"`
	Plan      billing.PlanID        `json:"plan"`
	CreatedAt time.Time             `json:"created_at"`
}

// SessionResponse is returned by signup and login
type SessionResponse struct {
	Token  *auth.Token    `json:"token"`
	User   UserResponse   `json:"user"`
	Tenant TenantResponse `json:"tenant"`
	Role   identity.Role  `json:"role"`
}

// ToUserResponse converts a domain user
func ToUserResponse(u *identity.User) UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email, Name: u.Name, CreatedAt: u.CreatedAt}
}

// ToTenantResponse converts a domain tenant
func ToTenantResponse(t *identity.Tenant) TenantResponse {
	return TenantResponse{
		ID:        t.ID,
		Name:      t.Name,
		Slug:      t.Slug,
		Status:    t.Status,
		Plan:      t.Plan,
		CreatedAt: t.CreatedAt,
	}
}
