package identity

import "github.com/promptlab/backend/internal/domain/shared"

// Role is a user's role within one tenant
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// IsValid reports whether r is a known role
func (r Role) IsValid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// CanManage reports whether the role may change billing and credentials
func (r Role) CanManage() bool {
	return r == RoleOwner || r == RoleAdmin
}

// Membership links a user to a tenant with a role
type Membership struct {
	shared.BaseEntity
	shared.TenantOwned
	UserID uint64 `gorm:"not null;index" json:"user_id"`
	Role   Role   `gorm:"type:varchar(20);not null" json:"role"`
}

// TableName returns the table name for GORM
func (Membership) TableName() string {
	return "memberships"
}

// NewMembership creates a membership for user in tenant
func NewMembership(tenantID, userID uint64, role Role) (*Membership, error) {
	if !role.IsValid() {
		return nil, shared.NewDomainError("INVALID_INPUT", "invalid role")
	}
	m := &Membership{UserID: userID, Role: role}
	m.TenantID = tenantID
	return m, nil
}
