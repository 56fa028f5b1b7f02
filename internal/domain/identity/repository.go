package identity

import "context"

// TenantRepository persists tenants
type TenantRepository interface {
	Create(ctx context.Context, t *Tenant) error
	FindByID(ctx context.Context, id uint64) (*Tenant, error)
	ExistsBySlug(ctx context.Context, slug string) (bool, error)
	Update(ctx context.Context, t *Tenant) error
}

// UserRepository persists users
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id uint64) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// MembershipRepository persists memberships. Lookups are scoped to the current tenant
// except ListForUser, which is used before a tenant is chosen.
type MembershipRepository interface {
	Create(ctx context.Context, m *Membership) error
	FindForUser(ctx context.Context, tenantID, userID uint64) (*Membership, error)
	ListForUser(ctx context.Context, userID uint64) ([]Membership, error)
}
