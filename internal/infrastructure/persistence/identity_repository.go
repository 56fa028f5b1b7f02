package persistence

import (
	"context"

	"github.com/promptlab/backend/internal/domain/identity"
	"github.com/promptlab/backend/internal/infrastructure/persistence/tenant"
)

// TenantRepository implements identity.TenantRepository. Tenants carry no tenant column
// and are not filtered.
type TenantRepository struct {
	db *tenant.TenantDB
}

// NewTenantRepository creates a TenantRepository
func NewTenantRepository(db *tenant.TenantDB) *TenantRepository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) Create(ctx context.Context, t *identity.Tenant) error {
	return translate(r.db.WithContext(ctx).Create(t).Error, "tenant")
}

func (r *TenantRepository) FindByID(ctx context.Context, id uint64) (*identity.Tenant, error) {
	var t identity.Tenant
	if err := r.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, translate(err, "tenant")
	}
	return &t, nil
}

func (r *TenantRepository) ExistsBySlug(ctx context.Context, slug string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&identity.Tenant{}).Where("slug = ?", slug).Count(&n).Error
	return n > 0, err
}

func (r *TenantRepository) Update(ctx context.Context, t *identity.Tenant) error {
	res := r.db.WithContext(ctx).Model(t).Select("name", "status", "plan", "updated_at").Updates(t)
	return affected(res, "tenant")
}

// UserRepository implements identity.UserRepository
type UserRepository struct {
	db *tenant.TenantDB
}

// NewUserRepository creates a UserRepository
func NewUserRepository(db *tenant.TenantDB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *identity.User) error {
	return translate(r.db.WithContext(ctx).Create(u).Error, "user")
}

func (r *UserRepository) FindByID(ctx context.Context, id uint64) (*identity.User, error) {
	var u identity.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, translate(err, "user")
	}
	return &u, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*identity.User, error) {
	var u identity.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, translate(err, "user")
	}
	return &u, nil
}

// MembershipRepository implements identity.MembershipRepository
type MembershipRepository struct {
	db *tenant.TenantDB
}

// NewMembershipRepository creates a MembershipRepository
func NewMembershipRepository(db *tenant.TenantDB) *MembershipRepository {
	return &MembershipRepository{db: db}
}

func (r *MembershipRepository) Create(ctx context.Context, m *identity.Membership) error {
	return translate(r.db.WithContext(ctx).Create(m).Error, "membership")
}

// FindForUser looks up the membership in an explicitly named tenant, used at login before
// the session carries a tenant.
func (r *MembershipRepository) FindForUser(ctx context.Context, tenantID, userID uint64) (*identity.Membership, error) {
	var m identity.Membership
	err := r.db.ForTenant(ctx, tenantID).Where("user_id = ?", userID).First(&m).Error
	if err != nil {
		return nil, translate(err, "membership")
	}
	return &m, nil
}

// ListForUser returns the user's memberships in every tenant
func (r *MembershipRepository) ListForUser(ctx context.Context, userID uint64) ([]identity.Membership, error) {
	db, err := r.db.AcrossTenants(ctx, "list memberships of a signing-in user")
	if err != nil {
		return nil, err
	}
	var ms []identity.Membership
	if err := db.Where("user_id = ?", userID).Order("tenant_id").Find(&ms).Error; err != nil {
		return nil, err
	}
	return ms, nil
}
