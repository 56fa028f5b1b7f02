package persistence

import (
	"context"
	"errors"

	"github.com/promptlab/backend/internal/domain/provider"
	"github.com/promptlab/backend/internal/domain/shared"
	"github.com/promptlab/backend/internal/infrastructure/persistence/tenant"
)

// CredentialRepository implements provider.CredentialRepository
type CredentialRepository struct {
	db *tenant.TenantDB
}

// NewCredentialRepository creates a CredentialRepository
func NewCredentialRepository(db *tenant.TenantDB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Upsert replaces the current tenant's credential for c.Provider. It reads then writes
// inside a transaction; ON CONFLICT updates are refused on tenant-owned tables.
func (r *CredentialRepository) Upsert(ctx context.Context, c *provider.Credential) error {
	return r.db.Transaction(ctx, func(ctx context.Context) error {
		existing, err := r.FindByProvider(ctx, c.Provider)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			return translate(r.db.WithContext(ctx).Create(c).Error, "credential")
		case err != nil:
			return err
		}
		c.ID = existing.ID
		c.TenantID = existing.TenantID
		c.CreatedAt = existing.CreatedAt
		res := r.db.WithContext(ctx).Model(c).Select("label", "sealed", "hint", "updated_at").Updates(c)
		return affected(res, "credential")
	})
}

func (r *CredentialRepository) FindByProvider(ctx context.Context, name provider.Name) (*provider.Credential, error) {
	var c provider.Credential
	if err := r.db.WithContext(ctx).Where("provider = ?", name).First(&c).Error; err != nil {
		return nil, translate(err, "credential")
	}
	return &c, nil
}

func (r *CredentialRepository) List(ctx context.Context) ([]provider.Credential, error) {
	var cs []provider.Credential
	err := r.db.WithContext(ctx).Order("provider").Find(&cs).Error
	return cs, err
}
