package identity

import (
	"strings"

	"github.com/promptlab/backend/internal/domain/billing"
	"github.com/promptlab/backend/internal/domain/shared"
)

// TenantStatus represents the status of a tenant
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
)

// Tenant is the organization that owns prompts, runs and usage. Tenants are not
// tenant-owned themselves and are read without the tenant filter.
type Tenant struct {
	shared.BaseEntity
	Name   string         `gorm:"type:varchar(200);not null" json:"name"`
	Slug   string         `gorm:"type:varchar(100);not null;uniqueIndex" json:"slug"`
	Status TenantStatus   `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	Plan   billing.PlanID `gorm:"type:varchar(32);not null;default:'free'" json:"plan"`
}

// TableName returns the table name for GORM
func (Tenant) TableName() string {
	return "tenants"
}

// NewTenant creates an active tenant on the given plan
func NewTenant(name string, plan billing.PlanID) (*Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "tenant name is required")
	}
	if len(name) > 200 {
		return nil, shared.NewDomainError("INVALID_INPUT", "tenant name cannot exceed 200 characters")
	}
	if plan == "" {
		plan = billing.PlanFree
	}
	return &Tenant{Name: name, Slug: Slugify(name), Status: TenantStatusActive, Plan: plan}, nil
}

// IsActive reports whether the tenant may use the product
func (t *Tenant) IsActive() bool {
	return t.Status == TenantStatusActive
}

// ChangePlan moves the tenant to another plan
func (t *Tenant) ChangePlan(plan billing.PlanID) error {
	if plan == "" {
		return shared.NewDomainError("INVALID_INPUT", "plan is required")
	}
	t.Plan = plan
	return nil
}

// Suspend blocks the tenant
func (t *Tenant) Suspend() error {
	if t.Status == TenantStatusSuspended {
		return shared.NewDomainError("INVALID_STATE", "tenant is already suspended")
	}
	t.Status = TenantStatusSuspended
	return nil
}

// Activate unblocks a suspended tenant
func (t *Tenant) Activate() error {
	if t.Status == TenantStatusActive {
		return shared.NewDomainError("INVALID_STATE", "tenant is already active")
	}
	t.Status = TenantStatusActive
	return nil
}

// Slugify lower-cases name and joins alphanumeric runs with dashes
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
