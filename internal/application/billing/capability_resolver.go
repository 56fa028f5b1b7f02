package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/promptlab/backend/internal/domain/billing"
	"github.com/promptlab/backend/internal/domain/identity"
	"github.com/promptlab/backend/internal/domain/shared"
)

var (
	// ErrTenantNotFound is returned when capabilities are requested for an unknown tenant
	ErrTenantNotFound = shared.NewDomainError(shared.ErrNotFound.Code, "tenant not found")
	// ErrTenantInactive is returned for a suspended tenant
	ErrTenantInactive = shared.NewDomainError("TENANT_INACTIVE", "tenant is not active")
)

// CapabilityCache stores resolved capabilities per tenant. Version changes on every
// invalidation; Store refuses a snapshot whose version is no longer current.
type CapabilityCache interface {
	CapabilityInvalidator
	Get(ctx context.Context, tenantID uint64) (*billing.UsageCapabilities, bool)
	Version(ctx context.Context, tenantID uint64) uint64
	Store(ctx context.Context, tenantID, version uint64, caps *billing.UsageCapabilities) bool
}

// TenantFinder loads tenants by id
type TenantFinder interface {
	FindByID(ctx context.Context, id uint64) (*identity.Tenant, error)
}

// CapabilityResolver builds a tenant's UsageCapabilities from its plan and its usage in
// the current monthly period. The cache is optional and only shortens the path.
type CapabilityResolver struct {
	tenants TenantFinder
	usage   billing.UsageEventRepository
	catalog billing.Catalog
	cache   CapabilityCache
	now     func() time.Time
}

// NewCapabilityResolver creates a resolver. A nil cache resolves every call from the store.
func NewCapabilityResolver(tenants TenantFinder, usage billing.UsageEventRepository, catalog billing.Catalog, cache CapabilityCache) *CapabilityResolver {
	if catalog == nil {
		catalog = billing.DefaultCatalog()
	}
	return &CapabilityResolver{
		tenants: tenants,
		usage:   usage,
		catalog: catalog,
		cache:   cache,
		now:     time.Now,
	}
}

// Resolve returns the tenant's capabilities for the current period
func (r *CapabilityResolver) Resolve(ctx context.Context, tenantID uint64) (*billing.UsageCapabilities, error) {
	now := r.now()
	var version uint64
	if r.cache != nil {
		if caps, ok := r.cache.Get(ctx, tenantID); ok && caps.Period.Contains(now) {
			return caps, nil
		}
		version = r.cache.Version(ctx, tenantID)
	}

	tenant, err := r.tenants.FindByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("load tenant %d: %w", tenantID, err)
	}
	if !tenant.IsActive() {
		return nil, ErrTenantInactive
	}
	plan, ok := r.catalog.Get(tenant.Plan)
	if !ok {
		return nil, shared.NewDomainError(billing.ErrUnknownPlan.Code, fmt.Sprintf("tenant %d is on unknown plan %q", tenantID, tenant.Plan))
	}

	period := billing.MonthlyPeriod(now)
	usage, err := r.usage.SumByMeter(ctx, tenantID, period)
	if err != nil {
		return nil, fmt.Errorf("aggregate usage for tenant %d: %w", tenantID, err)
	}

	caps := &billing.UsageCapabilities{
		TenantID: tenantID,
		Plan:     plan,
		Period:   period,
		Usage:    usage,
	}
	if r.cache != nil {
		r.cache.Store(ctx, tenantID, version, caps)
	}
	return caps, nil
}

// Invalidate drops any cached capabilities of the tenant
func (r *CapabilityResolver) Invalidate(ctx context.Context, tenantID uint64) {
	if r.cache != nil {
		r.cache.Invalidate(ctx, tenantID)
	}
}
