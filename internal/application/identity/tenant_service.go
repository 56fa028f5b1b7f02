package identity

import (
	"context"
	"fmt"

	"github.com/promptlab/backend/internal/domain/billing"
	"github.com/promptlab/backend/internal/domain/identity"
	"github.com/promptlab/backend/internal/domain/shared"
	"github.com/promptlab/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// CapabilityInvalidator drops cached entitlement state for a tenant
type CapabilityInvalidator interface {
	Invalidate(ctx context.Context, tenantID uint64)
}

// TenantService manages tenant plan and status
type TenantService struct {
	tenants     identity.TenantRepository
	catalog     billing.Catalog
	invalidator CapabilityInvalidator
	logger      *zap.Logger
}

// NewTenantService creates a new TenantService. invalidator may be nil.
func NewTenantService(tenants identity.TenantRepository, catalog billing.Catalog, invalidator CapabilityInvalidator, log *zap.Logger) *TenantService {
	if catalog == nil {
		catalog = billing.DefaultCatalog()
	}
	return &TenantService{tenants: tenants, catalog: catalog, invalidator: invalidator, logger: log}
}

// Get returns a tenant by id
func (s *TenantService) Get(ctx context.Context, id uint64) (*TenantResponse, error) {
	tn, err := s.tenants.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToTenantResponse(tn)
	return &resp, nil
}

// ChangePlan moves the tenant to a plan from the catalog
func (s *TenantService) ChangePlan(ctx context.Context, id uint64, plan billing.PlanID) (*TenantResponse, error) {
	if _, ok := s.catalog.Get(plan); !ok {
		return nil, shared.NewDomainError(billing.ErrUnknownPlan.Code, fmt.Sprintf("unknown plan %q", plan))
	}
	return s.mutate(ctx, id, "Tenant plan changed", func(tn *identity.Tenant) error {
		return tn.ChangePlan(plan)
	})
}

// Suspend blocks the tenant; entitlement checks deny until it is activated again
func (s *TenantService) Suspend(ctx context.Context, id uint64) (*TenantResponse, error) {
	return s.mutate(ctx, id, "Tenant suspended", (*identity.Tenant).Suspend)
}

// Activate unblocks a suspended tenant
func (s *TenantService) Activate(ctx context.Context, id uint64) (*TenantResponse, error) {
	return s.mutate(ctx, id, "Tenant activated", (*identity.Tenant).Activate)
}

func (s *TenantService) mutate(ctx context.Context, id uint64, msg string, fn func(*identity.Tenant) error) (*TenantResponse, error) {
	tn, err := s.tenants.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(tn); err != nil {
		return nil, err
	}
	if err := s.tenants.Update(ctx, tn); err != nil {
		return nil, err
	}
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, id)
	}

	logger.WithLogger(ctx, s.logger).Info(msg,
		zap.Uint64("target_tenant_id", tn.ID),
		zap.String("plan", string(tn.Plan)),
		zap.String("status", string(tn.Status)),
	)
	resp := ToTenantResponse(tn)
	return &resp, nil
}
