package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/promptlab/backend/internal/domain/billing"
	"github.com/promptlab/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Decision kinds reported to metrics
const (
	KindFeature = "feature"
	KindQuota   = "quota"
)

// EntitlementService answers feature and quota questions for a tenant. A deny is a
// decision, not an error; errors are reserved for failures to resolve capabilities.
type EntitlementService struct {
	resolver *CapabilityResolver
	metrics  Metrics
	logger   *zap.Logger
}

// NewEntitlementService creates an EntitlementService. metrics may be nil.
func NewEntitlementService(resolver *CapabilityResolver, metrics Metrics, log *zap.Logger) *EntitlementService {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &EntitlementService{resolver: resolver, metrics: metrics, logger: log.Named("entitlement")}
}

// CheckFeatureAccess decides whether tenantID may use feature
func (s *EntitlementService) CheckFeatureAccess(ctx context.Context, tenantID uint64, feature string, details map[string]any) (billing.EntitlementDecision, error) {
	caps, err := s.resolver.Resolve(ctx, tenantID)
	if err != nil {
		if reason, ok := denialReason(tenantID, err); ok {
			d := billing.Deny(feature, reason)
			s.record(ctx, KindFeature, feature, d.Allowed, d.Reason, details)
			return d, nil
		}
		return billing.EntitlementDecision{}, err
	}

	d := caps.CheckFeature(feature)
	s.record(ctx, KindFeature, feature, d.Allowed, d.Reason, details)
	return d, nil
}

// CheckQuota decides whether tenantID may consume requested units of quota in the
// current period. A non-positive request counts as one unit.
func (s *EntitlementService) CheckQuota(ctx context.Context, tenantID uint64, quota billing.Meter, requested int64, details map[string]any) (billing.QuotaDecision, error) {
	if requested <= 0 {
		requested = 1
	}
	caps, err := s.resolver.Resolve(ctx, tenantID)
	if err != nil {
		if reason, ok := denialReason(tenantID, err); ok {
			d := billing.DenyQuota(quota, requested, reason)
			s.record(ctx, KindQuota, string(quota), d.Allowed, d.Reason, details)
			return d, nil
		}
		return billing.QuotaDecision{}, err
	}

	d := caps.CheckQuota(quota, requested)
	s.record(ctx, KindQuota, string(quota), d.Allowed, d.Reason, details)
	return d, nil
}

// Capabilities returns the tenant's plan and current-period usage
func (s *EntitlementService) Capabilities(ctx context.Context, tenantID uint64) (*billing.UsageCapabilities, error) {
	return s.resolver.Resolve(ctx, tenantID)
}

// denialReason maps tenant-state errors onto deny reasons
func denialReason(tenantID uint64, err error) (string, bool) {
	switch {
	case errors.Is(err, ErrTenantNotFound):
		return fmt.Sprintf("tenant %d not found", tenantID), true
	case errors.Is(err, ErrTenantInactive):
		return fmt.Sprintf("tenant %d is suspended", tenantID), true
	}
	return "", false
}

func (s *EntitlementService) record(ctx context.Context, kind, name string, allowed bool, reason string, details map[string]any) {
	s.metrics.EntitlementDecided(kind, allowed)
	fields := []zap.Field{
		zap.String("kind", kind),
		zap.String("name", name),
		zap.Bool("allowed", allowed),
		zap.String("reason", reason),
	}
	if len(details) > 0 {
		fields = append(fields, zap.Any("details", details))
	}
	log := logger.WithLogger(ctx, s.logger)
	if allowed {
		log.Debug("Entitlement decision", fields...)
		return
	}
	log.Info("Entitlement denied", fields...)
}
