package billing

import "github.com/promptlab/backend/internal/domain/shared"

var (
	// ErrQuotaExceeded is returned at the application boundary when a quota decision denies
	ErrQuotaExceeded = shared.NewDomainError("QUOTA_EXCEEDED", "Quota exceeded")
	// ErrFeatureNotEntitled is returned when the tenant's plan does not include a feature
	ErrFeatureNotEntitled = shared.NewDomainError("FEATURE_NOT_ENTITLED", "Feature not included in plan")
	// ErrUnknownPlan is returned when a tenant references a plan missing from the catalog
	ErrUnknownPlan = shared.NewDomainError("UNKNOWN_PLAN", "Unknown plan")
)

// ErrInvalidUsageEvent builds a validation error for a usage event
func ErrInvalidUsageEvent(msg string) error {
	return shared.NewDomainError("INVALID_INPUT", "invalid usage event: "+msg)
}

// QuotaExceeded wraps a denying decision's reason into ErrQuotaExceeded
func QuotaExceeded(d QuotaDecision) error {
	return shared.NewDomainError(ErrQuotaExceeded.Code, d.Reason)
}

// FeatureNotEntitled wraps a denying decision's reason into ErrFeatureNotEntitled
func FeatureNotEntitled(d EntitlementDecision) error {
	return shared.NewDomainError(ErrFeatureNotEntitled.Code, d.Reason)
}
