package billing

import "slices"

// PlanID identifies a subscription plan
type PlanID string

const (
	PlanFree       PlanID = "free"
	PlanPro        PlanID = "pro"
	PlanEnterprise PlanID = "enterprise"
)

// Unlimited is the quota limit that never denies
const Unlimited int64 = -1

// Plan is the set of features and quota limits a tenant subscribes to
type Plan struct {
	ID       PlanID          `json:"id"`
	Name     string          `json:"name"`
	Features []string        `json:"features"`
	Quotas   map[Meter]int64 `json:"quotas"`
}

// HasFeature reports whether the plan includes feature
func (p Plan) HasFeature(feature string) bool {
	return slices.Contains(p.Features, feature)
}

// Limit returns the configured limit for meter and whether one is configured
func (p Plan) Limit(meter Meter) (int64, bool) {
	limit, ok := p.Quotas[meter]
	return limit, ok
}

// Catalog maps plan ids to their definitions
type Catalog map[PlanID]Plan

// Get returns the plan with the given id
func (c Catalog) Get(id PlanID) (Plan, bool) {
	p, ok := c[id]
	return p, ok
}

// DefaultCatalog is used when configuration does not define plans
func DefaultCatalog() Catalog {
	return Catalog{
		PlanFree: {
			ID:       PlanFree,
			Name:     "Free",
			Features: []string{"provider:openai"},
			Quotas: map[Meter]int64{
				MeterRunCount:     100,
				MeterTokenCount:   200_000,
				MeterTestRunCount: 50,
			},
		},
		PlanPro: {
			ID:       PlanPro,
			Name:     "Pro",
			Features: []string{"provider:openai", "provider:anthropic", "provider:google", "provider:openrouter", "evaluations"},
			Quotas: map[Meter]int64{
				MeterRunCount:     10_000,
				MeterTokenCount:   20_000_000,
				MeterTestRunCount: 5_000,
			},
		},
		PlanEnterprise: {
			ID:       PlanEnterprise,
			Name:     "Enterprise",
			Features: []string{"provider:openai", "provider:anthropic", "provider:google", "provider:openrouter", "evaluations", "sso"},
			Quotas: map[Meter]int64{
				MeterRunCount:     Unlimited,
				MeterTokenCount:   Unlimited,
				MeterTestRunCount: Unlimited,
			},
		},
	}
}
