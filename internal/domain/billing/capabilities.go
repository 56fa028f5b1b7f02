package billing

import "fmt"

// UsageCapabilities is a tenant's plan together with its aggregated usage for one period.
// Decisions are pure functions of this value.
type UsageCapabilities struct {
	TenantID uint64          `json:"tenant_id"`
	Plan     Plan            `json:"plan"`
	Period   Period          `json:"period"`
	Usage    map[Meter]int64 `json:"usage"`
}

// Used returns the aggregated usage for meter in the period
func (c *UsageCapabilities) Used(meter Meter) int64 {
	return c.Usage[meter]
}

// CheckFeature decides access to a named feature
func (c *UsageCapabilities) CheckFeature(feature string) EntitlementDecision {
	if c.Plan.HasFeature(feature) {
		return EntitlementDecision{
			Allowed: true,
			Feature: feature,
			Reason:  fmt.Sprintf("included in the %s plan", c.Plan.ID),
		}
	}
	return Deny(feature, fmt.Sprintf("%s is not included in the %s plan", feature, c.Plan.ID))
}

// CheckQuota decides whether requested more units of meter fit under the plan limit.
// A request is denied when used+requested exceeds the limit, so a tenant already at its
// limit is denied a single unit. A non-positive request counts as one unit.
func (c *UsageCapabilities) CheckQuota(meter Meter, requested int64) QuotaDecision {
	if requested <= 0 {
		requested = 1
	}
	used := c.Used(meter)
	d := QuotaDecision{Quota: meter, Used: used, Requested: requested, Remaining: -1}

	limit, ok := c.Plan.Limit(meter)
	switch {
	case !ok:
		d.Allowed = true
		d.Status = QuotaStatusUnconfigured
		d.Reason = "no limit configured"
		return d
	case limit == Unlimited:
		d.Allowed = true
		d.Limit = Unlimited
		d.Status = QuotaStatusUnlimited
		d.Reason = fmt.Sprintf("unlimited %s on the %s plan", meter, c.Plan.ID)
		return d
	}

	d.Limit = limit
	d.Remaining = max(limit-used, 0)
	if used+requested > limit {
		d.Status = QuotaStatusExceeded
		d.Reason = fmt.Sprintf("quota exceeded: %d/%d %s this period", used, limit, meter)
		return d
	}

	d.Allowed = true
	d.Status = QuotaStatusOK
	if limit > 0 && (used+requested)*100 >= limit*WarningThresholdPercent {
		d.Status = QuotaStatusWarning
	}
	d.Reason = fmt.Sprintf("%d/%d %s used this period", used, limit, meter)
	return d
}
