package billing

// EntitlementDecision answers whether a tenant may use a feature. It is a value, not an error:
// a deny is a normal outcome that carries a user-facing reason.
type EntitlementDecision struct {
	Allowed bool   `json:"allowed"`
	Feature string `json:"feature"`
	Reason  string `json:"reason"`
}

// QuotaStatus summarizes where usage stands relative to a quota
type QuotaStatus string

const (
	QuotaStatusOK           QuotaStatus = "OK"
	QuotaStatusWarning      QuotaStatus = "WARNING"
	QuotaStatusExceeded     QuotaStatus = "EXCEEDED"
	QuotaStatusUnlimited    QuotaStatus = "UNLIMITED"
	QuotaStatusUnconfigured QuotaStatus = "UNCONFIGURED"
)

// WarningThresholdPercent is the share of a limit at which an allowed decision warns
const WarningThresholdPercent = 80

// QuotaDecision answers whether a tenant may consume units of a metered quota
type QuotaDecision struct {
	Allowed   bool        `json:"allowed"`
	Quota     Meter       `json:"quota"`
	Reason    string      `json:"reason"`
	Status    QuotaStatus `json:"status"`
	Limit     int64       `json:"limit"`
	Used      int64       `json:"used"`
	Requested int64       `json:"requested"`
	// Remaining is -1 when the quota is unlimited or not configured
	Remaining int64 `json:"remaining"`
}

// Deny builds a denying feature decision
func Deny(feature, reason string) EntitlementDecision {
	return EntitlementDecision{Allowed: false, Feature: feature, Reason: reason}
}

// DenyQuota builds a denying quota decision that did not get as far as comparing usage
func DenyQuota(meter Meter, requested int64, reason string) QuotaDecision {
	return QuotaDecision{Allowed: false, Quota: meter, Requested: requested, Reason: reason, Status: QuotaStatusExceeded}
}
