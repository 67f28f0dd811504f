package rules

import "github.com/opensource-finance/fraudlens/internal/domain"

// Definition binds a rule kind to the CEL expression that decides whether it fires.
type Definition struct {
	Kind        domain.RuleKind `json:"-"`
	ID          string          `json:"id"`
	Label       string          `json:"label"`
	Expression  string          `json:"expression"`
	Description string          `json:"description"`
}

// registry lists the rule vocabulary in evaluation order. Thresholds are fixed.
var registry = []Definition{
	{
		Kind:        domain.RuleHighTransactionAmount,
		Expression:  "amount > 5000.0",
		Description: "Transaction amount above 5000",
	},
	{
		Kind:        domain.RuleGeoMismatch,
		Expression:  "geo_mismatch == 1",
		Description: "Transaction country differs from customer country",
	},
	{
		Kind:        domain.RuleDeviceFingerprintChanged,
		Expression:  "device_fingerprint_changed",
		Description: "Device fingerprint changed since last transaction",
	},
	{
		Kind:        domain.RuleHighVelocity,
		Expression:  "high_velocity_flag == 1",
		Description: "High transaction frequency in a short window",
	},
	{
		Kind:        domain.RuleHighFraudScore,
		Expression:  "fraud_score >= 0.8",
		Description: "Model risk score at or above 0.8",
	},
	{
		// Fires alongside the simple amount and geo rules, never instead of them.
		Kind:        domain.RuleLargeAmountGeoMismatch,
		Expression:  "amount > 10000.0 && geo_mismatch == 1",
		Description: "Amount above 10000 combined with a geo mismatch",
	},
}

// Definitions returns a copy of the registered rules in evaluation order.
func Definitions() []Definition {
	defs := make([]Definition, len(registry))
	for i, d := range registry {
		d.ID = d.Kind.String()
		d.Label = d.Kind.Label()
		defs[i] = d
	}
	return defs
}
