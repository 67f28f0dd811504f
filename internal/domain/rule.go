package domain

import "strings"

// RuleKind identifies a deterministic risk rule from the closed vocabulary.
type RuleKind int

// Rule kinds in evaluation order. The order is part of the output contract:
// it drives both the rule summary and the narrative prompt.
const (
	RuleHighTransactionAmount RuleKind = iota + 1
	RuleGeoMismatch
	RuleDeviceFingerprintChanged
	RuleHighVelocity
	RuleHighFraudScore
	RuleLargeAmountGeoMismatch
)

var ruleIdentifiers = map[RuleKind]string{
	RuleHighTransactionAmount:    "high_transaction_amount",
	RuleGeoMismatch:              "geo_mismatch",
	RuleDeviceFingerprintChanged: "device_fingerprint_changed",
	RuleHighVelocity:             "high_velocity_flag",
	RuleHighFraudScore:           "high_fraud_score",
	RuleLargeAmountGeoMismatch:   "large_amount_geo_mismatch",
}

var ruleLabels = map[RuleKind]string{
	RuleHighTransactionAmount:    "High Transaction Amount",
	RuleGeoMismatch:              "Geo Mismatch",
	RuleDeviceFingerprintChanged: "Device Fingerprint Changed",
	RuleHighVelocity:             "High Velocity",
	RuleHighFraudScore:           "High Fraud Score",
	RuleLargeAmountGeoMismatch:   "Large Amount + Geo Mismatch",
}

// NoFindingsSummary is the rule summary used when no rule fired.
const NoFindingsSummary = "No notable patterns"

// String returns the rule identifier, e.g. "high_transaction_amount".
func (k RuleKind) String() string {
	if id, ok := ruleIdentifiers[k]; ok {
		return id
	}
	return "unknown"
}

// Label returns the analyst-facing label for the rule.
func (k RuleKind) Label() string {
	if label, ok := ruleLabels[k]; ok {
		return label
	}
	return k.String()
}

// ParseRuleKind maps a rule identifier back to its kind.
func ParseRuleKind(id string) (RuleKind, bool) {
	for kind, ident := range ruleIdentifiers {
		if ident == id {
			return kind, true
		}
	}
	return 0, false
}

// RuleLabel returns the label for a rule identifier, or the identifier itself
// when it is not part of the vocabulary.
func RuleLabel(id string) string {
	if kind, ok := ParseRuleKind(id); ok {
		return kind.Label()
	}
	return id
}

// RuleFinding is the ordered set of rules that fired for one transaction.
// It is always recomputed from a TransactionRecord, never stored on its own.
type RuleFinding []RuleKind

// Empty reports whether no rule fired.
func (f RuleFinding) Empty() bool {
	return len(f) == 0
}

// Identifiers returns the rule identifiers in evaluation order.
func (f RuleFinding) Identifiers() []string {
	ids := make([]string, len(f))
	for i, k := range f {
		ids[i] = k.String()
	}
	return ids
}

// Summary joins the rule labels with ", " or returns NoFindingsSummary.
func (f RuleFinding) Summary() string {
	if f.Empty() {
		return NoFindingsSummary
	}
	labels := make([]string, len(f))
	for i, k := range f {
		labels[i] = k.Label()
	}
	return strings.Join(labels, ", ")
}

// Contains reports whether the given rule fired.
func (f RuleFinding) Contains(kind RuleKind) bool {
	for _, k := range f {
		if k == kind {
			return true
		}
	}
	return false
}

// FindingDetail is the human-facing description of one fired rule.
type FindingDetail struct {
	Rule     string `json:"rule"`
	Label    string `json:"label"`
	Category string `json:"category"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}
