// Package templates maps rule identifiers to analyst-facing descriptions.
package templates

import (
	"sort"
	"strings"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

// NoTemplate is returned for identifiers outside the template vocabulary.
const NoTemplate = "No template available for this reason."

// Categories
const (
	CategoryAmount     = "amount"
	CategoryLocation   = "location"
	CategoryDevice     = "device"
	CategoryVelocity   = "velocity"
	CategoryScore      = "score"
	CategoryHistorical = "historical"
	CategoryComplex    = "complex"
)

// Severities
const (
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Template is a description with {field} placeholders.
type Template struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Category string `json:"category"`
	Severity string `json:"severity"`
}

var vocabulary = map[string]Template{
	"high_transaction_amount": {
		Text:     "Transaction amount of ${transaction_amount} is unusually high compared to typical customer behavior.",
		Category: CategoryAmount, Severity: SeverityMedium,
	},
	"very_high_transaction_amount": {
		Text:     "Transaction amount of ${transaction_amount} is extremely high relative to customer's historical spending.",
		Category: CategoryAmount, Severity: SeverityHigh,
	},
	"location_mismatch": {
		Text:     "Transaction occurred in {transaction_country}, far from the customer's usual location ({customer_country}).",
		Category: CategoryLocation, Severity: SeverityMedium,
	},
	"geo_mismatch": {
		Text:     "Transaction country ({transaction_country}) does not match customer country ({customer_country}).",
		Category: CategoryLocation, Severity: SeverityHigh,
	},
	"new_device": {
		Text:     "Transaction was performed on an unrecognized device.",
		Category: CategoryDevice, Severity: SeverityMedium,
	},
	"device_fingerprint_changed": {
		Text:     "Device fingerprint has changed since the last known transaction.",
		Category: CategoryDevice, Severity: SeverityMedium,
	},
	"velocity_trigger": {
		Text:     "Multiple rapid transactions occurred in a short time period.",
		Category: CategoryVelocity, Severity: SeverityMedium,
	},
	"high_velocity_flag": {
		Text:     "Transaction frequency in a short period is unusually high.",
		Category: CategoryVelocity, Severity: SeverityHigh,
	},
	"high_fraud_score": {
		Text:     "The fraud model assigned a high risk score ({fraud_score}) to this transaction.",
		Category: CategoryScore, Severity: SeverityHigh,
	},
	"avg_amount_deviation": {
		Text:     "Transaction amount of ${transaction_amount} deviates significantly from customer's average transaction amount (${avg_amount_30d}).",
		Category: CategoryHistorical, Severity: SeverityMedium,
	},
	"merchant_category_anomaly": {
		Text:     "Transaction occurred in an unusual merchant category ({merchant_category}) for this customer.",
		Category: CategoryHistorical, Severity: SeverityMedium,
	},
	"time_of_day_anomaly": {
		Text:     "Transaction occurred at an unusual time of day ({transaction_timestamp}).",
		Category: CategoryHistorical, Severity: SeverityMedium,
	},
	"large_amount_geo_mismatch": {
		Text:     "A high-value transaction (${transaction_amount}) occurred in a country ({transaction_country}) different from the customer's usual location ({customer_country}).",
		Category: CategoryComplex, Severity: SeverityHigh,
	},
	"high_velocity_new_device": {
		Text:     "Multiple rapid transactions were made from a new device.",
		Category: CategoryComplex, Severity: SeverityHigh,
	},
	"complex_fraud_pattern": {
		Text:     "This transaction exhibits multiple risk factors including high amount, location mismatch, and device change.",
		Category: CategoryComplex, Severity: SeverityHigh,
	},
}

// Resolve returns the raw template text for a rule identifier, placeholders
// intact, or NoTemplate when the identifier is unknown.
func Resolve(id string) string {
	if t, ok := vocabulary[id]; ok {
		return t.Text
	}
	return NoTemplate
}

// Lookup returns the template for an identifier.
func Lookup(id string) (Template, bool) {
	t, ok := vocabulary[id]
	if !ok {
		return Template{}, false
	}
	t.ID = id
	return t, true
}

// All returns every template sorted by identifier.
func All() []Template {
	out := make([]Template, 0, len(vocabulary))
	for id, t := range vocabulary {
		t.ID = id
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Label returns the human-readable label for a rule identifier.
func Label(id string) string {
	return domain.RuleLabel(id)
}

// Render resolves the template and substitutes {field} placeholders with
// values from the record. Placeholders for absent fields are left as-is.
func Render(id string, rec *domain.TransactionRecord) string {
	text := Resolve(id)
	if rec == nil || !strings.Contains(text, "{") {
		return text
	}

	values := rec.StringMap()
	pairs := make([]string, 0, len(values)*2)
	for name, v := range values {
		pairs = append(pairs, "{"+name+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// Details describes every fired rule in evaluation order with its rendered
// template.
func Details(finding domain.RuleFinding, rec *domain.TransactionRecord) []domain.FindingDetail {
	if finding.Empty() {
		return nil
	}
	details := make([]domain.FindingDetail, 0, len(finding))
	for _, kind := range finding {
		id := kind.String()
		d := domain.FindingDetail{
			Rule:   id,
			Label:  kind.Label(),
			Detail: Render(id, rec),
		}
		if t, ok := vocabulary[id]; ok {
			d.Category = t.Category
			d.Severity = t.Severity
		}
		details = append(details, d)
	}
	return details
}

// Texts returns the raw template texts of the fired rules in evaluation order.
func Texts(finding domain.RuleFinding) []string {
	texts := make([]string, len(finding))
	for i, kind := range finding {
		texts[i] = Resolve(kind.String())
	}
	return texts
}
