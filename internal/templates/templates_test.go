package templates

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/opensource-finance/fraudlens/internal/domain"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"device_fingerprint_changed", "Device fingerprint has changed since the last known transaction."},
		{"high_fraud_score", "The fraud model assigned a high risk score ({fraud_score}) to this transaction."},
		{"high_velocity_flag", "Transaction frequency in a short period is unusually high."},
		{"not_a_rule", NoTemplate},
		{"", NoTemplate},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := Resolve(tt.id); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestEveryRuleHasTemplate(t *testing.T) {
	kinds := []domain.RuleKind{
		domain.RuleHighTransactionAmount,
		domain.RuleGeoMismatch,
		domain.RuleDeviceFingerprintChanged,
		domain.RuleHighVelocity,
		domain.RuleHighFraudScore,
		domain.RuleLargeAmountGeoMismatch,
	}
	for _, k := range kinds {
		if Resolve(k.String()) == NoTemplate {
			t.Errorf("rule %s has no template", k)
		}
	}
}

func TestAll(t *testing.T) {
	all := All()
	if len(all) != 15 {
		t.Fatalf("expected 15 templates, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID >= all[i].ID {
			t.Errorf("templates not sorted: %s before %s", all[i-1].ID, all[i].ID)
		}
	}
}

func TestRender(t *testing.T) {
	amount := 12000.0
	score := 0.85
	rec := &domain.TransactionRecord{
		ID:                 "TX001",
		Amount:             &amount,
		FraudScore:         &score,
		TransactionCountry: "NG",
		CustomerCountry:    "US",
	}

	tests := []struct {
		id   string
		want string
	}{
		{"high_transaction_amount", "Transaction amount of $12000 is unusually high compared to typical customer behavior."},
		{"geo_mismatch", "Transaction country (NG) does not match customer country (US)."},
		{"high_fraud_score", "The fraud model assigned a high risk score (0.85) to this transaction."},
		{"new_device", "Transaction was performed on an unrecognized device."},
		{"unknown", NoTemplate},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := Render(tt.id, rec); got != tt.want {
				t.Errorf("Render(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestRenderMissingField(t *testing.T) {
	rec := &domain.TransactionRecord{ID: "TX002"}

	got := Render("avg_amount_deviation", rec)
	if !strings.Contains(got, "{avg_amount_30d}") {
		t.Errorf("expected placeholder to remain for missing field, got %q", got)
	}

	if got := Render("geo_mismatch", nil); got != Resolve("geo_mismatch") {
		t.Errorf("nil record should return raw template, got %q", got)
	}
}

func TestDetails(t *testing.T) {
	amount := 6000.0
	rec := &domain.TransactionRecord{ID: "TX003", Amount: &amount}
	finding := domain.RuleFinding{domain.RuleHighTransactionAmount, domain.RuleDeviceFingerprintChanged}

	got := Details(finding, rec)
	want := []domain.FindingDetail{
		{
			Rule:     "high_transaction_amount",
			Label:    "High Transaction Amount",
			Category: CategoryAmount,
			Severity: SeverityMedium,
			Detail:   "Transaction amount of $6000 is unusually high compared to typical customer behavior.",
		},
		{
			Rule:     "device_fingerprint_changed",
			Label:    "Device Fingerprint Changed",
			Category: CategoryDevice,
			Severity: SeverityMedium,
			Detail:   "Device fingerprint has changed since the last known transaction.",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("details mismatch (-want +got):\n%s", diff)
	}

	if Details(nil, rec) != nil {
		t.Error("expected nil details for empty finding")
	}
}

func TestLabel(t *testing.T) {
	if got := Label("large_amount_geo_mismatch"); got != "Large Amount + Geo Mismatch" {
		t.Errorf("unexpected label %q", got)
	}
	if got := Label("custom_rule"); got != "custom_rule" {
		t.Errorf("unknown id should label as itself, got %q", got)
	}
}
