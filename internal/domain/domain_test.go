package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }
func boolp(v bool) *bool     { return &v }

func TestRuleFindingSummary(t *testing.T) {
	tests := []struct {
		name    string
		finding RuleFinding
		want    string
	}{
		{"empty", nil, NoFindingsSummary},
		{"single", RuleFinding{RuleGeoMismatch}, "Geo Mismatch"},
		{"ordered", RuleFinding{RuleHighTransactionAmount, RuleGeoMismatch, RuleLargeAmountGeoMismatch},
			"High Transaction Amount, Geo Mismatch, Large Amount + Geo Mismatch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.finding.Summary(); got != tt.want {
				t.Errorf("Summary() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRuleKindVocabulary(t *testing.T) {
	for kind := RuleHighTransactionAmount; kind <= RuleLargeAmountGeoMismatch; kind++ {
		parsed, ok := ParseRuleKind(kind.String())
		if !ok || parsed != kind {
			t.Errorf("ParseRuleKind(%q) = %v, %v", kind.String(), parsed, ok)
		}
	}

	if _, ok := ParseRuleKind("velocity_burst"); ok {
		t.Error("expected unknown identifier to be rejected")
	}
	if got := RuleLabel("velocity_burst"); got != "velocity_burst" {
		t.Errorf("expected unknown label to echo identifier, got %q", got)
	}
	if got := RuleKind(99).String(); got != "unknown" {
		t.Errorf("expected unknown, got %q", got)
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"US", "US"},
		{12000.0, "12000"},
		{0.85, "0.85"},
		{0.0, "0"},
		{true, "True"},
		{false, "False"},
		{7, "7"},
	}

	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExplainedRecordFields(t *testing.T) {
	ts, err := ParseTimestamp("2024-03-01 10:15:00")
	if err != nil {
		t.Fatalf("ParseTimestamp failed: %v", err)
	}

	rec := &ExplainedRecord{
		Record: TransactionRecord{
			ID:                       "TX001",
			Amount:                   f64(12000),
			FraudScore:               f64(0.91),
			MerchantCategory:         "electronics",
			DeviceFingerprintChanged: boolp(true),
			Timestamp:                &Timestamp{Time: ts},
			GeoMismatch:              intp(1),
			FraudPrediction:          1,
			Extra:                    map[string]any{"z_feature": 1.5, "a_feature": "x"},
		},
		Narrative:   "Flagged.",
		RuleSummary: "High Transaction Amount",
		Attribution: AttributionRanking{{Feature: "transaction_amount", Value: 0.4}},
	}

	want := []string{
		"transaction_id", "fraud_score", "fraud_prediction", "explanation", "rule_based_factors",
		"top_feature_1", "top_feature_value_1",
		"transaction_amount", "merchant_category", "device_fingerprint_changed",
		"transaction_timestamp", "geo_mismatch",
		"a_feature", "z_feature",
	}
	if diff := cmp.Diff(want, rec.FieldNames()); diff != "" {
		t.Errorf("field order mismatch (-want +got):\n%s", diff)
	}

	t.Run("MissingScoreOmitted", func(t *testing.T) {
		bare := &ExplainedRecord{Record: TransactionRecord{ID: "TX002"}, RuleSummary: NoFindingsSummary}
		want := []string{"transaction_id", "fraud_prediction", "explanation", "rule_based_factors"}
		if diff := cmp.Diff(want, bare.FieldNames()); diff != "" {
			t.Errorf("field order mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestOrderedJSON(t *testing.T) {
	rec := &ExplainedRecord{
		Record:      TransactionRecord{ID: "TX001", FraudScore: f64(0.5)},
		Narrative:   "n",
		RuleSummary: NoFindingsSummary,
	}

	got, err := rec.OrderedJSON()
	if err != nil {
		t.Fatalf("OrderedJSON failed: %v", err)
	}
	want := `{"transaction_id":"TX001","fraud_score":0.5,"fraud_prediction":0,"explanation":"n","rule_based_factors":"No notable patterns"}`
	if string(got) != want {
		t.Errorf("OrderedJSON = %s, want %s", got, want)
	}

	resp, err := json.Marshal(rec.ToResponse())
	if err != nil {
		t.Fatalf("marshal response failed: %v", err)
	}
	var decoded struct {
		Row json.RawMessage `json:"row"`
	}
	if err := json.Unmarshal(resp, &decoded); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	if string(decoded.Row) != want {
		t.Errorf("row = %s, want %s", decoded.Row, want)
	}
}

func TestTimestamp(t *testing.T) {
	t.Run("Layout", func(t *testing.T) {
		var ts Timestamp
		if err := json.Unmarshal([]byte(`"2024-03-01 10:15:00"`), &ts); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		out, err := json.Marshal(ts)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		if string(out) != `"2024-03-01 10:15:00"` {
			t.Errorf("unexpected encoding %s", out)
		}
	})

	t.Run("RFC3339", func(t *testing.T) {
		got, err := ParseTimestamp("2024-03-01T10:15:00Z")
		if err != nil {
			t.Fatalf("ParseTimestamp failed: %v", err)
		}
		if !got.Equal(time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC)) {
			t.Errorf("unexpected time %v", got)
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		var ts Timestamp
		if err := json.Unmarshal([]byte(`"yesterday"`), &ts); err == nil {
			t.Error("expected error for invalid timestamp")
		}
		if err := json.Unmarshal([]byte(`42`), &ts); err == nil {
			t.Error("expected error for non-string timestamp")
		}
	})
}

func TestRecordDefaults(t *testing.T) {
	var rec *TransactionRecord
	if rec.AmountOrZero() != 0 || rec.FraudScoreOrZero() != 0 || rec.DeviceChanged() {
		t.Error("expected zero defaults for nil record")
	}

	rec = &TransactionRecord{ID: "TX003", Velocity1h: intp(5), HighVelocityFlag: intp(1)}
	m := rec.StringMap()
	if m["velocity_1h"] != "5" || m["high_velocity_flag"] != "1" || m["transaction_id"] != "TX003" {
		t.Errorf("unexpected string map %v", m)
	}
	if _, ok := m["transaction_amount"]; ok {
		t.Error("expected missing amount to be absent")
	}
}

func TestExtraReservedNamesSkipped(t *testing.T) {
	rec := &ExplainedRecord{
		Record: TransactionRecord{
			ID: "TX9",
			Extra: map[string]any{
				"transaction_id":      "OTHER",
				"explanation":         "stale",
				"rule_based_factors":  "stale",
				"top_feature_1":       "stale",
				"top_feature_value_1": 0.9,
				"geo_mismatch":        1,
				"synthetic_feature":   39.84,
			},
		},
		Narrative:   "fresh",
		RuleSummary: NoFindingsSummary,
	}

	want := []string{"transaction_id", "fraud_prediction", "explanation", "rule_based_factors", "synthetic_feature"}
	if diff := cmp.Diff(want, rec.FieldNames()); diff != "" {
		t.Errorf("field names mismatch (-want +got):\n%s", diff)
	}

	var row map[string]any
	data, err := rec.OrderedJSON()
	if err != nil {
		t.Fatalf("OrderedJSON failed: %v", err)
	}
	if err := json.Unmarshal(data, &row); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if row["transaction_id"] != "TX9" || row["explanation"] != "fresh" {
		t.Errorf("stale extra value leaked into row: %s", data)
	}
}

func TestReservedField(t *testing.T) {
	for _, name := range []string{"transaction_id", "fraud_score", "explanation", "rule_based_factors", "top_feature_3", "top_feature_value_12", "velocity_1h"} {
		if !ReservedField(name) {
			t.Errorf("expected %s to be reserved", name)
		}
	}
	for _, name := range []string{"synthetic_feature", "top_features", "device_id"} {
		if ReservedField(name) {
			t.Errorf("expected %s to be free", name)
		}
	}
}
