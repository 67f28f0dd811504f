package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the layout used by fraud model output files.
const TimestampLayout = "2006-01-02 15:04:05"

// TransactionRecord is one row of validated fraud model output.
// Optional fields are pointers; a nil value means the field was missing and
// every consumer must fall back to the field's non-triggering default.
type TransactionRecord struct {
	// Core identifier
	ID string `json:"transaction_id"`

	// Numeric fields
	Amount       *float64 `json:"transaction_amount,omitempty"`
	Velocity1h   *int     `json:"velocity_1h,omitempty"`
	AvgAmount30d *float64 `json:"avg_amount_30d,omitempty"`
	FraudScore   *float64 `json:"fraud_score,omitempty"`

	// Categorical fields
	MerchantCategory   string `json:"merchant_category,omitempty"`
	TransactionCountry string `json:"transaction_country,omitempty"`
	CustomerCountry    string `json:"customer_country,omitempty"`

	// Behavioural indicators
	DeviceFingerprintChanged *bool `json:"device_fingerprint_changed,omitempty"`
	GeoMismatch              *int  `json:"geo_mismatch,omitempty"`
	HighVelocityFlag         *int  `json:"high_velocity_flag,omitempty"`

	// Model label: 0 = not fraud, 1 = fraud
	FraudPrediction int `json:"fraud_prediction"`

	// Temporal
	Timestamp *Timestamp `json:"transaction_timestamp,omitempty"`

	// Extra holds any additional columns produced by the scoring model
	// (e.g. synthetic features). They are carried through to the output.
	Extra map[string]any `json:"extra,omitempty"`
}

// AmountOrZero returns the transaction amount or 0 when missing.
func (r *TransactionRecord) AmountOrZero() float64 {
	if r == nil || r.Amount == nil {
		return 0
	}
	return *r.Amount
}

// FraudScoreOrZero returns the model risk score or 0 when missing.
func (r *TransactionRecord) FraudScoreOrZero() float64 {
	if r == nil || r.FraudScore == nil {
		return 0
	}
	return *r.FraudScore
}

// GeoMismatchOrZero returns the geo mismatch indicator or 0 when missing.
func (r *TransactionRecord) GeoMismatchOrZero() int {
	if r == nil || r.GeoMismatch == nil {
		return 0
	}
	return *r.GeoMismatch
}

// HighVelocityFlagOrZero returns the velocity indicator or 0 when missing.
func (r *TransactionRecord) HighVelocityFlagOrZero() int {
	if r == nil || r.HighVelocityFlag == nil {
		return 0
	}
	return *r.HighVelocityFlag
}

// DeviceChanged returns the device fingerprint flag or false when missing.
func (r *TransactionRecord) DeviceChanged() bool {
	if r == nil || r.DeviceFingerprintChanged == nil {
		return false
	}
	return *r.DeviceFingerprintChanged
}

// Fields returns the record's present fields in the fixed output order:
// identifier, score, label, then the remaining original columns, then
// Extra keys sorted lexically, skipping reserved column names.
func (r *TransactionRecord) Fields() []Field {
	fields := []Field{{Name: FieldTransactionID, Value: r.ID}}
	if r.FraudScore != nil {
		fields = append(fields, Field{Name: FieldFraudScore, Value: *r.FraudScore})
	}
	fields = append(fields, Field{Name: FieldFraudPrediction, Value: r.FraudPrediction})
	return append(fields, r.remainingFields()...)
}

// remainingFields returns the original columns after identifier, score and label.
func (r *TransactionRecord) remainingFields() []Field {
	var fields []Field
	add := func(name string, value any) {
		fields = append(fields, Field{Name: name, Value: value})
	}

	if r.Amount != nil {
		add("transaction_amount", *r.Amount)
	}
	if r.MerchantCategory != "" {
		add("merchant_category", r.MerchantCategory)
	}
	if r.TransactionCountry != "" {
		add("transaction_country", r.TransactionCountry)
	}
	if r.CustomerCountry != "" {
		add("customer_country", r.CustomerCountry)
	}
	if r.DeviceFingerprintChanged != nil {
		add("device_fingerprint_changed", *r.DeviceFingerprintChanged)
	}
	if r.Timestamp != nil {
		add("transaction_timestamp", r.Timestamp.String())
	}
	if r.Velocity1h != nil {
		add("velocity_1h", *r.Velocity1h)
	}
	if r.AvgAmount30d != nil {
		add("avg_amount_30d", *r.AvgAmount30d)
	}
	if r.GeoMismatch != nil {
		add("geo_mismatch", *r.GeoMismatch)
	}
	if r.HighVelocityFlag != nil {
		add("high_velocity_flag", *r.HighVelocityFlag)
	}

	for _, k := range sortedKeys(r.Extra) {
		if ReservedField(k) {
			continue
		}
		add(k, r.Extra[k])
	}

	return fields
}

// StringMap returns every present field stringified, keyed by column name.
// Used for placeholder substitution in templates.
func (r *TransactionRecord) StringMap() map[string]string {
	fields := r.Fields()
	m := make(map[string]string, len(fields))
	for _, f := range fields {
		m[f.Name] = FormatValue(f.Value)
	}
	return m
}

// FormatValue renders a field value the way it appears in prompts and templates.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.4f", val), "0"), ".")
	case bool:
		if val {
			return "True"
		}
		return "False"
	default:
		return fmt.Sprint(val)
	}
}

// Timestamp wraps time.Time with the fraud model output layout.
type Timestamp struct {
	time.Time
}

// String formats the timestamp using TimestampLayout.
func (t Timestamp) String() string {
	return t.Time.Format(TimestampLayout)
}

// MarshalJSON encodes the timestamp using TimestampLayout.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts TimestampLayout or RFC3339.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("transaction_timestamp must be a string: %w", err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// ParseTimestamp parses TimestampLayout, falling back to RFC3339.
func ParseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(TimestampLayout, s); err == nil {
		return ts, nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid transaction_timestamp format: %s", s)
	}
	return ts, nil
}
