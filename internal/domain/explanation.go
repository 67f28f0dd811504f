package domain

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Output column names. The order of ExplainedRecord.Fields is the output
// schema that reporting and feedback consumers depend on.
const (
	FieldTransactionID   = "transaction_id"
	FieldFraudScore      = "fraud_score"
	FieldFraudPrediction = "fraud_prediction"
	FieldExplanation     = "explanation"
	FieldRuleFactors     = "rule_based_factors"

	fieldTopFeature      = "top_feature_"
	fieldTopFeatureValue = "top_feature_value_"
)

var recordColumns = map[string]bool{
	FieldTransactionID:           true,
	FieldFraudScore:              true,
	FieldFraudPrediction:         true,
	"transaction_amount":         true,
	"merchant_category":          true,
	"transaction_country":        true,
	"customer_country":           true,
	"device_fingerprint_changed": true,
	"transaction_timestamp":      true,
	"velocity_1h":                true,
	"avg_amount_30d":             true,
	"geo_mismatch":               true,
	"high_velocity_flag":         true,
}

// ReservedField reports whether name is a column the output row owns: a
// record column, the narrative, the rule summary or a ranked attribution
// column. Extra values under a reserved name are never emitted.
func ReservedField(name string) bool {
	switch {
	case recordColumns[name], name == FieldExplanation, name == FieldRuleFactors:
		return true
	case strings.HasPrefix(name, fieldTopFeature):
		return true
	}
	return false
}

// TopFeatureField returns the column name for the feature at rank (1-based).
func TopFeatureField(rank int) string {
	return fieldTopFeature + strconv.Itoa(rank)
}

// TopFeatureValueField returns the column name for the contribution at rank (1-based).
func TopFeatureValueField(rank int) string {
	return fieldTopFeatureValue + strconv.Itoa(rank)
}

// Field is a named output value.
type Field struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// Contribution is one feature's signed influence on the model score.
type Contribution struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
}

// AttributionRanking is the top-K contributions ordered by descending
// absolute value, ties kept in original feature order.
type AttributionRanking []Contribution

// Stage is a step of the per-transaction assembly state machine.
type Stage string

const (
	StageValidated          Stage = "validated"
	StageRulesEvaluated     Stage = "rules_evaluated"
	StageNarrativeRequested Stage = "narrative_requested"
	StageAttributionMerged  Stage = "attribution_merged"
	StageAssembled          Stage = "assembled"
)

// Narrative outcome constants
const (
	NarrativeGenerated = "generated"
	NarrativeBenign    = "benign"
	NarrativeCached    = "cached"
	NarrativeFailed    = "failed"
)

// ExplainedRecord is the terminal per-transaction output. It is created once
// by the assembler and never mutated afterwards.
type ExplainedRecord struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`

	Record      TransactionRecord  `json:"record"`
	Narrative   string             `json:"explanation"`
	RuleSummary string             `json:"ruleBasedFactors"`
	Rules       []string           `json:"rules"`
	Details     []FindingDetail    `json:"details,omitempty"`
	Attribution AttributionRanking `json:"attribution,omitempty"`

	Metadata ExplanationMetadata `json:"metadata"`
}

// ExplanationMetadata contains processing information.
type ExplanationMetadata struct {
	TraceID         string  `json:"traceId,omitempty"`
	Stage           Stage   `json:"stage"`
	Stages          []Stage `json:"stages"`
	Model           string  `json:"model,omitempty"`
	NarrativeStatus string  `json:"narrativeStatus"`
	RulesEvaluated  int     `json:"rulesEvaluated"`
	RulesFired      int     `json:"rulesFired"`
	NarrativeMs     int64   `json:"narrativeMs"`
	TotalMs         int64   `json:"totalMs"`
	EngineVersion   string  `json:"engineVersion"`
}

// Fields returns the output columns in their fixed order: identifier, score,
// label, narrative, rule summary, ranked attribution pairs, then the
// remaining original record fields. Absent fields are omitted but never
// reordered.
func (e *ExplainedRecord) Fields() []Field {
	fields := []Field{{Name: FieldTransactionID, Value: e.Record.ID}}
	if e.Record.FraudScore != nil {
		fields = append(fields, Field{Name: FieldFraudScore, Value: *e.Record.FraudScore})
	}
	fields = append(fields,
		Field{Name: FieldFraudPrediction, Value: e.Record.FraudPrediction},
		Field{Name: FieldExplanation, Value: e.Narrative},
		Field{Name: FieldRuleFactors, Value: e.RuleSummary},
	)

	for i, c := range e.Attribution {
		fields = append(fields,
			Field{Name: TopFeatureField(i + 1), Value: c.Feature},
			Field{Name: TopFeatureValueField(i + 1), Value: c.Value},
		)
	}

	return append(fields, e.Record.remainingFields()...)
}

// FieldNames returns the ordered column names of Fields.
func (e *ExplainedRecord) FieldNames() []string {
	fields := e.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

// OrderedJSON encodes Fields as a JSON object preserving column order.
func (e *ExplainedRecord) OrderedJSON() ([]byte, error) {
	return encodeOrdered(e.Fields())
}

// ExplanationResponse is the API view of an explained record: the ordered
// output row plus audit detail.
type ExplanationResponse struct {
	ID       string              `json:"id"`
	Row      OrderedFields       `json:"row"`
	Rules    []string            `json:"rules"`
	Details  []FindingDetail     `json:"details,omitempty"`
	Metadata ExplanationMetadata `json:"metadata"`
}

// ToResponse converts an ExplainedRecord to its API response.
func (e *ExplainedRecord) ToResponse() *ExplanationResponse {
	return &ExplanationResponse{
		ID:       e.ID,
		Row:      OrderedFields(e.Fields()),
		Rules:    e.Rules,
		Details:  e.Details,
		Metadata: e.Metadata,
	}
}

// OrderedFields marshals to a JSON object whose keys keep slice order.
type OrderedFields []Field

// MarshalJSON implements json.Marshaler.
func (o OrderedFields) MarshalJSON() ([]byte, error) {
	return encodeOrdered(o)
}

func encodeOrdered(fields []Field) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func sortedKeys(m map[string]any) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
