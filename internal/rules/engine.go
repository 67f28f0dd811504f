// Package rules provides the CEL-Go based deterministic rule engine.
package rules

import (
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/fraudlens/internal/domain"
)

// Engine evaluates the fixed rule vocabulary against transaction records.
// Programs are compiled once in NewEngine; Evaluate is pure and safe for
// concurrent use.
type Engine struct {
	env   *cel.Env
	rules []*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program for one rule kind.
type CompiledRule struct {
	Definition Definition
	Program    cel.Program
}

// NewEngine compiles every registered rule definition.
func NewEngine() (*Engine, error) {
	return NewEngineWithDefinitions(Definitions())
}

// NewEngineWithDefinitions compiles the given definitions in order.
func NewEngineWithDefinitions(defs []Definition) (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("geo_mismatch", cel.IntType),
		cel.Variable("device_fingerprint_changed", cel.BoolType),
		cel.Variable("high_velocity_flag", cel.IntType),
		cel.Variable("fraud_score", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Engine{env: env}
	for _, def := range defs {
		compiled, err := e.compileRule(def)
		if err != nil {
			return nil, err
		}
		e.rules = append(e.rules, compiled)
	}

	return e, nil
}

// MustNewEngine is like NewEngine but panics if a built-in rule fails to compile.
func MustNewEngine() *Engine {
	e, err := NewEngine()
	if err != nil {
		panic(err)
	}
	return e
}

// Evaluate returns the rules that fired for the record, in evaluation order.
// All applicable rules fire; there is no short-circuiting. Missing fields take
// their non-triggering defaults, and a rule whose program fails to evaluate
// simply does not fire.
func (e *Engine) Evaluate(rec *domain.TransactionRecord) domain.RuleFinding {
	activation := Activation(rec)

	var finding domain.RuleFinding
	for _, rule := range e.rules {
		fired, err := e.evaluateRule(rule, activation)
		if err != nil {
			slog.Debug("rule evaluation failed",
				"rule", rule.Definition.Kind.String(),
				"tx_id", rec.ID,
				"error", err,
			)
			continue
		}
		if fired {
			finding = append(finding, rule.Definition.Kind)
		}
	}

	return finding
}

// Activation builds the CEL variables for a record, applying defaults.
func Activation(rec *domain.TransactionRecord) map[string]any {
	return map[string]any{
		"amount":                     rec.AmountOrZero(),
		"geo_mismatch":               int64(rec.GeoMismatchOrZero()),
		"device_fingerprint_changed": rec.DeviceChanged(),
		"high_velocity_flag":         int64(rec.HighVelocityFlagOrZero()),
		"fraud_score":                rec.FraudScoreOrZero(),
	}
}

func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any) (bool, error) {
	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		return false, err
	}
	fired, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("rule %s returned %s, want bool", rule.Definition.Kind, out.Type())
	}
	return bool(fired), nil
}

// RulesCount returns the number of compiled rules.
func (e *Engine) RulesCount() int {
	return len(e.rules)
}

// LoadedDefinitions returns the compiled definitions in evaluation order.
func (e *Engine) LoadedDefinitions() []Definition {
	defs := make([]Definition, len(e.rules))
	for i, r := range e.rules {
		defs[i] = r.Definition
	}
	return defs
}

func (e *Engine) compileRule(def Definition) (*CompiledRule, error) {
	ast, issues := e.env.Compile(def.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", def.Kind, issues.Err())
	}

	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", def.Kind, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", def.Kind, err)
	}

	return &CompiledRule{
		Definition: def,
		Program:    program,
	}, nil
}
