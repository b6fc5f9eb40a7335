package evaluate

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"iris/internal/rule"
	"iris/pkg/metrics"
)

const (
	ModeLegacy = "legacy"
	ModeStrict = "strict"
)

type ConditionResult struct {
	Field         string        `json:"field"`
	Operator      rule.Operator `json:"operator"`
	ExpectedValue interface{}   `json:"expected_value"`
	ActualValue   interface{}   `json:"actual_value,omitempty"`
	Matched       bool          `json:"matched"`
}

type Result struct {
	Matched      bool              `json:"matched"`
	PerCondition []ConditionResult `json:"per_condition"`
}

// Evaluator produces a matched/unmatched verdict for a condition list
// against one evaluation record.
type Evaluator interface {
	Evaluate(ctx context.Context, conditions []rule.Condition, record map[string]interface{}) (*Result, error)
	Mode() string
}

func New(mode string) (Evaluator, error) {
	switch mode {
	case "", ModeLegacy:
		return NewLegacyEvaluator(), nil
	case ModeStrict:
		return NewStrictEvaluator()
	default:
		return nil, fmt.Errorf("unknown evaluation mode: %s", mode)
	}
}

type legacyEvaluator struct{}

func NewLegacyEvaluator() Evaluator {
	return &legacyEvaluator{}
}

func (e *legacyEvaluator) Mode() string {
	return ModeLegacy
}

// Evaluate reproduces the historical verdict algorithm: only the failure of
// an AND-joined (or first) condition can unmatch a rule. A failing OR-joined
// condition never affects the verdict; it is a soft, informational condition.
func (e *legacyEvaluator) Evaluate(ctx context.Context, conditions []rule.Condition, record map[string]interface{}) (*Result, error) {
	start := time.Now()

	overall := true
	perCondition := make([]ConditionResult, 0, len(conditions))

	for _, cond := range conditions {
		actual, found := Lookup(record, cond.Field)
		matched := found && predicate(cond.Operator, actual, cond.Value)

		perCondition = append(perCondition, ConditionResult{
			Field:         cond.Field,
			Operator:      cond.Operator,
			ExpectedValue: cond.Value,
			ActualValue:   actual,
			Matched:       matched,
		})

		if !matched && cond.JoinType != rule.JoinOr {
			overall = false
		}
	}

	metrics.ObserveRuleEvaluation(ModeLegacy, time.Since(start))
	return &Result{Matched: overall, PerCondition: perCondition}, nil
}

// Lookup resolves a dotted path against nested string-keyed maps. A missing
// segment returns found=false; it never panics.
func Lookup(record map[string]interface{}, path string) (interface{}, bool) {
	segments := strings.Split(path, ".")
	var current interface{} = record

	for _, segment := range segments {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func predicate(op rule.Operator, actual, expected interface{}) bool {
	if af, ok := toFloat(actual); ok {
		if ef, ok := toFloat(expected); ok {
			return compareFloats(op, af, ef)
		}
	}

	if as, ok := actual.(string); ok {
		if es, ok := expected.(string); ok {
			return compareStrings(op, as, es)
		}
	}

	if op == rule.OperatorEQ {
		return reflect.DeepEqual(actual, expected)
	}

	return false
}

func compareFloats(op rule.Operator, actual, expected float64) bool {
	switch op {
	case rule.OperatorGT:
		return actual > expected
	case rule.OperatorLT:
		return actual < expected
	case rule.OperatorGTE:
		return actual >= expected
	case rule.OperatorLTE:
		return actual <= expected
	case rule.OperatorEQ:
		return actual == expected
	}
	return false
}

func compareStrings(op rule.Operator, actual, expected string) bool {
	switch op {
	case rule.OperatorGT:
		return actual > expected
	case rule.OperatorLT:
		return actual < expected
	case rule.OperatorGTE:
		return actual >= expected
	case rule.OperatorLTE:
		return actual <= expected
	case rule.OperatorEQ:
		return actual == expected
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
