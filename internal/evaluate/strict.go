package evaluate

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	celgo "github.com/google/cel-go/cel"

	"iris/internal/rule"
	pkgcel "iris/pkg/cel"
	"iris/pkg/metrics"
)

// strictEvaluator implements conventional boolean grouping by compiling the
// condition list to a CEL expression. AND binds tighter than OR, so an
// OR-joined condition can independently satisfy the rule. Kept as a distinct,
// explicitly selected mode; default behavior stays legacy.
type strictEvaluator struct {
	eval *pkgcel.Evaluator

	mu       sync.Mutex
	programs map[string]celgo.Program
}

func NewStrictEvaluator() (Evaluator, error) {
	eval, err := pkgcel.NewEvaluator()
	if err != nil {
		return nil, err
	}
	return &strictEvaluator{
		eval:     eval,
		programs: make(map[string]celgo.Program),
	}, nil
}

func (e *strictEvaluator) Mode() string {
	return ModeStrict
}

func (e *strictEvaluator) Evaluate(ctx context.Context, conditions []rule.Condition, record map[string]interface{}) (*Result, error) {
	start := time.Now()

	perCondition := make([]ConditionResult, 0, len(conditions))
	for _, cond := range conditions {
		actual, found := Lookup(record, cond.Field)
		perCondition = append(perCondition, ConditionResult{
			Field:         cond.Field,
			Operator:      cond.Operator,
			ExpectedValue: cond.Value,
			ActualValue:   actual,
			Matched:       found && predicate(cond.Operator, actual, cond.Value),
		})
	}

	expression, err := BuildExpression(conditions)
	if err != nil {
		return nil, err
	}

	program, err := e.program(expression)
	if err != nil {
		return nil, err
	}

	matched, err := e.eval.EvaluateBool(ctx, program, record)
	if err != nil {
		return nil, err
	}

	metrics.ObserveRuleEvaluation(ModeStrict, time.Since(start))
	return &Result{Matched: matched, PerCondition: perCondition}, nil
}

func (e *strictEvaluator) program(expression string) (celgo.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p, ok := e.programs[expression]; ok {
		return p, nil
	}

	p, err := e.eval.CompileBool(expression)
	if err != nil {
		return nil, err
	}
	e.programs[expression] = p
	return p, nil
}

// BuildExpression renders a condition list as one CEL boolean expression.
// CEL's native precedence gives && priority over ||, which is exactly the
// conventional grouping this mode exists to provide.
func BuildExpression(conditions []rule.Condition) (string, error) {
	var b strings.Builder
	for i, cond := range conditions {
		if i > 0 {
			if cond.JoinType == rule.JoinOr {
				b.WriteString(" || ")
			} else {
				b.WriteString(" && ")
			}
		}
		pred, err := predicateExpression(cond)
		if err != nil {
			return "", err
		}
		b.WriteString(pred)
	}
	return b.String(), nil
}

func predicateExpression(cond rule.Condition) (string, error) {
	value, err := renderValue(cond.Value)
	if err != nil {
		return "", fmt.Errorf("condition on %s: %w", cond.Field, err)
	}

	var op string
	switch cond.Operator {
	case rule.OperatorGT:
		op = ">"
	case rule.OperatorLT:
		op = "<"
	case rule.OperatorGTE:
		op = ">="
	case rule.OperatorLTE:
		op = "<="
	case rule.OperatorEQ:
		op = "=="
	default:
		return "", fmt.Errorf("condition on %s: unknown operator %s", cond.Field, cond.Operator)
	}

	path := "record"
	var guards []string
	for _, segment := range strings.Split(cond.Field, ".") {
		path = path + "." + segment
		guards = append(guards, "has("+path+")")
	}

	// Missing fields evaluate to false instead of erroring, matching the
	// legacy predicate contract.
	return fmt.Sprintf("(%s && %s %s %s)", strings.Join(guards, " && "), path, op, value), nil
}

func renderValue(v interface{}) (string, error) {
	if f, ok := toFloat(v); ok {
		s := strconv.FormatFloat(f, 'f', -1, 64)
		if !strings.ContainsAny(s, ".e") {
			s += ".0"
		}
		return s, nil
	}

	switch val := v.(type) {
	case string:
		return strconv.Quote(val), nil
	case bool:
		return strconv.FormatBool(val), nil
	}

	return "", fmt.Errorf("unsupported value type %T", v)
}
