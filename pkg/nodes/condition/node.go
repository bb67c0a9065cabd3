// Package condition evaluates a comparison or boolean expression and picks the yes or no branch.
package condition

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/protocol"
	"github.com/flowforge/flowforge/pkg/template"
)

const (
	OpEquals         = "equals"
	OpNotEquals      = "not_equals"
	OpGreaterThan    = "greater_than"
	OpLessThan       = "less_than"
	OpGreaterOrEqual = "greater_or_equal"
	OpLessOrEqual    = "less_or_equal"
	OpContains       = "contains"
	OpNotContains    = "not_contains"
	OpStartsWith     = "starts_with"
	OpEndsWith       = "ends_with"
	OpIsEmpty        = "is_empty"
	OpIsNotEmpty     = "is_not_empty"
	OpExpression     = "expression"
)

// Operators lists every supported operator.
var Operators = []string{
	OpEquals, OpNotEquals, OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual,
	OpContains, OpNotContains, OpStartsWith, OpEndsWith, OpIsEmpty, OpIsNotEmpty, OpExpression,
}

type Adapter struct{}

func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Execute(_ context.Context, in protocol.Input) (map[string]any, error) {
	operator := protocol.String(in.Config, "operator")
	expression := protocol.String(in.Config, "expression")

	if operator == "" && expression != "" {
		operator = OpExpression
	}

	if operator == "" {
		return nil, protocol.MissingField(models.NodeTypeCondition, "operator")
	}

	var (
		result bool
		err    error
	)

	if operator == OpExpression {
		result, err = evaluateExpression(expression, in)
	} else {
		result, err = Compare(operator, fieldValue(in.Config["field"]), in.Config["value"])
	}

	if err != nil {
		return nil, err
	}

	branch := models.HandleNo
	if result {
		branch = models.HandleYes
	}

	return map[string]any{
		"result": result,
		"branch": branch,
	}, nil
}

// fieldValue treats a reference that did not resolve as an absent value.
func fieldValue(v any) any {
	if s, ok := v.(string); ok && template.IsPlaceholder(s) {
		return nil
	}

	return v
}

func evaluateExpression(expression string, in protocol.Input) (bool, error) {
	if expression == "" {
		return false, protocol.MissingField(models.NodeTypeCondition, "expression")
	}

	env := map[string]any{
		"trigger": map[string]any{"data": in.TriggerData},
		"results": in.Results,
		"item":    in.Item,
		"index":   in.Index,
	}

	program, err := expr.Compile(expression, expr.Env(env), expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return false, failures.Newf(failures.KindConfiguration, models.NodeTypeCondition, "invalid expression: %v", err)
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return false, failures.Newf(failures.KindData, models.NodeTypeCondition, "expression failed: %v", err)
	}

	result, ok := out.(bool)
	if !ok {
		return false, failures.Newf(failures.KindConfiguration, models.NodeTypeCondition, "expression must return a boolean, got %T", out)
	}

	return result, nil
}

// Compare applies operator to a resolved field value and the configured operand.
func Compare(operator string, field, value any) (bool, error) {
	switch operator {
	case OpEquals:
		return equal(field, value), nil
	case OpNotEquals:
		return !equal(field, value), nil
	case OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual:
		return ordered(operator, field, value), nil
	case OpContains:
		return contains(field, value), nil
	case OpNotContains:
		return !contains(field, value), nil
	case OpStartsWith:
		return field != nil && strings.HasPrefix(text(field), text(value)), nil
	case OpEndsWith:
		return field != nil && strings.HasSuffix(text(field), text(value)), nil
	case OpIsEmpty:
		return isEmpty(field), nil
	case OpIsNotEmpty:
		return !isEmpty(field), nil
	default:
		return false, failures.Newf(failures.KindConfiguration, models.NodeTypeCondition, "unknown operator %q", operator)
	}
}

func equal(a, b any) bool {
	if af, ok := protocol.ToFloat(a); ok {
		if bf, ok := protocol.ToFloat(b); ok {
			return af == bf
		}
	}

	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if ab, ok := a.(bool); ok {
		return text(b) == fmt.Sprint(ab)
	}

	return text(a) == text(b)
}

func ordered(operator string, a, b any) bool {
	af, aok := protocol.ToFloat(a)
	bf, bok := protocol.ToFloat(b)

	if !aok || !bok {
		return false
	}

	switch operator {
	case OpGreaterThan:
		return af > bf
	case OpLessThan:
		return af < bf
	case OpGreaterOrEqual:
		return af >= bf
	default:
		return af <= bf
	}
}

func contains(field, value any) bool {
	switch f := field.(type) {
	case nil:
		return false
	case string:
		return strings.Contains(f, text(value))
	case []any:
		for _, item := range f {
			if equal(item, value) {
				return true
			}
		}

		return false
	case map[string]any:
		_, ok := f[text(value)]

		return ok
	default:
		return strings.Contains(text(f), text(value))
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	default:
		return false
	}
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}

	return fmt.Sprint(v)
}
