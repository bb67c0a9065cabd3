package condition_test

import (
	"context"
	"testing"

	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/nodes/condition"
	"github.com/flowforge/flowforge/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	t.Parallel()

	tests := []struct {
		operator string
		field    any
		value    any
		want     bool
	}{
		{condition.OpEquals, "active", "active", true},
		{condition.OpEquals, float64(3), "3", true},
		{condition.OpEquals, true, "true", true},
		{condition.OpEquals, nil, "x", false},
		{condition.OpNotEquals, "a", "b", true},
		{condition.OpGreaterThan, float64(101), float64(100), true},
		{condition.OpGreaterThan, "150", float64(100), true},
		{condition.OpGreaterThan, "abc", float64(100), false},
		{condition.OpLessThan, float64(1), float64(2), true},
		{condition.OpGreaterOrEqual, float64(2), float64(2), true},
		{condition.OpLessOrEqual, float64(3), float64(2), false},
		{condition.OpContains, "hello world", "world", true},
		{condition.OpContains, []any{"a", "b"}, "b", true},
		{condition.OpContains, nil, "b", false},
		{condition.OpNotContains, []any{"a"}, "b", true},
		{condition.OpStartsWith, "flowforge", "flow", true},
		{condition.OpEndsWith, "flowforge", "forge", true},
		{condition.OpEndsWith, nil, "", false},
		{condition.OpIsEmpty, "  ", nil, true},
		{condition.OpIsEmpty, []any{}, nil, true},
		{condition.OpIsEmpty, float64(0), nil, false},
		{condition.OpIsNotEmpty, map[string]any{"k": 1}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.operator, func(t *testing.T) {
			t.Parallel()

			got, err := condition.Compare(tt.operator, tt.field, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got, "%v %s %v", tt.field, tt.operator, tt.value)
		})
	}

	_, err := condition.Compare("between", 1, 2)
	require.ErrorIs(t, err, failures.ErrConfiguration)
}

func TestAdapter_Execute(t *testing.T) {
	t.Parallel()

	adapter := condition.New()

	out, err := adapter.Execute(context.Background(), protocol.Input{
		Config: map[string]any{"field": float64(150), "operator": "greater_than", "value": float64(100)},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"result": true, "branch": models.HandleYes}, out)

	out, err = adapter.Execute(context.Background(), protocol.Input{
		Config: map[string]any{"field": "{{trigger.data.missing}}", "operator": "is_empty"},
	})
	require.NoError(t, err)
	assert.Equal(t, true, out["result"], "unresolved references count as empty")

	out, err = adapter.Execute(context.Background(), protocol.Input{
		Config: map[string]any{"field": "{{trigger.data.missing}}", "operator": "equals", "value": "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.HandleNo, out["branch"])

	_, err = adapter.Execute(context.Background(), protocol.Input{Config: map[string]any{}})
	require.ErrorIs(t, err, failures.ErrConfiguration)
}

func TestAdapter_Expression(t *testing.T) {
	t.Parallel()

	adapter := condition.New()
	in := protocol.Input{
		TriggerData: map[string]any{"amount": float64(250), "tier": "gold"},
		Results:     map[string]any{"lookup": map[string]any{"found": true}},
	}

	tests := []struct {
		name       string
		expression string
		want       bool
		wantKind   failures.Kind
	}{
		{name: "numeric", expression: "trigger.data.amount > 100", want: true},
		{name: "combined", expression: `trigger.data.tier == "gold" && results.lookup.found`, want: true},
		{name: "false", expression: "trigger.data.amount < 10", want: false},
		{name: "syntax error", expression: "trigger.data.amount >", wantKind: failures.KindConfiguration},
		{name: "not boolean", expression: "trigger.data.amount + 1", wantKind: failures.KindConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			input := in
			input.Config = map[string]any{"operator": "expression", "expression": tt.expression}

			out, err := adapter.Execute(context.Background(), input)
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, failures.KindOf(err))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, out["result"])
		})
	}
}
