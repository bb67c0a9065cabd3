package transform_test

import (
	"context"
	"testing"

	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/flowforge/flowforge/pkg/nodes/transform"
	"github.com/flowforge/flowforge/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapter_Execute(t *testing.T) {
	t.Parallel()

	base := protocol.Input{
		TriggerData: map[string]any{"user": map[string]any{"name": "Ada", "age": 36}},
		Results: map[string]any{
			"fetch": map[string]any{"items": []any{1, 2, 3}},
		},
	}

	tests := []struct {
		name     string
		config   map[string]any
		want     map[string]any
		wantKind failures.Kind
	}{
		{
			name:   "query over trigger data",
			config: map[string]any{"query": ".trigger.data.user.name"},
			want:   map[string]any{"result": "Ada"},
		},
		{
			name:   "query over results",
			config: map[string]any{"query": "[.results.fetch.items[] * 2]"},
			want:   map[string]any{"result": []any{float64(2), float64(4), float64(6)}},
		},
		{
			name:   "multiple outputs are collected",
			config: map[string]any{"query": ".[]", "input": []any{"a", "b"}},
			want:   map[string]any{"result": []any{"a", "b"}},
		},
		{
			name:   "no output",
			config: map[string]any{"query": "empty"},
			want:   map[string]any{"result": nil},
		},
		{
			name:   "mapping is returned as is",
			config: map[string]any{"mapping": map[string]any{"greeting": "hi Ada"}},
			want:   map[string]any{"greeting": "hi Ada"},
		},
		{name: "missing query", config: map[string]any{}, wantKind: failures.KindConfiguration},
		{name: "bad query", config: map[string]any{"query": ".["}, wantKind: failures.KindConfiguration},
		{name: "runtime error", config: map[string]any{"query": "error(\"boom\")"}, wantKind: failures.KindData},
	}

	adapter := transform.New()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			in := base
			in.Config = tt.config

			out, err := adapter.Execute(context.Background(), in)
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, failures.KindOf(err))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}
