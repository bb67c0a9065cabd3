package delay_test

import (
	"context"
	"testing"
	"time"

	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/flowforge/flowforge/pkg/nodes/delay"
	"github.com/flowforge/flowforge/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		config   map[string]any
		want     time.Duration
		wantKind failures.Kind
	}{
		{name: "seconds", config: map[string]any{"seconds": float64(2)}, want: 2 * time.Second},
		{name: "numeric string", config: map[string]any{"seconds": "1.5"}, want: 1500 * time.Millisecond},
		{name: "duration", config: map[string]any{"duration": "2m"}, want: 2 * time.Minute},
		{name: "capped", config: map[string]any{"seconds": float64(3600)}, want: delay.MaxDelay},
		{name: "capped before overflow", config: map[string]any{"seconds": float64(1e10)}, want: delay.MaxDelay},
		{name: "huge negative", config: map[string]any{"seconds": float64(-1e12)}, wantKind: failures.KindConfiguration},
		{name: "not a number", config: map[string]any{"seconds": "NaN"}, wantKind: failures.KindConfiguration},
		{name: "missing", config: map[string]any{}, wantKind: failures.KindConfiguration},
		{name: "negative", config: map[string]any{"seconds": float64(-1)}, wantKind: failures.KindConfiguration},
		{name: "bad duration", config: map[string]any{"duration": "soon"}, wantKind: failures.KindConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := delay.Duration(tt.config)
			if tt.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, failures.KindOf(err))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAdapter_Execute(t *testing.T) {
	t.Parallel()

	out, err := delay.New().Execute(context.Background(), protocol.Input{
		Config: map[string]any{"seconds": 0.02},
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, out["waited_ms"], int64(20))
}

func TestAdapter_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := delay.New().Execute(ctx, protocol.Input{Config: map[string]any{"seconds": float64(60)}})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}
