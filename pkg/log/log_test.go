package log_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/flowforge/flowforge/pkg/log"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{" warning ", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, log.ParseLevel(tt.in))
		})
	}
}

func TestWithExecution(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := log.WithExecution(slog.New(slog.NewTextHandler(&buf, nil)), "wf-1", "exec-1")
	logger.Info("Execution started")

	assert.Contains(t, buf.String(), "workflow_id=wf-1")
	assert.Contains(t, buf.String(), "execution_id=exec-1")
}
