package log

import (
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a --log-level value to a slog level. Unknown values mean info.
func ParseLevel(logLevel string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func Setup(logLevel string) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: ParseLevel(logLevel),
	})))
}

func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}

// WithExecution scopes logger to one execution, so every line of a run can be found by id.
func WithExecution(logger *slog.Logger, workflowID, executionID string) *slog.Logger {
	return logger.With("workflow_id", workflowID, "execution_id", executionID)
}
