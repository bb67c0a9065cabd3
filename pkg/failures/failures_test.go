package failures_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_IsAndUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset by peer")
	err := fmt.Errorf("send: %w", failures.Wrap(failures.KindTransient, "slack", cause))

	assert.ErrorIs(t, err, failures.ErrTransient)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, failures.ErrFatal)
	assert.Equal(t, failures.KindTransient, failures.KindOf(err))
	assert.Equal(t, "send: slack: connection reset by peer", err.Error())
}

func TestWrap_Nil(t *testing.T) {
	t.Parallel()

	assert.NoError(t, failures.Wrap(failures.KindFatal, "op", nil))
}

func TestStatusOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"explicit auth status", failures.Auth(http.StatusForbidden, "nope"), http.StatusForbidden},
		{"validation", failures.New(failures.KindValidation, "trigger", "no trigger"), http.StatusUnprocessableEntity},
		{"configuration", failures.New(failures.KindConfiguration, "webhook", "missing secret"), http.StatusInternalServerError},
		{"untyped", errors.New("x"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, failures.StatusOf(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient kind", failures.New(failures.KindTransient, "http", "HTTP 503"), true},
		{"fatal kind with retryable text", failures.New(failures.KindFatal, "http", "HTTP 503"), false},
		{"configuration kind", failures.New(failures.KindConfiguration, "slack", "no slack integration"), false},
		{"validation kind", failures.New(failures.KindValidation, "", "bad"), false},
		{"untyped network", errors.New("dial tcp: connection refused"), true},
		{"untyped rate limit", errors.New("too many requests"), true},
		{"untyped client error", errors.New("HTTP 400 bad request"), false},
		{"untyped unknown", errors.New("boom"), false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, failures.IsRetryable(tt.err))
		})
	}
}

func TestNewf(t *testing.T) {
	t.Parallel()

	err := failures.Newf(failures.KindData, "resolve", "unresolved variable %s", "{{x}}")
	require.ErrorIs(t, err, failures.ErrData)
	assert.Equal(t, "resolve: unresolved variable {{x}}", err.Error())
}
