package persistence_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/flowforge/flowforge/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestEntityError(t *testing.T) {
	t.Parallel()

	t.Run("wraps the sentinel", func(t *testing.T) {
		t.Parallel()

		err := persistence.NewEntityError("ExecutionByID", "execution", "exec-1", persistence.ErrExecutionNotFound)

		assert.True(t, errors.Is(err, persistence.ErrExecutionNotFound))
		assert.Equal(t, "ExecutionByID operation failed for execution exec-1: execution not found", err.Error())
	})

	t.Run("without id", func(t *testing.T) {
		t.Parallel()

		err := persistence.NewEntityError("ScheduleTriggers", "trigger", "", errors.New("boom"))

		assert.Equal(t, "ScheduleTriggers operation failed for trigger: boom", err.Error())
	})
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	assert.True(t, persistence.IsNotFound(persistence.ErrWorkflowNotFound))
	assert.True(t, persistence.IsNotFound(fmt.Errorf("load: %w", persistence.ErrAPIKeyNotFound)))
	assert.False(t, persistence.IsNotFound(persistence.ErrExecutionFinalized))
	assert.False(t, persistence.IsNotFound(nil))
}
