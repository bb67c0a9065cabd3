package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/persistence"
	"github.com/flowforge/flowforge/pkg/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflows(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewPersistence()

	_, err := store.WorkflowByID(ctx, "missing")
	require.ErrorIs(t, err, persistence.ErrWorkflowNotFound)

	workflow := &models.Workflow{
		ID:     "wf-1",
		Name:   "Signup",
		UserID: "user-1",
		Status: models.WorkflowStatusActive,
		Nodes:  []*models.Node{{ID: "n1", Kind: models.NodeKindTrigger, Name: "Webhook"}},
	}
	require.NoError(t, store.SaveWorkflow(ctx, workflow))
	assert.False(t, workflow.CreatedAt.IsZero())

	loaded, err := store.WorkflowByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Signup", loaded.Name)

	loaded.Nodes[0].Name = "mutated"

	again, err := store.WorkflowByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Webhook", again.Nodes[0].Name, "stored workflow must not alias returned copies")
}

func TestExecutions_FinalizedAreImmutable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewPersistence()

	execution := &models.Execution{ID: "exec-1", WorkflowID: "wf-1", Status: models.ExecutionStatusPending, CreatedAt: time.Now()}
	require.NoError(t, store.CreateExecution(ctx, execution))

	execution.Status = models.ExecutionStatusRunning
	require.NoError(t, store.UpdateExecution(ctx, execution))

	execution.Status = models.ExecutionStatusCompleted
	require.NoError(t, store.UpdateExecution(ctx, execution))

	execution.Status = models.ExecutionStatusFailed
	require.ErrorIs(t, store.UpdateExecution(ctx, execution), persistence.ErrExecutionFinalized)

	loaded, err := store.ExecutionByID(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, loaded.Status)

	require.ErrorIs(t, store.UpdateExecution(ctx, &models.Execution{ID: "nope"}), persistence.ErrExecutionNotFound)
}

func TestExecutionsByWorkflow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewPersistence()
	base := time.Now()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.CreateExecution(ctx, &models.Execution{
			ID:         id,
			WorkflowID: "wf-1",
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}))
	}

	require.NoError(t, store.CreateExecution(ctx, &models.Execution{ID: "other", WorkflowID: "wf-2"}))

	executions, err := store.ExecutionsByWorkflow(ctx, "wf-1", 2)
	require.NoError(t, err)
	require.Len(t, executions, 2)
	assert.Equal(t, "c", executions[0].ID)
	assert.Equal(t, "b", executions[1].ID)
}

func TestSteps(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewPersistence()

	maxOrder, err := store.MaxStepOrder(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, 0, maxOrder)

	for _, order := range []int{2, 1, 3} {
		require.NoError(t, store.CreateStep(ctx, &models.ExecutionStep{
			ID:          "step-" + string(rune('0'+order)),
			ExecutionID: "exec-1",
			StepOrder:   order,
			Status:      models.StepStatusRunning,
		}))
	}

	err = store.CreateStep(ctx, &models.ExecutionStep{ID: "dup", ExecutionID: "exec-1", StepOrder: 2})
	require.ErrorIs(t, err, persistence.ErrDuplicateStepOrder)

	require.NoError(t, store.UpdateStep(ctx, &models.ExecutionStep{
		ID: "step-1", ExecutionID: "exec-1", StepOrder: 1, Status: models.StepStatusCompleted,
	}))
	require.ErrorIs(t, store.UpdateStep(ctx, &models.ExecutionStep{ID: "ghost", ExecutionID: "exec-1"}), persistence.ErrStepNotFound)

	steps, err := store.StepsByExecution(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{steps[0].StepOrder, steps[1].StepOrder, steps[2].StepOrder})
	assert.Equal(t, models.StepStatusCompleted, steps[0].Status)

	maxOrder, err = store.MaxStepOrder(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, 3, maxOrder)
}

func TestTriggers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewPersistence()

	require.NoError(t, store.SaveWebhookTrigger(ctx, &models.WebhookTrigger{
		ID: "t1", WorkflowID: "wf-1", WebhookToken: "tok", AuthMethod: models.WebhookAuthURLToken, IsActive: true,
	}))

	trigger, err := store.WebhookTriggerByToken(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", trigger.WorkflowID)

	_, err = store.WebhookTriggerByToken(ctx, "other")
	require.ErrorIs(t, err, persistence.ErrTriggerNotFound)

	require.NoError(t, store.SaveScheduleTrigger(ctx, &models.ScheduleTrigger{ID: "s2", CronExpr: "@hourly", Enabled: true}))
	require.NoError(t, store.SaveScheduleTrigger(ctx, &models.ScheduleTrigger{ID: "s1", CronExpr: "@daily"}))

	schedules, err := store.ScheduleTriggers(ctx)
	require.NoError(t, err)
	require.Len(t, schedules, 2)
	assert.Equal(t, "s1", schedules[0].ID)
}

func TestIntegrationsAndAPIKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewPersistence()

	require.NoError(t, store.SaveIntegration(ctx, &models.Integration{ID: "i1", UserID: "u1", Type: "slack", IsActive: false}))

	_, err := store.ActiveIntegration(ctx, "u1", "slack")
	require.ErrorIs(t, err, persistence.ErrIntegrationNotFound)

	require.NoError(t, store.SaveIntegration(ctx, &models.Integration{ID: "i2", UserID: "u1", Type: "slack", IsActive: true, EncryptedConfig: "ct"}))

	integration, err := store.ActiveIntegration(ctx, "u1", "slack")
	require.NoError(t, err)
	assert.Equal(t, "ct", integration.EncryptedConfig)

	all, err := store.Integrations(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, store.SaveAPIKey(ctx, &models.APIKey{ID: "k1", UserID: "u1", HashedKey: "h", Scopes: []string{"workflow:trigger"}}))

	key, err := store.APIKeyByHash(ctx, "h")
	require.NoError(t, err)
	assert.True(t, key.HasScope("workflow:trigger"))
	assert.Nil(t, key.LastUsedAt)

	usedAt := time.Now().UTC()
	require.NoError(t, store.TouchAPIKey(ctx, "k1", usedAt))

	key, err = store.APIKeyByHash(ctx, "h")
	require.NoError(t, err)
	require.NotNil(t, key.LastUsedAt)
	assert.True(t, usedAt.Equal(*key.LastUsedAt))

	require.ErrorIs(t, store.TouchAPIKey(ctx, "k2", usedAt), persistence.ErrAPIKeyNotFound)
}
