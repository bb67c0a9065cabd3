package services

import (
	"net/http"
	"testing"

	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflow_HealthCheck(t *testing.T) {
	t.Parallel()

	msg, ok := NewWorkflow(memory.NewPersistence(), newTypes(t)).HealthCheck(t.Context())
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", msg)

	msg, ok = NewWorkflow(nil, newTypes(t)).HealthCheck(t.Context())
	assert.False(t, ok)
	assert.Equal(t, "Persistence layer not initialized", msg)
}

func TestWorkflow_Save(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		workflow   func() *models.Workflow
		wantStatus int
	}{
		{"active and valid", func() *models.Workflow { return validWorkflow("") }, 0},
		{
			name: "draft skips graph validation",
			workflow: func() *models.Workflow {
				wf := validWorkflow("")
				wf.Status = ""
				wf.Edges = nil

				return wf
			},
		},
		{"nil", func() *models.Workflow { return nil }, http.StatusBadRequest},
		{
			name: "missing name",
			workflow: func() *models.Workflow {
				wf := validWorkflow("")
				wf.Name = ""

				return wf
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "active with unreachable action",
			workflow: func() *models.Workflow {
				wf := validWorkflow("")
				wf.Edges = nil

				return wf
			},
			wantStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			service := NewWorkflow(memory.NewPersistence(), newTypes(t))

			saved, err := service.Save(t.Context(), tt.workflow())
			if tt.wantStatus != 0 {
				require.ErrorIs(t, err, failures.ErrValidation)
				assert.Equal(t, tt.wantStatus, failures.StatusOf(err))

				return
			}

			require.NoError(t, err)
			assert.NotEmpty(t, saved.ID)
			assert.False(t, saved.CreatedAt.IsZero())
			assert.NotEmpty(t, saved.Status)

			fetched, err := service.FetchByID(t.Context(), saved.ID)
			require.NoError(t, err)
			assert.Equal(t, saved.Name, fetched.Name)
		})
	}
}

func TestWorkflow_ActivateAndPause(t *testing.T) {
	t.Parallel()

	store := memory.NewPersistence()
	service := NewWorkflow(store, newTypes(t))

	wf := validWorkflow("wf-1")
	wf.Status = models.WorkflowStatusDraft
	seedWorkflow(t, store, wf)

	activated, err := service.Activate(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusActive, activated.Status)

	_, err = service.Activate(t.Context(), "wf-1")
	require.ErrorIs(t, err, ErrCannotReactivate)
	assert.Equal(t, http.StatusConflict, failures.StatusOf(err))

	paused, err := service.Pause(t.Context(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusPaused, paused.Status)

	_, err = service.Pause(t.Context(), "wf-1")
	require.ErrorIs(t, err, ErrNotActive)

	_, err = service.Activate(t.Context(), "missing")
	assert.Equal(t, http.StatusNotFound, failures.StatusOf(err))
}

func TestWorkflow_ActivateRejectsInvalidGraph(t *testing.T) {
	t.Parallel()

	store := memory.NewPersistence()
	service := NewWorkflow(store, newTypes(t))

	wf := validWorkflow("wf-1")
	wf.Status = models.WorkflowStatusDraft
	wf.Nodes[1].Config[models.TypeKey] = "teleport"
	seedWorkflow(t, store, wf)

	_, err := service.Activate(t.Context(), "wf-1")
	require.ErrorIs(t, err, failures.ErrValidation)
	assert.Contains(t, err.Error(), `unknown type "teleport"`)
}

func TestWorkflow_Execution(t *testing.T) {
	t.Parallel()

	store := memory.NewPersistence()
	service := NewWorkflow(store, newTypes(t))
	seedWorkflow(t, store, validWorkflow("wf-1"))

	require.NoError(t, store.CreateExecution(t.Context(), &models.Execution{
		ID: "exec-1", WorkflowID: "wf-1", UserID: "user-1", TriggeredBy: models.TriggerSourceManual, Status: models.ExecutionStatusRunning,
	}))

	for i, nodeID := range []string{"t1", "a1"} {
		require.NoError(t, store.CreateStep(t.Context(), &models.ExecutionStep{
			ID: nodeID + "-step", ExecutionID: "exec-1", NodeID: nodeID, Status: models.StepStatusCompleted, StepOrder: i + 1,
		}))
	}

	detail, err := service.Execution(t.Context(), "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "exec-1", detail.ID)
	require.Len(t, detail.Steps, 2)
	assert.Equal(t, "t1", detail.Steps[0].NodeID)
	assert.Equal(t, "a1", detail.Steps[1].NodeID)

	_, err = service.Execution(t.Context(), "exec-missing")
	assert.Equal(t, http.StatusNotFound, failures.StatusOf(err))

	executions, err := service.Executions(t.Context(), "wf-1", 0)
	require.NoError(t, err)
	assert.Len(t, executions, 1)

	_, err = service.Executions(t.Context(), "wf-1", 500)
	require.ErrorIs(t, err, ErrInvalidLimit)
}
