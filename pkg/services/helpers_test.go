package services

import (
	"log/slog"
	"testing"

	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/persistence/memory"
	"github.com/flowforge/flowforge/pkg/registry"
	"github.com/stretchr/testify/require"
)

func newTypes(t *testing.T) *registry.Registry {
	t.Helper()

	reg := registry.NewRegistry(slog.New(slog.DiscardHandler))
	require.NoError(t, reg.RegisterDefaults())

	return reg
}

func validWorkflow(id string) *models.Workflow {
	return &models.Workflow{
		ID:     id,
		Name:   "Notify on order",
		UserID: "user-1",
		Status: models.WorkflowStatusActive,
		Nodes: []*models.Node{
			{ID: "t1", Kind: models.NodeKindTrigger, Config: map[string]any{models.TypeKey: models.NodeTypeWebhook}},
			{ID: "a1", Kind: models.NodeKindAction, Config: map[string]any{
				models.TypeKey: models.NodeTypeHTTP,
				"url":          "https://example.com/hook",
			}},
		},
		Edges: []*models.Edge{{ID: "e1", Source: "t1", Target: "a1"}},
	}
}

func seedWorkflow(t *testing.T, store *memory.Persistence, wf *models.Workflow) {
	t.Helper()

	require.NoError(t, store.SaveWorkflow(t.Context(), wf))
}
