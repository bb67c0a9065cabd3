package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flowforge/flowforge/pkg/auth"
	"github.com/flowforge/flowforge/pkg/cmd"
	"github.com/flowforge/flowforge/pkg/metrics"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/persistence/memory"
	memqueue "github.com/flowforge/flowforge/pkg/queue/memory"
	"github.com/flowforge/flowforge/pkg/registry"
	"github.com/flowforge/flowforge/pkg/testutil"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) (*fiber.App, *cmd.Components, string) {
	t.Helper()

	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	reg := registry.NewRegistry(logger)
	require.NoError(t, reg.RegisterDefaults())

	bus, err := cmd.NewEventBus(cmd.EventBusGoChannel, "", "tests", false, logger)
	require.NoError(t, err)

	store := memory.NewPersistence()
	components := &cmd.Components{
		Persistence: store,
		Queue:       memqueue.New(logger),
		EventBus:    bus,
		Registry:    reg,
	}

	t.Cleanup(func() {
		_ = components.Queue.Close()
		_ = bus.Close()
	})

	require.NoError(t, store.SaveWorkflow(ctx, testutil.Linear("wf-1", models.NodeTypeWebhook,
		testutil.Node("a1", models.NodeKindAction, models.NodeTypeHTTP, map[string]any{"url": "https://example.com"}),
	)))

	require.NoError(t, store.SaveWebhookTrigger(ctx, &models.WebhookTrigger{
		ID: "wh-1", WorkflowID: "wf-1", NodeID: "t1", WebhookToken: "orders",
		AuthMethod: models.WebhookAuthURLToken, IsActive: true,
	}))

	key, _, err := auth.NewAPIKeys(store, logger).Create(ctx, "user-1", "tests", nil, nil)
	require.NoError(t, err)

	return NewAPI(logger, components, metrics.New()).App(), components, key
}

func TestAPI_RootEndpoint(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	defer func() {
		_ = resp.Body.Close()
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "FlowForge API", string(body))
}

func TestAPI_HealthEndpoints(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)

	for _, path := range []string{"/livez", "/readyz", "/health", "/metrics"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		_ = resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestAPI_WebhookEnqueuesExecution(t *testing.T) {
	t.Parallel()

	app, components, key := setupTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/orders", bytes.NewBufferString(`{"order":42}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.HeaderAPIKey, key)

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		_ = resp.Body.Close()
	}()

	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["success"])

	executionID, _ := body["executionId"].(string)
	require.NotEmpty(t, executionID)

	job, err := components.Queue.Get(context.Background(), executionID)
	require.NoError(t, err)
	assert.Equal(t, "wf-1", job.Payload.WorkflowID)
	assert.Equal(t, "user-1", job.Payload.UserID)
	assert.InDelta(t, 42, job.Payload.TriggerData["order"], 0)
}
