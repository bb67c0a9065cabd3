package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowforge/flowforge/pkg/cmd"
	"github.com/flowforge/flowforge/pkg/metrics"
	"github.com/flowforge/flowforge/pkg/mocks"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/persistence/memory"
	memqueue "github.com/flowforge/flowforge/pkg/queue/memory"
	"github.com/flowforge/flowforge/pkg/registry"
	"github.com/flowforge/flowforge/pkg/services"
	"github.com/flowforge/flowforge/pkg/testutil"
	"github.com/flowforge/flowforge/pkg/vault"
	"github.com/flowforge/flowforge/pkg/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newComponents(t *testing.T) (*cmd.Components, *memory.Persistence) {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)

	reg := registry.NewRegistry(logger)
	require.NoError(t, reg.RegisterDefaults())

	bus, err := cmd.NewEventBus(cmd.EventBusGoChannel, "", "tests", false, logger)
	require.NoError(t, err)

	v, err := vault.NewFromConfig(vault.Config{Environment: vault.EnvironmentDevelopment}, logger)
	require.NoError(t, err)

	store := memory.NewPersistence()
	q := memqueue.New(logger, memqueue.WithPollInterval(10*time.Millisecond))

	t.Cleanup(func() {
		_ = q.Close()
		_ = bus.Close()
	})

	return &cmd.Components{
		Persistence: store,
		Queue:       q,
		EventBus:    bus,
		Registry:    reg,
		Vault:       v,
	}, store
}

func TestWorkerManager_RunsQueuedExecution(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	components, store := newComponents(t)
	logger := slog.New(slog.DiscardHandler)

	require.NoError(t, store.SaveWorkflow(t.Context(), testutil.Linear("wf-1", models.NodeTypeManual,
		testutil.Node("a1", models.NodeKindAction, models.NodeTypeHTTP, map[string]any{"url": server.URL}),
	)))

	dispatcher := services.NewDispatcher(logger, store, components.Queue, components.Registry)

	execution, err := dispatcher.Trigger(t.Context(), services.TriggerRequest{
		WorkflowID:  "wf-1",
		TriggeredBy: models.TriggerSourceManual,
		TriggerData: map[string]any{"hello": "world"},
	})
	require.NoError(t, err)

	manager := NewWorkerManager(logger, components, metrics.New(), Settings{
		Pool: worker.Config{Concurrency: 1, RateLimit: 100},
	})

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})

	go func() {
		defer close(done)

		_ = manager.Pool().Run(ctx)
	}()

	assert.Eventually(t, func() bool {
		stored, err := store.ExecutionByID(context.Background(), execution.ID)

		return err == nil && stored.Status == models.ExecutionStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	<-done

	assert.Equal(t, int32(1), hits.Load())

	steps, err := store.StepsByExecution(context.Background(), execution.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "t1", steps[0].NodeID)
	assert.Equal(t, "a1", steps[1].NodeID)
}

func TestWorkerManager_HealthAndMetrics(t *testing.T) {
	t.Parallel()

	components, _ := newComponents(t)
	manager := NewWorkerManager(slog.New(slog.DiscardHandler), components, metrics.New(), Settings{})
	app := manager.App()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"healthy"`)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWorkerManager_StartFailsWhenSubscribeFails(t *testing.T) {
	t.Parallel()

	components, _ := newComponents(t)

	bus := &mocks.MockEventBus{}
	bus.On("Handle", mock.Anything, mock.Anything).Return(nil)
	bus.On("Subscribe", mock.Anything).Return(errors.New("kafka: client has run out of available brokers"))
	components.EventBus = bus

	manager := NewWorkerManager(slog.New(slog.DiscardHandler), components, metrics.New(), Settings{})

	err := manager.Start(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscribe to events")
	bus.AssertNumberOfCalls(t, "Handle", 4)
}
