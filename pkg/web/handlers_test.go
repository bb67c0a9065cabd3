package web_test

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
	"github.com/flowforge/flowforge/pkg/metrics"
	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/persistence/memory"
	"github.com/flowforge/flowforge/pkg/queue"
	memqueue "github.com/flowforge/flowforge/pkg/queue/memory"
	"github.com/flowforge/flowforge/pkg/registry"
	"github.com/flowforge/flowforge/pkg/services"
	"github.com/flowforge/flowforge/pkg/web"
	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	app      *fiber.App
	store    *memory.Persistence
	queue    *memqueue.Queue
	metrics  *metrics.Metrics
	key      string
	otherKey string
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()

	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	store := memory.NewPersistence()
	q := memqueue.New(logger)
	t.Cleanup(func() { _ = q.Close() })

	reg := registry.NewRegistry(logger)
	require.NoError(t, reg.RegisterDefaults())

	promReg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(promReg, promReg)

	keys := auth.NewAPIKeys(store, logger)

	key, _, err := keys.Create(ctx, "user-1", "tests", nil, nil)
	require.NoError(t, err)

	otherKey, _, err := keys.Create(ctx, "user-2", "tests", nil, nil)
	require.NoError(t, err)

	require.NoError(t, store.SaveWorkflow(ctx, &models.Workflow{
		ID:     "wf-1",
		Name:   "Orders",
		UserID: "user-1",
		Status: models.WorkflowStatusActive,
		Nodes: []*models.Node{
			{ID: "t1", Kind: models.NodeKindTrigger, Config: map[string]any{models.TypeKey: models.NodeTypeWebhook}},
			{ID: "a1", Kind: models.NodeKindAction, Config: map[string]any{models.TypeKey: models.NodeTypeHTTP, "url": "https://example.com"}},
		},
		Edges: []*models.Edge{{ID: "e1", Source: "t1", Target: "a1"}},
	}))

	triggers := []*models.WebhookTrigger{
		{ID: "wh-open", WorkflowID: "wf-1", NodeID: "t1", WebhookToken: "open", AuthMethod: models.WebhookAuthURLToken, IsActive: true},
		{ID: "wh-bearer", WorkflowID: "wf-1", NodeID: "t1", WebhookToken: "bearer", AuthMethod: models.WebhookAuthBearer, BearerToken: "s3cret", IsActive: true},
		{ID: "wh-hmac", WorkflowID: "wf-1", NodeID: "t1", WebhookToken: "hmac", AuthMethod: models.WebhookAuthHMAC, HMACSecret: "shh", IsActive: true},
		{ID: "wh-off", WorkflowID: "wf-1", NodeID: "t1", WebhookToken: "off", AuthMethod: models.WebhookAuthURLToken},
		{
			ID: "wh-schema", WorkflowID: "wf-1", NodeID: "t1", WebhookToken: "schema", AuthMethod: models.WebhookAuthURLToken, IsActive: true,
			JSONSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"order": map[string]any{"type": "number"}},
				"required":   []any{"order"},
			},
		},
	}

	for _, trigger := range triggers {
		require.NoError(t, store.SaveWebhookTrigger(ctx, trigger))
	}

	handlers := web.NewAPIHandlers(
		logger,
		services.NewWorkflow(store, reg),
		services.NewDispatcher(logger, store, q, reg),
		store,
		keys,
		web.WithMetrics(m),
	)

	app := fiber.New()
	handlers.Routes(app)

	return &testEnv{app: app, store: store, queue: q, metrics: m, key: key, otherKey: otherKey}
}

func (e *testEnv) do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()

	resp, err := e.app.Test(req)
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	return resp, body
}

func (e *testEnv) executions(t *testing.T) []*models.Execution {
	t.Helper()

	executions, err := e.store.ExecutionsByWorkflow(context.Background(), "wf-1", 100)
	require.NoError(t, err)

	return executions
}

func TestReceiveWebhook(t *testing.T) {
	t.Parallel()

	body := []byte(`{"order":42}`)

	tests := []struct {
		name           string
		token          string
		body           []byte
		headers        func(env *testEnv) map[string]string
		expectedStatus int
		expectedDetail string
	}{
		{
			name:           "url token with key in authorization",
			token:          "open",
			body:           body,
			headers:        func(env *testEnv) map[string]string { return map[string]string{"Authorization": "Bearer " + env.key} },
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "url token with x-api-key",
			token:          "open",
			body:           body,
			headers:        func(env *testEnv) map[string]string { return map[string]string{"X-API-Key": env.key} },
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "unknown token",
			token:          "nope",
			body:           body,
			headers:        func(env *testEnv) map[string]string { return map[string]string{"X-API-Key": env.key} },
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "inactive trigger",
			token:          "off",
			body:           body,
			headers:        func(env *testEnv) map[string]string { return map[string]string{"X-API-Key": env.key} },
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "missing api key",
			token:          "open",
			body:           body,
			headers:        func(*testEnv) map[string]string { return nil },
			expectedStatus: http.StatusUnauthorized,
			expectedDetail: "API key required",
		},
		{
			name:  "bearer trigger",
			token: "bearer",
			body:  body,
			headers: func(env *testEnv) map[string]string {
				return map[string]string{"Authorization": "Bearer s3cret", "X-API-Key": env.key}
			},
			expectedStatus: http.StatusAccepted,
		},
		{
			name:  "bearer trigger with wrong token",
			token: "bearer",
			body:  body,
			headers: func(env *testEnv) map[string]string {
				return map[string]string{"Authorization": "Bearer guess", "X-API-Key": env.key}
			},
			expectedStatus: http.StatusUnauthorized,
			expectedDetail: "Invalid bearer token",
		},
		{
			name:  "hmac trigger",
			token: "hmac",
			body:  body,
			headers: func(env *testEnv) map[string]string {
				return map[string]string{"X-API-Key": env.key, "X-Webhook-Signature": auth.Sign("shh", body)}
			},
			expectedStatus: http.StatusAccepted,
		},
		{
			name:  "hmac trigger with bad signature",
			token: "hmac",
			body:  body,
			headers: func(env *testEnv) map[string]string {
				return map[string]string{"X-API-Key": env.key, "X-Webhook-Signature": auth.Sign("other", body)}
			},
			expectedStatus: http.StatusUnauthorized,
			expectedDetail: "Invalid webhook signature",
		},
		{
			name:           "payload violates schema",
			token:          "schema",
			body:           []byte(`{"order":"forty-two"}`),
			headers:        func(env *testEnv) map[string]string { return map[string]string{"X-API-Key": env.key} },
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "payload does not match schema",
		},
		{
			name:           "payload matches schema",
			token:          "schema",
			body:           body,
			headers:        func(env *testEnv) map[string]string { return map[string]string{"X-API-Key": env.key} },
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "key of another user",
			token:          "open",
			body:           body,
			headers:        func(env *testEnv) map[string]string { return map[string]string{"X-API-Key": env.otherKey} },
			expectedStatus: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := setupTestApp(t)

			req := httptest.NewRequest(http.MethodPost, "/webhooks/"+tt.token, bytes.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")

			for name, value := range tt.headers(env) {
				req.Header.Set(name, value)
			}

			resp, respBody := env.do(t, req)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode, string(respBody))

			if tt.expectedStatus != http.StatusAccepted {
				assert.Empty(t, env.executions(t))

				if tt.expectedDetail != "" {
					assert.Contains(t, string(respBody), tt.expectedDetail)
				}

				return
			}

			var accepted web.WebhookResponse
			require.NoError(t, json.Unmarshal(respBody, &accepted))
			assert.True(t, accepted.Success)
			require.NotEmpty(t, accepted.ExecutionID)

			job, err := env.queue.Get(context.Background(), accepted.ExecutionID)
			require.NoError(t, err)
			assert.Equal(t, queue.WebhookPolicy, job.Policy)
			assert.Equal(t, models.TriggerSourceWebhook, job.Payload.TriggeredBy)
			assert.InDelta(t, 42, job.Payload.TriggerData["order"], 0)

			meta, ok := job.Payload.TriggerData[web.MetaKey].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, http.MethodPost, meta["method"])
			assert.NotEmpty(t, meta["receivedAt"])

			headers, ok := meta["headers"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, "application/json", headers["content-type"])
			assert.NotContains(t, headers, "authorization")
		})
	}
}

func TestReceiveWebhook_NonJSONBody(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/open", bytes.NewReader([]byte("plain text")))
	req.Header.Set("X-API-Key", env.key)

	resp, body := env.do(t, req)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	var accepted web.WebhookResponse
	require.NoError(t, json.Unmarshal(body, &accepted))

	job, err := env.queue.Get(context.Background(), accepted.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, "plain text", job.Payload.TriggerData["rawBody"])
}

func TestReceiveWebhook_CountsOutcomes(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	accepted := httptest.NewRequest(http.MethodPost, "/webhooks/open", nil)
	accepted.Header.Set("X-API-Key", env.key)
	env.do(t, accepted)

	env.do(t, httptest.NewRequest(http.MethodPost, "/webhooks/open", nil))
	env.do(t, httptest.NewRequest(http.MethodPost, "/webhooks/missing", nil))

	assert.InDelta(t, 1, testutil.ToFloat64(env.metrics.WebhookRequests.WithLabelValues(metrics.WebhookAccepted)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(env.metrics.WebhookRequests.WithLabelValues(metrics.WebhookRejected)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(env.metrics.WebhookRequests.WithLabelValues(metrics.WebhookNotFound)), 0)

	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "flowforge_webhook_requests_total")
}

func TestWebhookInfo(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, "/webhooks/hmac", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info web.WebhookInfoResponse
	require.NoError(t, json.Unmarshal(body, &info))
	assert.Equal(t, web.WebhookInfoResponse{Exists: true, Active: true, WorkflowID: "wf-1", AuthMethod: models.WebhookAuthHMAC}, info)
	assert.NotContains(t, string(body), "shh")

	resp, body = env.do(t, httptest.NewRequest(http.MethodGet, "/webhooks/nope", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"exists":false,"active":false}`, string(body))

	assert.Empty(t, env.executions(t))
}

func TestRunWorkflow(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/workflows/wf-1/run", bytes.NewReader([]byte(`{"note":"manual"}`)))
	req.Header.Set("Authorization", "Bearer "+env.key)

	resp, body := env.do(t, req)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	var accepted web.WebhookResponse
	require.NoError(t, json.Unmarshal(body, &accepted))

	job, err := env.queue.Get(context.Background(), accepted.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, queue.DefaultPolicy, job.Policy)
	assert.Equal(t, models.TriggerSourceManual, job.Payload.TriggeredBy)
	assert.Equal(t, "manual", job.Payload.TriggerData["note"])

	tests := []struct {
		name           string
		path           string
		key            string
		body           string
		expectedStatus int
	}{
		{"no key", "/workflows/wf-1/run", "", "", http.StatusUnauthorized},
		{"unknown workflow", "/workflows/wf-404/run", env.key, "", http.StatusNotFound},
		{"not owner", "/workflows/wf-1/run", env.otherKey, "", http.StatusForbidden},
		{"body is not an object", "/workflows/wf-1/run", env.key, "[1,2]", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, bytes.NewReader([]byte(tt.body)))
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}

			resp, body := env.do(t, req)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode, string(body))
		})
	}
}

func TestGetExecution(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)
	ctx := context.Background()

	detail := "Slack rejected the request"
	require.NoError(t, env.store.CreateExecution(ctx, &models.Execution{
		ID:          "exec-1",
		WorkflowID:  "wf-1",
		UserID:      "user-1",
		TriggeredBy: models.TriggerSourceWebhook,
		Status:      models.ExecutionStatusFailed,
		Error:       &detail,
		ErrorDetail: &models.ErrorDetail{Message: "Your Slack credentials are invalid or expired", Category: "invalid_credential"},
	}))
	require.NoError(t, env.store.CreateStep(ctx, &models.ExecutionStep{
		ID: "s1", ExecutionID: "exec-1", NodeID: "t1", Status: models.StepStatusCompleted, StepOrder: 1,
	}))

	req := httptest.NewRequest(http.MethodGet, "/executions/exec-1", nil)
	req.Header.Set("X-API-Key", env.key)

	resp, body := env.do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var got struct {
		ID          string                  `json:"id"`
		Status      string                  `json:"status"`
		ErrorDetail *models.ErrorDetail     `json:"error_detail"`
		Steps       []*models.ExecutionStep `json:"steps"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "exec-1", got.ID)
	assert.Equal(t, "failed", got.Status)
	require.NotNil(t, got.ErrorDetail)
	assert.Equal(t, "invalid_credential", got.ErrorDetail.Category)
	require.Len(t, got.Steps, 1)

	other := httptest.NewRequest(http.MethodGet, "/executions/exec-1", nil)
	other.Header.Set("X-API-Key", env.otherKey)
	resp, _ = env.do(t, other)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	missing := httptest.NewRequest(http.MethodGet, "/executions/exec-2", nil)
	missing.Header.Set("X-API-Key", env.key)
	resp, _ = env.do(t, missing)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	list := httptest.NewRequest(http.MethodGet, "/workflows/wf-1/executions?limit=5", nil)
	list.Header.Set("X-API-Key", env.key)
	resp, body = env.do(t, list)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), "exec-1")
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	env := setupTestApp(t)

	resp, body := env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"healthy","message":"Persistence layer is healthy"}`, string(body))
}
