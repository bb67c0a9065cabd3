package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/persistence"
	"github.com/flowforge/flowforge/pkg/persistence/postgresql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Children first, parents last
	for _, table := range []string{"execution_steps", "executions", "webhook_triggers", "schedule_triggers", "integrations", "api_keys", "workflows", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("flowforge_test"),
			postgres.WithUsername("flowforge"),
			postgres.WithPassword("flowforge"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"workflows", "executions", "execution_steps", "webhook_triggers", "integrations", "api_keys"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 3, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	assert.NoError(t, p.HealthCheck(ctx))
}

func TestWorkflow_SaveAndRetrieve(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	workflow := &models.Workflow{
		Name:   "Signup alert",
		UserID: "user-1",
		Status: models.WorkflowStatusActive,
		Nodes: []*models.Node{
			{ID: "trigger", Kind: models.NodeKindTrigger, Name: "Webhook", Config: map[string]any{"_type": "webhook"}},
			{ID: "notify", Kind: models.NodeKindAction, Name: "Slack", Config: map[string]any{"_type": "slack", "text": "hi"}},
		},
		Edges: []*models.Edge{{ID: "e1", Source: "trigger", Target: "notify"}},
	}

	require.NoError(t, p.SaveWorkflow(ctx, workflow))
	require.NotEmpty(t, workflow.ID)

	retrieved, err := p.WorkflowByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.Name, retrieved.Name)
	assert.Equal(t, workflow.Status, retrieved.Status)
	require.Len(t, retrieved.Nodes, 2)
	assert.Equal(t, "slack", retrieved.Nodes[1].Type())
	require.Len(t, retrieved.Edges, 1)
	assert.Equal(t, "notify", retrieved.Edges[0].Target)

	workflow.Status = models.WorkflowStatusPaused
	require.NoError(t, p.SaveWorkflow(ctx, workflow))

	retrieved, err = p.WorkflowByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusPaused, retrieved.Status)

	_, err = p.WorkflowByID(ctx, uuid.NewString())
	require.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}

func TestExecution_Lifecycle(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	execution := &models.Execution{
		ID:          uuid.NewString(),
		WorkflowID:  "wf-1",
		UserID:      "user-1",
		TriggeredBy: models.TriggerSourceWebhook,
		TriggerData: map[string]any{"email": "a@example.com"},
		Status:      models.ExecutionStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, p.CreateExecution(ctx, execution))

	started := time.Now().UTC()
	execution.Status = models.ExecutionStatusRunning
	execution.StartedAt = &started
	require.NoError(t, p.UpdateExecution(ctx, execution))

	message := "slack: missing required field \"text\""
	execution.Status = models.ExecutionStatusFailed
	execution.Error = &message
	execution.ErrorDetail = &models.ErrorDetail{Category: "missing_field", Message: "Slack is missing a required field", Recoverable: true}
	require.NoError(t, p.UpdateExecution(ctx, execution))

	execution.Status = models.ExecutionStatusCompleted
	require.ErrorIs(t, p.UpdateExecution(ctx, execution), persistence.ErrExecutionFinalized)

	loaded, err := p.ExecutionByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, loaded.Status)
	assert.Equal(t, "a@example.com", loaded.TriggerData["email"])
	require.NotNil(t, loaded.Error)
	assert.Equal(t, message, *loaded.Error)
	require.NotNil(t, loaded.ErrorDetail)
	assert.Equal(t, "missing_field", loaded.ErrorDetail.Category)
	require.NotNil(t, loaded.StartedAt)

	require.ErrorIs(t, p.UpdateExecution(ctx, &models.Execution{ID: "missing"}), persistence.ErrExecutionNotFound)

	executions, err := p.ExecutionsByWorkflow(ctx, "wf-1", 10)
	require.NoError(t, err)
	assert.Len(t, executions, 1)
}

func TestSteps_OrderAndUniqueness(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	executionID := uuid.NewString()
	require.NoError(t, p.CreateExecution(ctx, &models.Execution{
		ID: executionID, WorkflowID: "wf", UserID: "u", TriggeredBy: models.TriggerSourceManual,
		Status: models.ExecutionStatusRunning, CreatedAt: time.Now().UTC(),
	}))

	iteration := 1
	first := &models.ExecutionStep{ID: uuid.NewString(), ExecutionID: executionID, NodeID: "a", Name: "A", Type: "http", Status: models.StepStatusRunning, StepOrder: 2}
	second := &models.ExecutionStep{ID: uuid.NewString(), ExecutionID: executionID, NodeID: "b", Name: "B", Type: "slack", Status: models.StepStatusRunning, StepOrder: 1, Iteration: &iteration}

	require.NoError(t, p.CreateStep(ctx, first))
	require.NoError(t, p.CreateStep(ctx, second))

	dup := &models.ExecutionStep{ID: uuid.NewString(), ExecutionID: executionID, NodeID: "c", Name: "C", Type: "http", Status: models.StepStatusRunning, StepOrder: 2}
	require.ErrorIs(t, p.CreateStep(ctx, dup), persistence.ErrDuplicateStepOrder)

	first.Status = models.StepStatusCompleted
	first.Output = map[string]any{"status_code": float64(200)}
	first.DurationMs = 12
	require.NoError(t, p.UpdateStep(ctx, first))

	steps, err := p.StepsByExecution(ctx, executionID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "b", steps[0].NodeID)
	require.NotNil(t, steps[0].Iteration)
	assert.Equal(t, 1, *steps[0].Iteration)
	assert.Equal(t, models.StepStatusCompleted, steps[1].Status)
	assert.Equal(t, float64(200), steps[1].Output["status_code"])
	assert.Nil(t, steps[1].Iteration)

	maxOrder, err := p.MaxStepOrder(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, 2, maxOrder)

	require.ErrorIs(t, p.UpdateStep(ctx, &models.ExecutionStep{ID: "ghost", ExecutionID: executionID}), persistence.ErrStepNotFound)
}

func TestTriggersAndCredentials(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	require.NoError(t, p.SaveWebhookTrigger(ctx, &models.WebhookTrigger{
		ID: "t1", WorkflowID: "wf-1", NodeID: "trigger", TriggerType: "webhook",
		WebhookToken: "tok-1", HMACSecret: "shh", AuthMethod: models.WebhookAuthHMAC,
		JSONSchema: map[string]any{"type": "object"}, IsActive: true,
	}))

	trigger, err := p.WebhookTriggerByToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "shh", trigger.HMACSecret)
	assert.Empty(t, trigger.BearerToken)
	assert.Equal(t, "object", trigger.JSONSchema["type"])

	_, err = p.WebhookTriggerByToken(ctx, "nope")
	require.ErrorIs(t, err, persistence.ErrTriggerNotFound)

	require.NoError(t, p.SaveScheduleTrigger(ctx, &models.ScheduleTrigger{ID: "s1", WorkflowID: "wf-1", NodeID: "cron", CronExpr: "*/5 * * * *", Enabled: true}))

	schedules, err := p.ScheduleTriggers(ctx)
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, "*/5 * * * *", schedules[0].CronExpr)

	require.NoError(t, p.SaveIntegration(ctx, &models.Integration{ID: "i1", UserID: "u1", Type: "slack", EncryptedConfig: "a:b:c", KeyVersion: 2, IsActive: true}))

	integration, err := p.ActiveIntegration(ctx, "u1", "slack")
	require.NoError(t, err)
	assert.Equal(t, 2, integration.KeyVersion)

	_, err = p.ActiveIntegration(ctx, "u1", "email")
	require.ErrorIs(t, err, persistence.ErrIntegrationNotFound)

	require.NoError(t, p.SaveAPIKey(ctx, &models.APIKey{
		ID: "k1", UserID: "u1", Name: "ci", KeyPrefix: "ff_abcd1234", HashedKey: "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
		Scopes: []string{"workflow:trigger"},
	}))

	key, err := p.APIKeyByHash(ctx, "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	assert.Equal(t, []string{"workflow:trigger"}, key.Scopes)

	require.NoError(t, p.TouchAPIKey(ctx, "k1", time.Now().UTC()))
	require.ErrorIs(t, p.TouchAPIKey(ctx, "k2", time.Now().UTC()), persistence.ErrAPIKeyNotFound)
}
