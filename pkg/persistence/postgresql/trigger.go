package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/persistence"
)

// TriggerRepository handles webhook and schedule trigger rows.
type TriggerRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTriggerRepository creates a new trigger repository.
func NewTriggerRepository(db *sql.DB, logger *slog.Logger) *TriggerRepository {
	return &TriggerRepository{db: db, logger: logger}
}

func (r *TriggerRepository) WebhookTriggerByToken(ctx context.Context, token string) (*models.WebhookTrigger, error) {
	query := `
		SELECT
			id
		  , workflow_id
		  , node_id
		  , trigger_type
		  , webhook_url
		  , webhook_token
		  , bearer_token
		  , hmac_secret
		  , auth_method
		  , json_schema
		  , is_active
		  , created_at
		FROM webhook_triggers
		WHERE webhook_token = $1
	`

	var (
		trigger            models.WebhookTrigger
		bearer, hmacSecret sql.NullString
		schemaRaw          []byte
	)

	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&trigger.ID,
		&trigger.WorkflowID,
		&trigger.NodeID,
		&trigger.TriggerType,
		&trigger.WebhookURL,
		&trigger.WebhookToken,
		&bearer,
		&hmacSecret,
		&trigger.AuthMethod,
		&schemaRaw,
		&trigger.IsActive,
		&trigger.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("WebhookTriggerByToken", "trigger", "", persistence.ErrTriggerNotFound)
		}

		return nil, fmt.Errorf("failed to scan webhook trigger: %w", err)
	}

	trigger.BearerToken = bearer.String
	trigger.HMACSecret = hmacSecret.String

	if err := unmarshalJSON(schemaRaw, &trigger.JSONSchema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal json schema: %w", err)
	}

	return &trigger, nil
}

func (r *TriggerRepository) SaveWebhookTrigger(ctx context.Context, trigger *models.WebhookTrigger) error {
	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = time.Now().UTC()
	}

	var schemaJSON []byte

	if trigger.JSONSchema != nil {
		raw, err := marshalJSON(trigger.JSONSchema)
		if err != nil {
			return fmt.Errorf("failed to marshal json schema: %w", err)
		}

		schemaJSON = raw
	}

	query := `
		INSERT INTO webhook_triggers (id, workflow_id, node_id, trigger_type, webhook_url, webhook_token,
			bearer_token, hmac_secret, auth_method, json_schema, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			workflow_id = EXCLUDED.workflow_id,
			node_id = EXCLUDED.node_id,
			trigger_type = EXCLUDED.trigger_type,
			webhook_url = EXCLUDED.webhook_url,
			webhook_token = EXCLUDED.webhook_token,
			bearer_token = EXCLUDED.bearer_token,
			hmac_secret = EXCLUDED.hmac_secret,
			auth_method = EXCLUDED.auth_method,
			json_schema = EXCLUDED.json_schema,
			is_active = EXCLUDED.is_active
	`

	_, err := r.db.ExecContext(ctx, query,
		trigger.ID,
		trigger.WorkflowID,
		trigger.NodeID,
		trigger.TriggerType,
		trigger.WebhookURL,
		trigger.WebhookToken,
		nullString(trigger.BearerToken),
		nullString(trigger.HMACSecret),
		trigger.AuthMethod,
		schemaJSON,
		trigger.IsActive,
		trigger.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save webhook trigger: %w", err)
	}

	return nil
}

func (r *TriggerRepository) ScheduleTriggers(ctx context.Context) ([]*models.ScheduleTrigger, error) {
	query := `
		SELECT
			id
		  , workflow_id
		  , node_id
		  , cron_expr
		  , enabled
		  , created_at
		FROM schedule_triggers
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule triggers: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	triggers := make([]*models.ScheduleTrigger, 0)

	for rows.Next() {
		var trigger models.ScheduleTrigger

		err := rows.Scan(&trigger.ID, &trigger.WorkflowID, &trigger.NodeID, &trigger.CronExpr, &trigger.Enabled, &trigger.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule trigger: %w", err)
		}

		triggers = append(triggers, &trigger)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating schedule triggers: %w", err)
	}

	return triggers, nil
}

func (r *TriggerRepository) SaveScheduleTrigger(ctx context.Context, trigger *models.ScheduleTrigger) error {
	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO schedule_triggers (id, workflow_id, node_id, cron_expr, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			workflow_id = EXCLUDED.workflow_id,
			node_id = EXCLUDED.node_id,
			cron_expr = EXCLUDED.cron_expr,
			enabled = EXCLUDED.enabled
	`

	_, err := r.db.ExecContext(ctx, query,
		trigger.ID,
		trigger.WorkflowID,
		trigger.NodeID,
		trigger.CronExpr,
		trigger.Enabled,
		trigger.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save schedule trigger: %w", err)
	}

	return nil
}
