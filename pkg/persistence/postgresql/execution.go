package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/persistence"
)

// ExecutionRepository handles executions and their steps.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
			id
		  , workflow_id
		  , user_id
		  , triggered_by
		  , trigger_id
		  , trigger_data
		  , status
		  , started_at
		  , completed_at
		  , duration_ms
		  , error
		  , error_detail
		  , created_at
`

func (r *ExecutionRepository) CreateExecution(ctx context.Context, execution *models.Execution) error {
	triggerData, err := marshalJSON(execution.TriggerData)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	errorDetail, err := marshalJSON(execution.ErrorDetail)
	if err != nil {
		return fmt.Errorf("failed to marshal error detail: %w", err)
	}

	query := `
		INSERT INTO executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.UserID,
		execution.TriggeredBy,
		nullString(execution.TriggerID),
		triggerData,
		execution.Status,
		execution.StartedAt,
		execution.CompletedAt,
		execution.DurationMs,
		execution.Error,
		errorDetail,
		execution.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}

	return nil
}

func (r *ExecutionRepository) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("ExecutionByID", "execution", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

// UpdateExecution writes the mutable execution fields unless the stored row is terminal.
func (r *ExecutionRepository) UpdateExecution(ctx context.Context, execution *models.Execution) error {
	errorDetail, err := marshalJSON(execution.ErrorDetail)
	if err != nil {
		return fmt.Errorf("failed to marshal error detail: %w", err)
	}

	query := `
		UPDATE executions SET
			status = $2,
			started_at = $3,
			completed_at = $4,
			duration_ms = $5,
			error = $6,
			error_detail = $7
		WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')
	`

	result, err := r.db.ExecContext(ctx, query,
		execution.ID,
		execution.Status,
		execution.StartedAt,
		execution.CompletedAt,
		execution.DurationMs,
		execution.Error,
		errorDetail,
	)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected > 0 {
		return nil
	}

	var exists bool

	err = r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM executions WHERE id = $1)", execution.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check execution: %w", err)
	}

	if !exists {
		return persistence.NewEntityError("UpdateExecution", "execution", execution.ID, persistence.ErrExecutionNotFound)
	}

	return persistence.NewEntityError("UpdateExecution", "execution", execution.ID, persistence.ErrExecutionFinalized)
}

func (r *ExecutionRepository) ExecutionsByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.Execution, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + executionColumns + ` FROM executions WHERE workflow_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		execution      models.Execution
		triggerID      sql.NullString
		errMessage     sql.NullString
		triggerData    []byte
		errorDetailRaw []byte
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.UserID,
		&execution.TriggeredBy,
		&triggerID,
		&triggerData,
		&execution.Status,
		&execution.StartedAt,
		&execution.CompletedAt,
		&execution.DurationMs,
		&errMessage,
		&errorDetailRaw,
		&execution.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.TriggerID = triggerID.String

	if errMessage.Valid {
		execution.Error = &errMessage.String
	}

	if err := unmarshalJSON(triggerData, &execution.TriggerData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger data: %w", err)
	}

	if err := unmarshalJSON(errorDetailRaw, &execution.ErrorDetail); err != nil {
		return nil, fmt.Errorf("failed to unmarshal error detail: %w", err)
	}

	return &execution, nil
}
