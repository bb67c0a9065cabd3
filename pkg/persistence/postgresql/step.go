package postgresql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/flowforge/flowforge/pkg/models"
	"github.com/flowforge/flowforge/pkg/persistence"
)

const stepColumns = `
			id
		  , execution_id
		  , node_id
		  , name
		  , type
		  , status
		  , step_order
		  , iteration
		  , input
		  , output
		  , error
		  , error_detail
		  , started_at
		  , completed_at
		  , duration_ms
`

func (r *ExecutionRepository) CreateStep(ctx context.Context, step *models.ExecutionStep) error {
	args, err := stepArgs(step)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO execution_steps (` + stepColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err = r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewEntityError("CreateStep", "execution step", step.ID, persistence.ErrDuplicateStepOrder)
		}

		return fmt.Errorf("failed to create execution step: %w", err)
	}

	return nil
}

func (r *ExecutionRepository) UpdateStep(ctx context.Context, step *models.ExecutionStep) error {
	args, err := stepArgs(step)
	if err != nil {
		return err
	}

	query := `
		UPDATE execution_steps SET
			status = $3,
			input = $4,
			output = $5,
			error = $6,
			error_detail = $7,
			started_at = $8,
			completed_at = $9,
			duration_ms = $10
		WHERE id = $1 AND execution_id = $2
	`

	// id, execution_id, then the mutable columns in stepColumns order.
	updateArgs := []any{args[0], args[1], args[5], args[8], args[9], args[10], args[11], args[12], args[13], args[14]}

	result, err := r.db.ExecContext(ctx, query, updateArgs...)
	if err != nil {
		return fmt.Errorf("failed to update execution step: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return persistence.NewEntityError("UpdateStep", "execution step", step.ID, persistence.ErrStepNotFound)
	}

	return nil
}

func (r *ExecutionRepository) StepsByExecution(ctx context.Context, executionID string) ([]*models.ExecutionStep, error) {
	query := `SELECT ` + stepColumns + ` FROM execution_steps WHERE execution_id = $1 ORDER BY step_order`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution steps: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	steps := make([]*models.ExecutionStep, 0)

	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution step: %w", err)
		}

		steps = append(steps, step)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating execution steps: %w", err)
	}

	return steps, nil
}

func (r *ExecutionRepository) MaxStepOrder(ctx context.Context, executionID string) (int, error) {
	var maxOrder int

	err := r.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(step_order), 0) FROM execution_steps WHERE execution_id = $1",
		executionID,
	).Scan(&maxOrder)
	if err != nil {
		return 0, fmt.Errorf("failed to query max step order: %w", err)
	}

	return maxOrder, nil
}

func stepArgs(step *models.ExecutionStep) ([]any, error) {
	input, err := marshalJSON(step.Input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal step input: %w", err)
	}

	output, err := marshalJSON(step.Output)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal step output: %w", err)
	}

	errorDetail, err := marshalJSON(step.ErrorDetail)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal step error detail: %w", err)
	}

	var iteration sql.NullInt64
	if step.Iteration != nil {
		iteration = sql.NullInt64{Int64: int64(*step.Iteration), Valid: true}
	}

	return []any{
		step.ID,
		step.ExecutionID,
		step.NodeID,
		step.Name,
		step.Type,
		step.Status,
		step.StepOrder,
		iteration,
		input,
		output,
		step.Error,
		errorDetail,
		step.StartedAt,
		step.CompletedAt,
		step.DurationMs,
	}, nil
}

func scanStep(row rowScanner) (*models.ExecutionStep, error) {
	var (
		step           models.ExecutionStep
		iteration      sql.NullInt64
		errMessage     sql.NullString
		input, output  []byte
		errorDetailRaw []byte
	)

	err := row.Scan(
		&step.ID,
		&step.ExecutionID,
		&step.NodeID,
		&step.Name,
		&step.Type,
		&step.Status,
		&step.StepOrder,
		&iteration,
		&input,
		&output,
		&errMessage,
		&errorDetailRaw,
		&step.StartedAt,
		&step.CompletedAt,
		&step.DurationMs,
	)
	if err != nil {
		return nil, err
	}

	if iteration.Valid {
		i := int(iteration.Int64)
		step.Iteration = &i
	}

	if errMessage.Valid {
		step.Error = &errMessage.String
	}

	if err := unmarshalJSON(input, &step.Input); err != nil {
		return nil, fmt.Errorf("failed to unmarshal step input: %w", err)
	}

	if err := unmarshalJSON(output, &step.Output); err != nil {
		return nil, fmt.Errorf("failed to unmarshal step output: %w", err)
	}

	if err := unmarshalJSON(errorDetailRaw, &step.ErrorDetail); err != nil {
		return nil, fmt.Errorf("failed to unmarshal step error detail: %w", err)
	}

	return &step, nil
}
