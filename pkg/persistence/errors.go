package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrExecutionNotFound indicates an execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionFinalized is returned when updating an execution that already reached a
	// terminal status.
	ErrExecutionFinalized = errors.New("execution already finalized")

	// ErrStepNotFound indicates an execution step was not found.
	ErrStepNotFound = errors.New("execution step not found")

	// ErrDuplicateStepOrder indicates a step order already used within the execution.
	ErrDuplicateStepOrder = errors.New("duplicate step order")

	ErrTriggerNotFound     = errors.New("trigger not found")
	ErrIntegrationNotFound = errors.New("integration not found")
	ErrAPIKeyNotFound      = errors.New("api key not found")
)

// EntityError wraps persistence errors with the operation and entity involved.
type EntityError struct {
	Op     string // Operation being performed (e.g., "ExecutionByID", "UpdateStep")
	Entity string // Entity kind, e.g. "workflow"
	ID     string // Entity identifier if applicable
	Err    error  // Underlying error
}

func (e *EntityError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.Entity, e.Err)
	}

	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

// NewEntityError creates a new entity error with context.
func NewEntityError(op, entity, id string, err error) *EntityError {
	return &EntityError{
		Op:     op,
		Entity: entity,
		ID:     id,
		Err:    err,
	}
}

// IsNotFound reports whether err is any of the not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrExecutionNotFound) ||
		errors.Is(err, ErrStepNotFound) ||
		errors.Is(err, ErrTriggerNotFound) ||
		errors.Is(err, ErrIntegrationNotFound) ||
		errors.Is(err, ErrAPIKeyNotFound)
}
