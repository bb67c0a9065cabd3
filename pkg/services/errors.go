package services

import (
	"errors"
	"net/http"

	"github.com/flowforge/flowforge/pkg/failures"
)

var (
	ErrWorkflowNil      = errors.New("workflow cannot be nil")
	ErrInvalidLimit     = errors.New("limit must be between 1 and 100")
	ErrCannotReactivate = errors.New("workflow is already active")
	ErrNotActive        = errors.New("workflow is not active")
)

// invalid wraps a request problem as a 400 validation error.
func invalid(op string, err error) error {
	return &failures.Error{Kind: failures.KindValidation, Op: op, Status: http.StatusBadRequest, Err: err}
}

// notFound wraps a missing entity as a 404.
func notFound(op, message string, err error) error {
	return &failures.Error{Kind: failures.KindValidation, Op: op, Message: message, Status: http.StatusNotFound, Err: err}
}

// conflict reports a state transition that is not allowed from the current status.
func conflict(op string, err error) error {
	return &failures.Error{Kind: failures.KindValidation, Op: op, Status: http.StatusConflict, Err: err}
}
