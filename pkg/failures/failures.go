// Package failures defines the engine's error taxonomy and the retry decision built on it.
package failures

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/flowforge/flowforge/pkg/classifier"
)

// Kind groups errors by how the engine must react to them.
type Kind string

const (
	// KindValidation blocks enqueueing: the workflow or request is structurally invalid.
	KindValidation Kind = "validation"
	// KindConfiguration fails the step; the user must fix settings or integrations.
	KindConfiguration Kind = "configuration"
	// KindAuth rejects an inbound call before any execution is created.
	KindAuth Kind = "auth"
	// KindTransient is retried by the queue.
	KindTransient Kind = "transient"
	// KindFatal aborts without retry.
	KindFatal Kind = "fatal"
	// KindData marks bad or missing runtime data such as unresolved variables.
	KindData Kind = "data"
)

// Sentinels usable with errors.Is against any *Error of the same kind.
var (
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrAuth          = errors.New("authentication error")
	ErrTransient     = errors.New("transient error")
	ErrFatal         = errors.New("fatal error")
	ErrData          = errors.New("data error")
)

var sentinels = map[Kind]error{
	KindValidation:    ErrValidation,
	KindConfiguration: ErrConfiguration,
	KindAuth:          ErrAuth,
	KindTransient:     ErrTransient,
	KindFatal:         ErrFatal,
	KindData:          ErrData,
}

// Error is a classified engine error.
type Error struct {
	Kind    Kind
	Op      string // Operation being performed
	Message string // Human-readable message
	Status  int    // HTTP status for errors surfaced to callers, 0 when not applicable
	Err     error  // Underlying error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}

	if e.Op == "" {
		return msg
	}

	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinel as well as anything the wrapped error matches.
func (e *Error) Is(target error) bool {
	if sentinel, ok := sentinels[e.Kind]; ok && sentinel == target {
		return true
	}

	return errors.Is(e.Err, target)
}

// New creates an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err as kind. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}

	return &Error{Kind: kind, Op: op, Err: err}
}

// Auth creates an authentication error carrying an HTTP status.
func Auth(status int, message string) *Error {
	return &Error{Kind: KindAuth, Message: message, Status: status}
}

// KindOf returns the kind of the outermost *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}

	return ""
}

// StatusOf returns the HTTP status that best represents err.
func StatusOf(err error) int {
	var target *Error
	if errors.As(err, &target) && target.Status != 0 {
		return target.Status
	}

	switch KindOf(err) {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindAuth:
		return http.StatusUnauthorized
	case KindConfiguration, KindFatal:
		return http.StatusInternalServerError
	case KindTransient:
		return http.StatusServiceUnavailable
	case KindData:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

var retryableCategories = map[classifier.Category]bool{
	classifier.CategoryRateLimited:    true,
	classifier.CategoryUpstreamServer: true,
	classifier.CategoryTimeout:        true,
	classifier.CategoryNetwork:        true,
}

// IsRetryable reports whether re-running the whole job may succeed. Typed errors decide by
// kind; untyped errors fall back to the classifier category.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	if kind := KindOf(err); kind != "" {
		return kind == KindTransient
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	return retryableCategories[classifier.Classify(err.Error()).Category]
}
