package web

import (
	"errors"

	"github.com/flowforge/flowforge/pkg/failures"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusNotFound).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

// problemTypes names the problem type reported for each error kind.
var problemTypes = map[failures.Kind]string{
	failures.KindValidation:    "validation_error",
	failures.KindConfiguration: "configuration_error",
	failures.KindAuth:          "unauthorized",
	failures.KindTransient:     "unavailable",
	failures.KindFatal:         "internal_error",
	failures.KindData:          "invalid_data",
}

// handleError renders err as an RFC 7807 problem whose status follows the error kind.
func handleError(c fiber.Ctx, err error) error {
	status := failures.StatusOf(err)

	problemType, ok := problemTypes[failures.KindOf(err)]
	if !ok {
		problemType = "internal_error"
	}

	if status == fiber.StatusNotFound {
		problemType = "not_found"
	}

	problem := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(problemType)

	var typed *failures.Error

	switch {
	case status >= fiber.StatusInternalServerError && errors.As(err, &typed) && typed.Message != "":
		problem = problem.WithDetail(typed.Message)
	case status >= fiber.StatusInternalServerError:
		problem = problem.WithDetail("internal error")
	case errors.As(err, &typed) && typed.Message != "" && typed.Kind == failures.KindAuth:
		problem = problem.WithDetail(typed.Message)
	default:
		problem = problem.WithError(err)
	}

	return c.Status(status).JSON(problem)
}
