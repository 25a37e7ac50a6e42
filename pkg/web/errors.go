package web

import (
	"context"
	"errors"

	"github.com/dukex/sbpm/pkg/actor"
	"github.com/dukex/sbpm/pkg/dispatch"
	"github.com/dukex/sbpm/pkg/models"
	"github.com/dukex/sbpm/pkg/persistence"
	"github.com/dukex/sbpm/pkg/tasks/process"
	"github.com/dukex/sbpm/pkg/tasks/subject"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func problem(c fiber.Ctx, status int, problemType string, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

// IsValidationError checks if an error is caused by the request and should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, subject.ErrInvalidTransition) ||
		errors.Is(err, subject.ErrNotInitialized) ||
		errors.Is(err, subject.ErrSubjectMismatch) ||
		errors.Is(err, models.ErrInvalidProcessModel) ||
		errors.Is(err, models.ErrSchemaValidation)
}

// IsConflictError checks if an error conflicts with the current resource state (HTTP 409).
func IsConflictError(err error) bool {
	return errors.Is(err, subject.ErrProcessInstanceFinished) ||
		errors.Is(err, process.ErrProcessModelNotReleased)
}

// handleEngineError maps engine and store errors to problem responses.
func handleEngineError(c fiber.Ctx, err error) error {
	switch {
	case persistence.IsNotFound(err):
		return problem(c, fiber.StatusNotFound, "not_found", err.Error())
	case IsValidationError(err):
		return problem(c, fiber.StatusBadRequest, "validation_error", err.Error())
	case IsConflictError(err):
		return problem(c, fiber.StatusConflict, "conflict", err.Error())
	case dispatch.IsAmbiguousDispatch(err), dispatch.IsNoTask(err):
		return problem(c, fiber.StatusInternalServerError, "dispatch_error", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return problem(c, fiber.StatusGatewayTimeout, "timeout", "the engine did not answer in time")
	case errors.Is(err, actor.ErrSystemStopped):
		return problem(c, fiber.StatusServiceUnavailable, "unavailable", err.Error())
	default:
		p := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(p)
	}
}
