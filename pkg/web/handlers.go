// Package web provides the HTTP transport of the process engine.
package web

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/sbpm/pkg/eventlog"
	"github.com/dukex/sbpm/pkg/messages"
	"github.com/dukex/sbpm/pkg/models"
	"github.com/dukex/sbpm/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// Engine is the part of the process engine the handlers drive.
type Engine interface {
	StartProcess(ctx context.Context, processModelID int64, startUserID string) (messages.ProcessStarted, error)
	InitializeSubject(ctx context.Context, processInstanceID, subjectID int64) error
	AdvanceSubject(ctx context.Context, processInstanceID, subjectID, toStateID int64) error
	CheckCompletion(ctx context.Context, processInstanceID int64) (messages.Completion, error)
	Store() persistence.Persistence
}

type APIHandlers struct {
	engine         Engine
	eventLog       persistence.EventLogRepository
	validator      *validator.Validate
	requestTimeout time.Duration
}

func NewAPIHandlers(
	engine Engine,
	eventLog persistence.EventLogRepository,
	validator *validator.Validate,
	requestTimeout time.Duration,
) *APIHandlers {
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}

	return &APIHandlers{
		engine:         engine,
		eventLog:       eventLog,
		validator:      validator,
		requestTimeout: requestTimeout,
	}
}

// Routes registers the engine endpoints on app.
func Routes(app *fiber.App, h *APIHandlers) {
	app.Get("/health", h.HealthCheck)

	pm := app.Group("/process-models")
	pm.Post("/", h.ImportProcessModel)
	pm.Get("/:id", h.GetProcessModel)
	pm.Post("/:id/instances", h.StartProcess)

	pi := app.Group("/process-instances")
	pi.Get("/:id", h.GetProcessInstance)
	pi.Post("/:id/subjects/:subjectId/initialize", h.InitializeSubject)
	pi.Post("/:id/subjects/:subjectId/advance", h.AdvanceSubject)
	pi.Post("/:id/completion", h.CheckCompletion)

	app.Get("/event-log", h.GetEventLog)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	err := h.engine.Store().HealthCheck(c.Context())
	if err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"status":    "unhealthy",
			"message":   err.Error(),
			"timestamp": time.Now().UTC(),
		})
	}

	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

// ImportProcessModel stores a process-model document after schema and structural validation.
func (h *APIHandlers) ImportProcessModel(c fiber.Ctx) error {
	pm, err := models.ParseProcessModelDocument(c.Body())
	if err != nil {
		return badRequest(c, err.Error())
	}

	err = persistence.WithTx(c.Context(), h.engine.Store(), func(tx persistence.Tx) error {
		return tx.SaveProcessModel(c.Context(), pm)
	})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(pm)
}

func (h *APIHandlers) GetProcessModel(c fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var pm *models.ProcessModel

	err = persistence.WithTx(c.Context(), h.engine.Store(), func(tx persistence.Tx) error {
		pm, err = tx.ProcessModelByID(c.Context(), id)

		return err
	})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(pm)
}

func (h *APIHandlers) StartProcess(c fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req StartProcessRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.Context(), h.requestTimeout)
	defer cancel()

	started, err := h.engine.StartProcess(ctx, id, req.StartUserID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(ProcessStartedResponse{
		ProcessInstanceID: started.ProcessInstanceID,
		SubjectIDs:        started.SubjectIDs,
	})
}

func (h *APIHandlers) GetProcessInstance(c fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	var response ProcessInstanceResponse

	err = persistence.WithTx(c.Context(), h.engine.Store(), func(tx persistence.Tx) error {
		return loadProcessInstance(c.Context(), tx, id, &response)
	})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(response)
}

func loadProcessInstance(ctx context.Context, tx persistence.Tx, id int64, response *ProcessInstanceResponse) error {
	instance, err := tx.ProcessInstanceByID(ctx, id)
	if err != nil {
		return err
	}

	pm, err := tx.ProcessModelByID(ctx, instance.ProcessModelID)
	if err != nil {
		return err
	}

	subjects, err := tx.SubjectsByProcessInstance(ctx, id)
	if err != nil {
		return err
	}

	response.ProcessInstance = instance
	response.Subjects = make([]SubjectResponse, 0, len(subjects))

	for _, s := range subjects {
		item := SubjectResponse{ID: s.ID, SubjectModelID: s.SubjectModelID, UserID: s.UserID}

		if sm, ok := pm.SubjectModelByID(s.SubjectModelID); ok {
			item.SubjectModelName = sm.Name
		}

		current, err := tx.CurrentSubjectState(ctx, s.ID)

		switch {
		case err == nil:
			item.CurrentStateID = &current.StateID
			if state, _, ok := pm.StateByID(current.StateID); ok {
				item.CurrentState = state.Name
			}
		case !persistence.IsNotFound(err):
			return err
		}

		response.Subjects = append(response.Subjects, item)
	}

	return nil
}

func (h *APIHandlers) InitializeSubject(c fiber.Ctx) error {
	instanceID, subjectID, err := subjectParams(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.Context(), h.requestTimeout)
	defer cancel()

	err = h.engine.InitializeSubject(ctx, instanceID, subjectID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) AdvanceSubject(c fiber.Ctx) error {
	instanceID, subjectID, err := subjectParams(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	var req AdvanceSubjectRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.Context(), h.requestTimeout)
	defer cancel()

	err = h.engine.AdvanceSubject(ctx, instanceID, subjectID, req.ToStateID)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CheckCompletion(c fiber.Ctx) error {
	id, err := idParam(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}

	ctx, cancel := context.WithTimeout(c.Context(), h.requestTimeout)
	defer cancel()

	completion, err := h.engine.CheckCompletion(ctx, id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(CompletionResponse{
		ProcessInstanceID: completion.ProcessInstanceID,
		Completed:         completion.Completed,
		Finalized:         completion.Finalized,
	})
}

// GetEventLog lists event-log records filtered by case_id, process_model_id
// and resource. format=csv returns the diagram tool's CSV, deduplicated when
// deduplicate=true.
func (h *APIHandlers) GetEventLog(c fiber.Ctx) error {
	filter, err := parseEventLogFilter(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	records, err := h.eventLog.EventLogRecords(c.Context(), filter)
	if err != nil {
		return handleEngineError(c, err)
	}

	if c.Query("deduplicate") == "true" {
		records = eventlog.Deduplicate(records)
	}

	if c.Query("format") != "csv" {
		return c.JSON(fiber.Map{"records": records, "total_count": len(records)})
	}

	var buf bytes.Buffer

	err = eventlog.WriteCSV(&buf, records)
	if err != nil {
		return handleEngineError(c, err)
	}

	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")

	return c.Send(buf.Bytes())
}

func parseEventLogFilter(c fiber.Ctx) (persistence.EventLogFilter, error) {
	filter := persistence.EventLogFilter{Resource: c.Query("resource")}

	if raw := c.Query("case_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, fmt.Errorf("case_id: %w", err)
		}

		filter.CaseID = id
	}

	if raw := c.Query("process_model_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, fmt.Errorf("process_model_id: %w", err)
		}

		filter.ProcessModelID = id
	}

	return filter, nil
}

func idParam(c fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}

	return id, nil
}

func subjectParams(c fiber.Ctx) (int64, int64, error) {
	instanceID, err := idParam(c, "id")
	if err != nil {
		return 0, 0, err
	}

	subjectID, err := idParam(c, "subjectId")
	if err != nil {
		return 0, 0, err
	}

	return instanceID, subjectID, nil
}
