package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dukex/sbpm/pkg/engine"
	"github.com/dukex/sbpm/pkg/eventlog"
	"github.com/dukex/sbpm/pkg/log"
	"github.com/dukex/sbpm/pkg/models"
	"github.com/dukex/sbpm/pkg/persistence/file"
	"github.com/dukex/sbpm/pkg/testutil"
	"github.com/dukex/sbpm/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) (*fiber.App, *file.Persistence) {
	t.Helper()

	store, err := file.NewPersistence(t.TempDir(), log.Discard())
	require.NoError(t, err)

	collector := eventlog.NewCollector(store.EventLogRepository(), log.Discard())

	eng, err := engine.New(t.Context(), store, engine.Options{
		Sink:   collector,
		Logger: log.Discard(),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = eng.Shutdown(ctx)
	})

	handlers := web.NewAPIHandlers(eng, store.EventLogRepository(), validator.New(validator.WithRequiredStructEnabled()), 5*time.Second)

	app := fiber.New()
	web.Routes(app, handlers)

	return app, store
}

func do(t *testing.T, app *fiber.App, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

func importModel(t *testing.T, app *fiber.App, pm *models.ProcessModel) *models.ProcessModel {
	t.Helper()

	status, body := do(t, app, http.MethodPost, "/process-models", pm)
	require.Equal(t, http.StatusCreated, status, string(body))

	var created models.ProcessModel
	require.NoError(t, json.Unmarshal(body, &created))
	require.NotZero(t, created.ID)

	return &created
}

func getInstance(t *testing.T, app *fiber.App, id int64) web.ProcessInstanceResponse {
	t.Helper()

	status, body := do(t, app, http.MethodGet, "/process-instances/"+strconv.FormatInt(id, 10), nil)
	require.Equal(t, http.StatusOK, status, string(body))

	var response web.ProcessInstanceResponse
	require.NoError(t, json.Unmarshal(body, &response))

	return response
}

func subjectByModel(response web.ProcessInstanceResponse, subjectModelID int64) web.SubjectResponse {
	for _, s := range response.Subjects {
		if s.SubjectModelID == subjectModelID {
			return s
		}
	}

	return web.SubjectResponse{}
}

func TestAPI_OrderProcessLifecycle(t *testing.T) {
	app, _ := setupTestApp(t)
	pm := importModel(t, app, testutil.CreateOrderProcessModel())

	status, body := do(t, app, http.MethodPost, "/process-models/"+strconv.FormatInt(pm.ID, 10)+"/instances",
		web.StartProcessRequest{StartUserID: "alice"})
	require.Equal(t, http.StatusCreated, status, string(body))

	var started web.ProcessStartedResponse
	require.NoError(t, json.Unmarshal(body, &started))
	require.Len(t, started.SubjectIDs, 2)

	assert.Eventually(t, func() bool {
		for _, s := range getInstance(t, app, started.ProcessInstanceID).Subjects {
			if s.CurrentStateID == nil {
				return false
			}
		}

		return true
	}, 2*time.Second, 20*time.Millisecond)

	instance := getInstance(t, app, started.ProcessInstanceID)
	customer := subjectByModel(instance, testutil.CustomerModelID)
	supplier := subjectByModel(instance, testutil.SupplierModelID)
	assert.Equal(t, "Send Order", customer.CurrentState)
	assert.Equal(t, "alice", customer.UserID)

	base := "/process-instances/" + strconv.FormatInt(started.ProcessInstanceID, 10)
	advance := func(subjectID, to int64) (int, []byte) {
		return do(t, app, http.MethodPost, base+"/subjects/"+strconv.FormatInt(subjectID, 10)+"/advance",
			web.AdvanceSubjectRequest{ToStateID: to})
	}

	status, body = advance(customer.ID, testutil.CustomerDoneStateID)
	assert.Equal(t, http.StatusBadRequest, status, string(body))
	assert.Contains(t, string(body), "validation_error")

	for _, step := range []struct{ subject, to int64 }{
		{customer.ID, testutil.CustomerReceiveInvoiceStateID},
		{supplier.ID, testutil.SupplierSendInvoiceStateID},
		{customer.ID, testutil.CustomerDoneStateID},
	} {
		status, body = advance(step.subject, step.to)
		require.Equal(t, http.StatusNoContent, status, string(body))
	}

	status, body = do(t, app, http.MethodPost, base+"/completion", nil)
	require.Equal(t, http.StatusOK, status)

	var completion web.CompletionResponse
	require.NoError(t, json.Unmarshal(body, &completion))
	assert.False(t, completion.Completed)

	status, _ = advance(supplier.ID, testutil.SupplierDoneStateID)
	require.Equal(t, http.StatusNoContent, status)

	assert.Eventually(t, func() bool {
		return getInstance(t, app, started.ProcessInstanceID).State == models.ProcessInstanceStateFinished
	}, 2*time.Second, 20*time.Millisecond)

	status, body = advance(supplier.ID, testutil.SupplierDoneStateID)
	assert.Equal(t, http.StatusConflict, status, string(body))

	status, body = do(t, app, http.MethodGet, "/event-log?format=csv&resource=Customer&case_id="+strconv.FormatInt(started.ProcessInstanceID, 10), nil)
	require.Equal(t, http.StatusOK, status)

	records, err := eventlog.ReadCSV(bytes.NewReader(body))
	require.NoError(t, err)

	activities := make([]string, 0, len(records))
	for _, record := range records {
		activities = append(activities, record.Activity)
	}

	assert.Equal(t, []string{"Send Order", "Receive Invoice", "Done"}, activities)
}

func TestAPI_Errors(t *testing.T) {
	app, _ := setupTestApp(t)
	draft := importModel(t, app, testutil.CreateOrderProcessModel(testutil.WithState(models.ProcessModelStateDraft)))

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		kind   string
	}{
		{name: "unknown instance", method: http.MethodGet, path: "/process-instances/999", status: http.StatusNotFound, kind: "not_found"},
		{name: "unknown model", method: http.MethodGet, path: "/process-models/999", status: http.StatusNotFound, kind: "not_found"},
		{name: "invalid id", method: http.MethodGet, path: "/process-instances/abc", status: http.StatusBadRequest, kind: "validation_error"},
		{name: "completion of unknown instance", method: http.MethodPost, path: "/process-instances/999/completion", status: http.StatusNotFound, kind: "not_found"},
		{
			name:   "draft model",
			method: http.MethodPost,
			path:   "/process-models/" + strconv.FormatInt(draft.ID, 10) + "/instances",
			status: http.StatusConflict,
			kind:   "conflict",
		},
		{
			name:   "advance without target",
			method: http.MethodPost,
			path:   "/process-instances/1/subjects/2/advance",
			body:   map[string]any{},
			status: http.StatusBadRequest,
			kind:   "validation_error",
		},
		{
			name:   "invalid model document",
			method: http.MethodPost,
			path:   "/process-models",
			body:   map[string]any{"name": "x"},
			status: http.StatusBadRequest,
			kind:   "validation_error",
		},
		{name: "invalid event log filter", method: http.MethodGet, path: "/event-log?case_id=x", status: http.StatusBadRequest, kind: "validation_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, app, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, status, string(body))
			assert.True(t, strings.Contains(string(body), tt.kind), string(body))
		})
	}
}

func TestAPI_HealthCheck(t *testing.T) {
	app, _ := setupTestApp(t)

	status, body := do(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), "healthy")
}
