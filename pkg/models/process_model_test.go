package models_test

import (
	"os"
	"testing"
	"time"

	"github.com/dukex/sbpm/pkg/models"
	"github.com/dukex/sbpm/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectModel_StartState(t *testing.T) {
	t.Parallel()

	pm := testutil.CreateOrderProcessModel()

	customer, ok := pm.SubjectModelByID(testutil.CustomerModelID)
	require.True(t, ok)

	start, err := customer.StartState()
	require.NoError(t, err)
	assert.Equal(t, "Send Order", start.Name)
	assert.Equal(t, models.StateFunctionTypeSend, start.FunctionType)

	customer.States[1].Start = true

	_, err = customer.StartState()
	require.ErrorIs(t, err, models.ErrMultipleStartStates)

	noStart := models.SubjectModel{ID: 9, Name: "Empty", States: []models.State{{ID: 1, Name: "x"}}}

	_, err = noStart.StartState()
	require.ErrorIs(t, err, models.ErrNoStartState)
}

func TestProcessModel_MessageFlowsOf(t *testing.T) {
	t.Parallel()

	pm := testutil.CreateOrderProcessModel()

	flows := pm.MessageFlowsOf(testutil.CustomerSendOrderStateID)
	require.Len(t, flows, 1)
	assert.Equal(t, testutil.OrderFlowID, flows[0].ID)

	flows = pm.MessageFlowsOf(testutil.CustomerReceiveInvoiceStateID)
	require.Len(t, flows, 1)
	assert.Equal(t, "Invoice", flows[0].BusinessObjectModels[0].Name)

	assert.Empty(t, pm.MessageFlowsOf(testutil.CustomerDoneStateID))
}

func TestProcessModel_StateByID(t *testing.T) {
	t.Parallel()

	pm := testutil.CreateOrderProcessModel()

	state, owner, ok := pm.StateByID(testutil.SupplierSendInvoiceStateID)
	require.True(t, ok)
	assert.Equal(t, "Send Invoice", state.Name)
	assert.Equal(t, "Supplier", owner.Name)
	assert.True(t, state.HasTransitionTo(testutil.SupplierDoneStateID))
	assert.False(t, state.HasTransitionTo(testutil.SupplierReceiveOrderStateID))

	_, _, ok = pm.StateByID(999)
	assert.False(t, ok)
}

func TestProcessInstance_Finish(t *testing.T) {
	t.Parallel()

	pi := &models.ProcessInstance{ID: 1, State: models.ProcessInstanceStateRunning}
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	assert.True(t, pi.Finish(at))
	assert.True(t, pi.IsFinished())
	require.NotNil(t, pi.FinishedAt)
	assert.Equal(t, at, *pi.FinishedAt)

	assert.False(t, pi.Finish(at.Add(time.Hour)))
	assert.Equal(t, at, *pi.FinishedAt)
}

func TestValidateProcessModel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		model   *models.ProcessModel
		wantErr string
	}{
		{
			name:  "valid order model",
			model: testutil.CreateOrderProcessModel(),
		},
		{
			name:  "valid approval model",
			model: testutil.CreateApprovalProcessModel(),
		},
		{
			name: "missing name",
			model: testutil.CreateOrderProcessModel(func(pm *models.ProcessModel) {
				pm.Name = ""
			}),
			wantErr: "Name",
		},
		{
			name: "unknown starter subject",
			model: testutil.CreateOrderProcessModel(func(pm *models.ProcessModel) {
				pm.StarterSubjectModelID = 42
			}),
			wantErr: "starter subject model 42",
		},
		{
			name: "flow from receive state",
			model: testutil.CreateOrderProcessModel(testutil.WithMessageFlows(
				testutil.NewMessageFlow(500, testutil.CustomerReceiveInvoiceStateID, testutil.SupplierReceiveOrderStateID, "Order"),
			)),
			wantErr: "want SEND",
		},
		{
			name: "flow into send state",
			model: testutil.CreateOrderProcessModel(testutil.WithMessageFlows(
				testutil.NewMessageFlow(500, testutil.CustomerSendOrderStateID, testutil.SupplierSendInvoiceStateID, "Order"),
			)),
			wantErr: "want RECEIVE",
		},
		{
			name: "transition leaves subject model",
			model: testutil.CreateOrderProcessModel(func(pm *models.ProcessModel) {
				pm.SubjectModels[0].States[2].Transitions = []models.Transition{{ToStateID: testutil.SupplierDoneStateID}}
			}),
			wantErr: "outside subject model",
		},
		{
			name: "two start states",
			model: testutil.CreateOrderProcessModel(func(pm *models.ProcessModel) {
				pm.SubjectModels[1].States[2].Start = true
			}),
			wantErr: "more than one start state",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := models.ValidateProcessModel(tt.model)
			if tt.wantErr == "" {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, models.ErrInvalidProcessModel)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseProcessModelDocument(t *testing.T) {
	t.Parallel()

	data, err := os.ReadFile("testdata/order_process.json")
	require.NoError(t, err)

	pm, err := models.ParseProcessModelDocument(data)
	require.NoError(t, err)
	assert.Equal(t, "Order", pm.Name)
	assert.Len(t, pm.SubjectModels, 2)
	assert.Len(t, pm.MessageFlows, 2)
	assert.True(t, pm.IsReleased())
}

func TestParseProcessModelDocument_SchemaViolation(t *testing.T) {
	t.Parallel()

	_, err := models.ParseProcessModelDocument([]byte(`{"name": "x", "state": "ARCHIVED"}`))
	require.ErrorIs(t, err, models.ErrSchemaValidation)
	assert.Contains(t, err.Error(), "description")
}

func TestFormatEventLogTimestamp(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 2, 5, 7, 3, 59, 0, time.UTC)
	assert.Equal(t, "05.02.2024 07:03", models.FormatEventLogTimestamp(ts))
}
