package eventlog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukex/sbpm/pkg/eventlog"
	"github.com/dukex/sbpm/pkg/models"
	"github.com/dukex/sbpm/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageTypePolicies(t *testing.T) {
	t.Parallel()

	invoice := testutil.NewMessageFlow(1, 10, 20, "Invoice")
	order := testutil.NewMessageFlow(2, 10, 30, "Order", "Invoice")

	tests := []struct {
		name       string
		flows      []models.MessageFlow
		joinAll    string
		singleFlow string
	}{
		{name: "no flows", flows: nil, joinAll: "", singleFlow: ""},
		{name: "one flow one object", flows: []models.MessageFlow{invoice}, joinAll: "Invoice", singleFlow: "Invoice"},
		{name: "one flow two objects", flows: []models.MessageFlow{order}, joinAll: "Order|Invoice", singleFlow: "Order"},
		{name: "two flows", flows: []models.MessageFlow{invoice, order}, joinAll: "Invoice|Order", singleFlow: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.joinAll, eventlog.JoinAll(tt.flows))
			assert.Equal(t, tt.singleFlow, eventlog.SingleFlowOnly(tt.flows))
		})
	}
}

func TestPolicyByName(t *testing.T) {
	t.Parallel()

	flows := []models.MessageFlow{testutil.NewMessageFlow(1, 10, 20, "A"), testutil.NewMessageFlow(2, 10, 30, "B")}

	assert.Equal(t, "", eventlog.PolicyByName("single_flow_only")(flows))
	assert.Equal(t, "A|B", eventlog.PolicyByName("join_all")(flows))
	assert.Equal(t, "A|B", eventlog.PolicyByName("")(flows))
}

func TestNewRecord(t *testing.T) {
	t.Parallel()

	pm := testutil.CreateOrderProcessModel()
	pm.ID = 3
	at := time.Date(2024, 2, 5, 7, 3, 0, 0, time.UTC)

	customer, _ := pm.SubjectModelByID(testutil.CustomerModelID)
	supplier, _ := pm.SubjectModelByID(testutil.SupplierModelID)

	t.Run("send state names its recipient", func(t *testing.T) {
		t.Parallel()

		state, _ := customer.StateByID(testutil.CustomerSendOrderStateID)
		record := eventlog.NewRecord(pm, 42, customer, state, at, nil)

		assert.Equal(t, &models.EventLogRecord{
			CaseID:         42,
			ProcessModelID: 3,
			Timestamp:      "05.02.2024 07:03",
			Activity:       "Send Order",
			Resource:       "Customer",
			StateType:      "SEND",
			MessageType:    "Order",
			Recipient:      "Supplier",
		}, record)
	})

	t.Run("receive state names its sender", func(t *testing.T) {
		t.Parallel()

		state, _ := supplier.StateByID(testutil.SupplierReceiveOrderStateID)
		record := eventlog.NewRecord(pm, 42, supplier, state, at, eventlog.SingleFlowOnly)

		assert.Equal(t, "Order", record.MessageType)
		assert.Equal(t, "Customer", record.Sender)
		assert.Empty(t, record.Recipient)
	})

	t.Run("end state has no message", func(t *testing.T) {
		t.Parallel()

		state, _ := supplier.StateByID(testutil.SupplierDoneStateID)
		record := eventlog.NewRecord(pm, 42, supplier, state, at, nil)

		assert.Equal(t, "END", record.StateType)
		assert.Empty(t, record.MessageType)
		assert.Empty(t, record.Sender)
		assert.Empty(t, record.Recipient)
	})
}

func TestMultiSink(t *testing.T) {
	t.Parallel()

	var delivered int

	counting := eventlog.SinkFunc(func(context.Context, *models.EventLogRecord) error {
		delivered++

		return nil
	})
	failing := eventlog.SinkFunc(func(context.Context, *models.EventLogRecord) error {
		return errors.New("unavailable")
	})

	err := eventlog.MultiSink{failing, counting, counting}.Emit(t.Context(), &models.EventLogRecord{})
	require.Error(t, err)
	assert.Equal(t, 2, delivered, "a failing sink does not stop the others")
}

func TestDeliverSwallowsErrors(t *testing.T) {
	t.Parallel()

	failing := eventlog.SinkFunc(func(context.Context, *models.EventLogRecord) error {
		return errors.New("unavailable")
	})

	assert.NotPanics(t, func() {
		eventlog.Deliver(t.Context(), failing, testLogger(), &models.EventLogRecord{CaseID: 1})
	})
}
