package subject_test

import (
	"testing"

	"github.com/dukex/sbpm/pkg/messages"
	"github.com/dukex/sbpm/pkg/models"
	"github.com/dukex/sbpm/pkg/persistence"
	"github.com/dukex/sbpm/pkg/tasks/subject"
	"github.com/dukex/sbpm/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvance_FollowsTransition(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	pm := testutil.SaveProcessModel(t, h.store, testutil.CreateOrderProcessModel())
	instance, subjects := testutil.CreateInstance(t, h.store, pm)
	supplier := subjects[testutil.SupplierModelID]
	testutil.AppendState(t, h.store, supplier, testutil.SupplierReceiveOrderStateID)

	replies, err := h.send(t, messages.AdvanceSubject{
		ProcessInstanceID: instance.ID,
		SubjectID:         supplier.ID,
		ToStateID:         testutil.SupplierSendInvoiceStateID,
	})
	require.NoError(t, err)
	assert.Equal(t, []messages.Reply{messages.Ack{}}, replies)

	stateID, _ := testutil.CurrentStateID(t, h.store, supplier.ID)
	assert.Equal(t, testutil.SupplierSendInvoiceStateID, stateID)

	advanced := h.advancedStates()
	require.Len(t, advanced, 1)
	assert.Equal(t, testutil.SupplierSendInvoiceStateID, advanced[0].StateID)
	assert.NotZero(t, advanced[0].ID)

	records := h.sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "Send Invoice", records[0].Activity)
	assert.Equal(t, "Invoice", records[0].MessageType)
	assert.Equal(t, "Customer", records[0].Recipient)

	assert.Empty(t, h.teller.Messages(), "no completion check before END")
}

func TestAdvance_ReachingEndRequestsCompletionCheck(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	pm := testutil.SaveProcessModel(t, h.store, testutil.CreateApprovalProcessModel())
	instance, subjects := testutil.CreateInstance(t, h.store, pm)
	reviewer := subjects[testutil.ReviewerModelID]
	testutil.AppendState(t, h.store, reviewer, testutil.ReviewStateID)

	_, err := h.send(t, messages.AdvanceSubject{
		ProcessInstanceID: instance.ID,
		SubjectID:         reviewer.ID,
		ToStateID:         testutil.ApprovedStateID,
	})
	require.NoError(t, err)

	assert.Equal(t, []messages.Message{messages.CheckCompletion{ProcessInstanceID: instance.ID}}, h.teller.Messages())
}

func TestAdvance_Rejections(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	pm := testutil.SaveProcessModel(t, h.store, testutil.CreateOrderProcessModel())

	running, subjects := testutil.CreateInstance(t, h.store, pm)
	customer := subjects[testutil.CustomerModelID]
	supplier := subjects[testutil.SupplierModelID]
	testutil.AppendState(t, h.store, customer, testutil.CustomerSendOrderStateID)

	finished, finishedSubjects := testutil.CreateInstance(t, h.store, pm)
	testutil.AppendState(t, h.store, finishedSubjects[testutil.CustomerModelID], testutil.CustomerSendOrderStateID)
	require.NoError(t, persistence.WithTx(t.Context(), h.store, func(tx persistence.Tx) error {
		finished.Finish(fixedNow)

		return tx.SaveProcessInstance(t.Context(), finished)
	}))

	tests := []struct {
		name string
		msg  messages.AdvanceSubject
		want error
	}{
		{
			name: "skipping a state",
			msg:  messages.AdvanceSubject{ProcessInstanceID: running.ID, SubjectID: customer.ID, ToStateID: testutil.CustomerDoneStateID},
			want: subject.ErrInvalidTransition,
		},
		{
			name: "state of another subject model",
			msg:  messages.AdvanceSubject{ProcessInstanceID: running.ID, SubjectID: customer.ID, ToStateID: testutil.SupplierSendInvoiceStateID},
			want: subject.ErrInvalidTransition,
		},
		{
			name: "uninitialized subject",
			msg:  messages.AdvanceSubject{ProcessInstanceID: running.ID, SubjectID: supplier.ID, ToStateID: testutil.SupplierSendInvoiceStateID},
			want: subject.ErrNotInitialized,
		},
		{
			name: "finished instance",
			msg: messages.AdvanceSubject{
				ProcessInstanceID: finished.ID,
				SubjectID:         finishedSubjects[testutil.CustomerModelID].ID,
				ToStateID:         testutil.CustomerReceiveInvoiceStateID,
			},
			want: subject.ErrProcessInstanceFinished,
		},
		{
			name: "unknown instance",
			msg:  messages.AdvanceSubject{ProcessInstanceID: 9999, SubjectID: customer.ID, ToStateID: testutil.CustomerReceiveInvoiceStateID},
			want: persistence.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replies, err := h.send(t, tt.msg)
			require.ErrorIs(t, err, tt.want)

			require.Len(t, replies, 1)
			assert.IsType(t, messages.Failure{}, replies[0])
		})
	}

	stateID, _ := testutil.CurrentStateID(t, h.store, customer.ID)
	assert.Equal(t, testutil.CustomerSendOrderStateID, stateID)
	assert.Empty(t, h.advancedStates())
	assert.Empty(t, h.sink.Records())
	assert.Empty(t, h.teller.Messages())
}

func TestAdvance_StatesAreAppendOnly(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	pm := testutil.SaveProcessModel(t, h.store, testutil.CreateOrderProcessModel())
	instance, subjects := testutil.CreateInstance(t, h.store, pm)
	customer := subjects[testutil.CustomerModelID]
	testutil.AppendState(t, h.store, customer, testutil.CustomerSendOrderStateID)

	for _, to := range []int64{testutil.CustomerReceiveInvoiceStateID, testutil.CustomerDoneStateID} {
		_, err := h.send(t, messages.AdvanceSubject{ProcessInstanceID: instance.ID, SubjectID: customer.ID, ToStateID: to})
		require.NoError(t, err)
	}

	advanced := h.advancedStates()
	require.Len(t, advanced, 2)
	assert.Less(t, advanced[0].ID, advanced[1].ID)

	records := h.sink.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "Receive Invoice", records[0].Activity)
	assert.Equal(t, "Supplier", records[0].Sender)
	assert.Equal(t, string(models.StateFunctionTypeEnd), records[1].StateType)
}
