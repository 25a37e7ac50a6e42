// Package testutil provides process-model fixtures and builders for tests.
package testutil

import (
	"time"

	"github.com/dukex/sbpm/pkg/models"
)

// Identifiers of the order process fixture.
const (
	CustomerModelID int64 = 1
	SupplierModelID int64 = 2

	CustomerSendOrderStateID      int64 = 11
	CustomerReceiveInvoiceStateID int64 = 12
	CustomerDoneStateID           int64 = 13

	SupplierReceiveOrderStateID int64 = 21
	SupplierSendInvoiceStateID  int64 = 22
	SupplierDoneStateID         int64 = 23

	OrderFlowID   int64 = 101
	InvoiceFlowID int64 = 102
)

// Identifiers of the approval process fixture.
const (
	ReviewerModelID int64 = 1
	ArchiveModelID  int64 = 2

	ReviewStateID   int64 = 11
	ApprovedStateID int64 = 12
	ArchivedStateID int64 = 21
)

// CreateOrderProcessModel builds a released two-subject process:
//
//	Customer: Send Order (SEND, start) -> Receive Invoice (RECEIVE) -> Done (END)
//	Supplier: Receive Order (RECEIVE, start) -> Send Invoice (SEND) -> Done (END)
//
// with an "Order" flow and an "Invoice" flow between them.
func CreateOrderProcessModel(overrides ...func(*models.ProcessModel)) *models.ProcessModel {
	pm := &models.ProcessModel{
		Name:                  "Order",
		Description:           "Customer orders goods from a supplier",
		Version:               1,
		State:                 models.ProcessModelStateReleased,
		StarterSubjectModelID: CustomerModelID,
		CreatedAt:             time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		SubjectModels: []models.SubjectModel{
			{
				ID:   CustomerModelID,
				Name: "Customer",
				Type: models.SubjectModelTypeInternal,
				States: []models.State{
					NewState(CustomerSendOrderStateID, "Send Order", models.StateFunctionTypeSend, true, CustomerReceiveInvoiceStateID),
					NewState(CustomerReceiveInvoiceStateID, "Receive Invoice", models.StateFunctionTypeReceive, false, CustomerDoneStateID),
					NewState(CustomerDoneStateID, "Done", models.StateFunctionTypeEnd, false),
				},
			},
			{
				ID:   SupplierModelID,
				Name: "Supplier",
				Type: models.SubjectModelTypeInternal,
				States: []models.State{
					NewState(SupplierReceiveOrderStateID, "Receive Order", models.StateFunctionTypeReceive, true, SupplierSendInvoiceStateID),
					NewState(SupplierSendInvoiceStateID, "Send Invoice", models.StateFunctionTypeSend, false, SupplierDoneStateID),
					NewState(SupplierDoneStateID, "Done", models.StateFunctionTypeEnd, false),
				},
			},
		},
		MessageFlows: []models.MessageFlow{
			NewMessageFlow(OrderFlowID, CustomerSendOrderStateID, SupplierReceiveOrderStateID, "Order"),
			NewMessageFlow(InvoiceFlowID, SupplierSendInvoiceStateID, CustomerReceiveInvoiceStateID, "Invoice"),
		},
	}

	for _, override := range overrides {
		override(pm)
	}

	return pm
}

// CreateApprovalProcessModel builds a released process where the Reviewer
// starts in a FUNCTION state and the Archive subject starts directly in END.
func CreateApprovalProcessModel(overrides ...func(*models.ProcessModel)) *models.ProcessModel {
	pm := &models.ProcessModel{
		Name:                  "Approval",
		Description:           "Single reviewer approval",
		Version:               1,
		State:                 models.ProcessModelStateReleased,
		StarterSubjectModelID: ReviewerModelID,
		CreatedAt:             time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		SubjectModels: []models.SubjectModel{
			{
				ID:   ReviewerModelID,
				Name: "Reviewer",
				Type: models.SubjectModelTypeInternal,
				States: []models.State{
					NewState(ReviewStateID, "Review", models.StateFunctionTypeFunction, true, ApprovedStateID),
					NewState(ApprovedStateID, "Approved", models.StateFunctionTypeEnd, false),
				},
			},
			{
				ID:   ArchiveModelID,
				Name: "Archive",
				Type: models.SubjectModelTypeInternal,
				States: []models.State{
					NewState(ArchivedStateID, "Archived", models.StateFunctionTypeEnd, true),
				},
			},
		},
	}

	for _, override := range overrides {
		override(pm)
	}

	return pm
}

// NewState builds a state with transitions to the given successors.
func NewState(id int64, name string, functionType models.StateFunctionType, start bool, successors ...int64) models.State {
	transitions := make([]models.Transition, 0, len(successors))
	for _, successor := range successors {
		transitions = append(transitions, models.Transition{ToStateID: successor})
	}

	return models.State{
		ID:           id,
		Name:         name,
		FunctionType: functionType,
		Start:        start,
		Transitions:  transitions,
	}
}

// NewMessageFlow builds a flow carrying one business object per name.
func NewMessageFlow(id, senderStateID, receiverStateID int64, businessObjects ...string) models.MessageFlow {
	boms := make([]models.BusinessObjectModel, 0, len(businessObjects))
	for i, name := range businessObjects {
		boms = append(boms, models.BusinessObjectModel{ID: id*10 + int64(i) + 1, Name: name})
	}

	return models.MessageFlow{
		ID:                   id,
		SenderStateID:        senderStateID,
		ReceiverStateID:      receiverStateID,
		BusinessObjectModels: boms,
	}
}

// WithSubjectModelType changes the type of one subject model.
func WithSubjectModelType(subjectModelID int64, subjectModelType models.SubjectModelType) func(*models.ProcessModel) {
	return func(pm *models.ProcessModel) {
		for i := range pm.SubjectModels {
			if pm.SubjectModels[i].ID == subjectModelID {
				pm.SubjectModels[i].Type = subjectModelType
			}
		}
	}
}

// WithMessageFlows replaces the message flows.
func WithMessageFlows(flows ...models.MessageFlow) func(*models.ProcessModel) {
	return func(pm *models.ProcessModel) {
		pm.MessageFlows = flows
	}
}

// WithState sets the model lifecycle state.
func WithState(state models.ProcessModelState) func(*models.ProcessModel) {
	return func(pm *models.ProcessModel) {
		pm.State = state
	}
}
