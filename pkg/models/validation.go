package models

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrNoStartState indicates a subject model without a start state.
	ErrNoStartState = errors.New("subject model has no start state")

	// ErrMultipleStartStates indicates a subject model with more than one start state.
	ErrMultipleStartStates = errors.New("subject model has more than one start state")

	// ErrInvalidProcessModel is wrapped by every structural validation failure.
	ErrInvalidProcessModel = errors.New("invalid process model")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateProcessModel checks field constraints and the structural rules of
// the state machines and message flows.
func ValidateProcessModel(pm *ProcessModel) error {
	if pm == nil {
		return fmt.Errorf("%w: nil", ErrInvalidProcessModel)
	}

	err := validate.Struct(pm)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidProcessModel, err)
	}

	if _, ok := pm.SubjectModelByID(pm.StarterSubjectModelID); !ok {
		return fmt.Errorf("%w: starter subject model %d is not part of the model", ErrInvalidProcessModel, pm.StarterSubjectModelID)
	}

	stateOwner := make(map[int64]int64)
	subjectModelIDs := make(map[int64]bool)

	for _, sm := range pm.SubjectModels {
		if subjectModelIDs[sm.ID] {
			return fmt.Errorf("%w: duplicate subject model id %d", ErrInvalidProcessModel, sm.ID)
		}

		subjectModelIDs[sm.ID] = true

		if _, err := sm.StartState(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidProcessModel, err)
		}

		for _, state := range sm.States {
			if _, dup := stateOwner[state.ID]; dup {
				return fmt.Errorf("%w: duplicate state id %d", ErrInvalidProcessModel, state.ID)
			}

			stateOwner[state.ID] = sm.ID
		}

		for _, state := range sm.States {
			for _, transition := range state.Transitions {
				if _, ok := sm.StateByID(transition.ToStateID); !ok {
					return fmt.Errorf("%w: state %d transitions to %d outside subject model %d",
						ErrInvalidProcessModel, state.ID, transition.ToStateID, sm.ID)
				}
			}
		}
	}

	for _, flow := range pm.MessageFlows {
		err := validateMessageFlow(pm, flow)
		if err != nil {
			return err
		}
	}

	return nil
}

func validateMessageFlow(pm *ProcessModel, flow MessageFlow) error {
	sender, senderModel, ok := pm.StateByID(flow.SenderStateID)
	if !ok {
		return fmt.Errorf("%w: message flow %d has unknown sender state %d", ErrInvalidProcessModel, flow.ID, flow.SenderStateID)
	}

	receiver, receiverModel, ok := pm.StateByID(flow.ReceiverStateID)
	if !ok {
		return fmt.Errorf("%w: message flow %d has unknown receiver state %d", ErrInvalidProcessModel, flow.ID, flow.ReceiverStateID)
	}

	if sender.FunctionType != StateFunctionTypeSend {
		return fmt.Errorf("%w: message flow %d source state %q is %s, want SEND",
			ErrInvalidProcessModel, flow.ID, sender.Name, sender.FunctionType)
	}

	if receiver.FunctionType != StateFunctionTypeReceive {
		return fmt.Errorf("%w: message flow %d target state %q is %s, want RECEIVE",
			ErrInvalidProcessModel, flow.ID, receiver.Name, receiver.FunctionType)
	}

	if senderModel.ID == receiverModel.ID {
		return fmt.Errorf("%w: message flow %d connects states of the same subject model %q",
			ErrInvalidProcessModel, flow.ID, senderModel.Name)
	}

	return nil
}
