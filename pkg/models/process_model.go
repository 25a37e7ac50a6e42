// Package models defines the process templates and runtime records of the subject-oriented engine.
package models

import (
	"fmt"
	"time"
)

// ProcessModelState represents the lifecycle state of a process template.
type ProcessModelState string

const (
	ProcessModelStateDraft    ProcessModelState = "DRAFT"    // Editable, not startable
	ProcessModelStateReleased ProcessModelState = "RELEASED" // Immutable, startable
)

// SubjectModelType tells whether the engine initializes and drives a subject.
type SubjectModelType string

const (
	SubjectModelTypeInternal SubjectModelType = "INTERNAL"
	SubjectModelTypeExternal SubjectModelType = "EXTERNAL"
)

// StateFunctionType is the behavioral kind of a state.
type StateFunctionType string

const (
	StateFunctionTypeSend     StateFunctionType = "SEND"
	StateFunctionTypeReceive  StateFunctionType = "RECEIVE"
	StateFunctionTypeFunction StateFunctionType = "FUNCTION"
	StateFunctionTypeEnd      StateFunctionType = "END"
)

// ProcessModel is a named, versioned process template.
type ProcessModel struct {
	ID                    int64             `json:"id"`
	Name                  string            `json:"name"                     validate:"required"`
	Description           string            `json:"description"              validate:"required"`
	Version               float64           `json:"version"                  validate:"gte=0"`
	State                 ProcessModelState `json:"state"                    validate:"required,oneof=DRAFT RELEASED"`
	StarterSubjectModelID int64             `json:"starter_subject_model_id" validate:"required"`
	SubjectModels         []SubjectModel    `json:"subject_models"           validate:"required,min=1,dive"`
	MessageFlows          []MessageFlow     `json:"message_flows"            validate:"dive"`
	CreatedAt             time.Time         `json:"created_at"`
}

// SubjectModel is a role template with its own state machine.
type SubjectModel struct {
	ID     int64            `json:"id"     validate:"required"`
	Name   string           `json:"name"   validate:"required"`
	Type   SubjectModelType `json:"type"   validate:"required,oneof=INTERNAL EXTERNAL"`
	States []State          `json:"states" validate:"required,min=1,dive"`
}

// State is a node in a subject model's state machine.
type State struct {
	ID           int64             `json:"id"            validate:"required"`
	Name         string            `json:"name"          validate:"required"`
	FunctionType StateFunctionType `json:"function_type" validate:"required,oneof=SEND RECEIVE FUNCTION END"`
	Start        bool              `json:"start"`
	Transitions  []Transition      `json:"transitions"   validate:"dive"`
}

// Transition is an outgoing edge of a state inside the same subject model.
type Transition struct {
	ToStateID int64 `json:"to_state_id" validate:"required"`
}

// MessageFlow is a directed edge from a SEND state of one subject model to a
// RECEIVE state of another subject model.
type MessageFlow struct {
	ID                   int64                 `json:"id"                     validate:"required"`
	SenderStateID        int64                 `json:"sender_state_id"        validate:"required"`
	ReceiverStateID      int64                 `json:"receiver_state_id"      validate:"required"`
	BusinessObjectModels []BusinessObjectModel `json:"business_object_models" validate:"required,min=1,dive"`
}

// BusinessObjectModel is a payload type carried by a message flow.
type BusinessObjectModel struct {
	ID   int64  `json:"id"   validate:"required"`
	Name string `json:"name" validate:"required"`
}

// IsEnd reports whether the state is terminal.
func (s State) IsEnd() bool {
	return s.FunctionType == StateFunctionTypeEnd
}

// HasTransitionTo reports whether stateID is a direct successor of s.
func (s State) HasTransitionTo(stateID int64) bool {
	for _, t := range s.Transitions {
		if t.ToStateID == stateID {
			return true
		}
	}

	return false
}

// StartState returns the unique start state of the subject model.
func (sm SubjectModel) StartState() (State, error) {
	var (
		start State
		found int
	)

	for _, state := range sm.States {
		if state.Start {
			start = state
			found++
		}
	}

	switch found {
	case 0:
		return State{}, fmt.Errorf("%w: subject model %d (%s)", ErrNoStartState, sm.ID, sm.Name)
	case 1:
		return start, nil
	default:
		return State{}, fmt.Errorf("%w: subject model %d (%s) has %d", ErrMultipleStartStates, sm.ID, sm.Name, found)
	}
}

// StateByID finds a state of this subject model.
func (sm SubjectModel) StateByID(stateID int64) (State, bool) {
	for _, state := range sm.States {
		if state.ID == stateID {
			return state, true
		}
	}

	return State{}, false
}

// IsInternal reports whether the engine is responsible for the subject.
func (sm SubjectModel) IsInternal() bool {
	return sm.Type == SubjectModelTypeInternal
}

// SubjectModelByID finds a subject model of this process model.
func (pm *ProcessModel) SubjectModelByID(subjectModelID int64) (SubjectModel, bool) {
	for _, sm := range pm.SubjectModels {
		if sm.ID == subjectModelID {
			return sm, true
		}
	}

	return SubjectModel{}, false
}

// StateByID finds a state anywhere in the process model together with its owner.
func (pm *ProcessModel) StateByID(stateID int64) (State, SubjectModel, bool) {
	for _, sm := range pm.SubjectModels {
		if state, ok := sm.StateByID(stateID); ok {
			return state, sm, true
		}
	}

	return State{}, SubjectModel{}, false
}

// MessageFlowsOf returns the message flows associated with a state: outgoing
// flows for SEND states and incoming flows for RECEIVE states, in model order.
func (pm *ProcessModel) MessageFlowsOf(stateID int64) []MessageFlow {
	flows := make([]MessageFlow, 0)

	for _, flow := range pm.MessageFlows {
		if flow.SenderStateID == stateID || flow.ReceiverStateID == stateID {
			flows = append(flows, flow)
		}
	}

	return flows
}

// IsReleased reports whether instances may be started from the model.
func (pm *ProcessModel) IsReleased() bool {
	return pm.State == ProcessModelStateReleased
}
