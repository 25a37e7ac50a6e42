package web

import "github.com/dukex/sbpm/pkg/models"

// StartProcessRequest represents the request body for starting a process instance.
type StartProcessRequest struct {
	StartUserID string `json:"start_user_id" validate:"omitempty,max=255"`
}

// AdvanceSubjectRequest represents the request body for moving a subject to a successor state.
type AdvanceSubjectRequest struct {
	ToStateID int64 `json:"to_state_id" validate:"required,gt=0"`
}

// ProcessStartedResponse is returned when an instance was created.
type ProcessStartedResponse struct {
	ProcessInstanceID int64   `json:"process_instance_id"`
	SubjectIDs        []int64 `json:"subject_ids"`
}

// CompletionResponse reports the outcome of a completion check.
type CompletionResponse struct {
	ProcessInstanceID int64 `json:"process_instance_id"`
	Completed         bool  `json:"completed"`
	Finalized         bool  `json:"finalized"`
}

// SubjectResponse is a subject with its current state, if any.
type SubjectResponse struct {
	ID               int64  `json:"id"`
	SubjectModelID   int64  `json:"subject_model_id"`
	SubjectModelName string `json:"subject_model_name"`
	UserID           string `json:"user_id,omitempty"`
	CurrentStateID   *int64 `json:"current_state_id,omitempty"`
	CurrentState     string `json:"current_state,omitempty"`
}

// ProcessInstanceResponse is an instance with its subjects.
type ProcessInstanceResponse struct {
	*models.ProcessInstance

	Subjects []SubjectResponse `json:"subjects"`
}
