package models

import "time"

// ProcessInstanceState is the lifecycle of a running process. FINISHED is terminal.
type ProcessInstanceState string

const (
	ProcessInstanceStateRunning  ProcessInstanceState = "RUNNING"
	ProcessInstanceStateFinished ProcessInstanceState = "FINISHED"
)

// ProcessInstance is a running instantiation of a process model.
type ProcessInstance struct {
	ID             int64                `json:"id"`
	ProcessModelID int64                `json:"process_model_id"`
	State          ProcessInstanceState `json:"state"`
	StartUserID    string               `json:"start_user_id,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	FinishedAt     *time.Time           `json:"finished_at,omitempty"`
}

// IsFinished reports whether the instance reached its terminal state.
func (pi *ProcessInstance) IsFinished() bool {
	return pi.State == ProcessInstanceStateFinished
}

// Finish moves the instance to FINISHED. It returns false when the instance
// was already finished, leaving it untouched.
func (pi *ProcessInstance) Finish(at time.Time) bool {
	if pi.IsFinished() {
		return false
	}

	pi.State = ProcessInstanceStateFinished
	pi.FinishedAt = &at

	return true
}

// Subject is an instantiated role within a process instance.
type Subject struct {
	ID                int64  `json:"id"`
	ProcessInstanceID int64  `json:"process_instance_id"`
	SubjectModelID    int64  `json:"subject_model_id"`
	UserID            string `json:"user_id,omitempty"`
}

// SubjectState is an append-only record of a subject's position in its state
// machine. The record with the highest ID is the subject's current state.
type SubjectState struct {
	ID                int64     `json:"id"`
	SubjectID         int64     `json:"subject_id"`
	ProcessInstanceID int64     `json:"process_instance_id"`
	StateID           int64     `json:"state_id"`
	CreatedAt         time.Time `json:"created_at"`
}
