// Package events defines the notifications published by the process engine.
package events

import (
	"time"

	"github.com/dukex/sbpm/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every engine event.
const Topic = "sbpm.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	EventLogRecordedEvent        EventType = "event_log.recorded"
	ProcessInstanceStartedEvent  EventType = "process_instance.started"
	ProcessInstanceFinishedEvent EventType = "process_instance.finished"
	SubjectStateChangedEvent     EventType = "subject.state_changed"
)

type BaseEvent struct {
	ID                string    `json:"id"`
	Type              EventType `json:"type"`
	Timestamp         time.Time `json:"timestamp"`
	ProcessInstanceID int64     `json:"process_instance_id"`
	WorkerID          string    `json:"worker_id,omitempty"`
}

func newBaseEvent(eventType EventType, processInstanceID int64, workerID string) BaseEvent {
	return BaseEvent{
		ID:                uuid.NewString(),
		Type:              eventType,
		Timestamp:         time.Now().UTC(),
		ProcessInstanceID: processInstanceID,
		WorkerID:          workerID,
	}
}

// EventLogRecorded carries one process-mining record to the event-log collector.
type EventLogRecorded struct {
	BaseEvent

	Record models.EventLogRecord `json:"record"`
}

func (e EventLogRecorded) GetType() EventType {
	return EventLogRecordedEvent
}

// NewEventLogRecorded wraps a record for publication.
func NewEventLogRecorded(record models.EventLogRecord, workerID string) *EventLogRecorded {
	return &EventLogRecorded{
		BaseEvent: newBaseEvent(EventLogRecordedEvent, record.CaseID, workerID),
		Record:    record,
	}
}

type ProcessInstanceStarted struct {
	BaseEvent

	ProcessModelID int64   `json:"process_model_id"`
	StartUserID    string  `json:"start_user_id,omitempty"`
	SubjectIDs     []int64 `json:"subject_ids"`
}

func (e ProcessInstanceStarted) GetType() EventType {
	return ProcessInstanceStartedEvent
}

func NewProcessInstanceStarted(instance *models.ProcessInstance, subjectIDs []int64, workerID string) *ProcessInstanceStarted {
	return &ProcessInstanceStarted{
		BaseEvent:      newBaseEvent(ProcessInstanceStartedEvent, instance.ID, workerID),
		ProcessModelID: instance.ProcessModelID,
		StartUserID:    instance.StartUserID,
		SubjectIDs:     subjectIDs,
	}
}

type ProcessInstanceFinished struct {
	BaseEvent

	ProcessModelID int64     `json:"process_model_id"`
	FinishedAt     time.Time `json:"finished_at"`
}

func (e ProcessInstanceFinished) GetType() EventType {
	return ProcessInstanceFinishedEvent
}

func NewProcessInstanceFinished(instance *models.ProcessInstance, workerID string) *ProcessInstanceFinished {
	event := &ProcessInstanceFinished{
		BaseEvent:      newBaseEvent(ProcessInstanceFinishedEvent, instance.ID, workerID),
		ProcessModelID: instance.ProcessModelID,
	}

	if instance.FinishedAt != nil {
		event.FinishedAt = *instance.FinishedAt
	}

	return event
}

type SubjectStateChanged struct {
	BaseEvent

	SubjectID   int64  `json:"subject_id"`
	FromStateID int64  `json:"from_state_id,omitempty"`
	ToStateID   int64  `json:"to_state_id"`
	StateName   string `json:"state_name"`
}

func (e SubjectStateChanged) GetType() EventType {
	return SubjectStateChangedEvent
}

func NewSubjectStateChanged(state *models.SubjectState, fromStateID int64, stateName, workerID string) *SubjectStateChanged {
	return &SubjectStateChanged{
		BaseEvent:   newBaseEvent(SubjectStateChangedEvent, state.ProcessInstanceID, workerID),
		SubjectID:   state.SubjectID,
		FromStateID: fromStateID,
		ToStateID:   state.StateID,
		StateName:   stateName,
	}
}

// New returns an empty event of the given type for decoding, or nil for unknown types.
func New(eventType EventType) any {
	switch eventType {
	case EventLogRecordedEvent:
		return &EventLogRecorded{}
	case ProcessInstanceStartedEvent:
		return &ProcessInstanceStarted{}
	case ProcessInstanceFinishedEvent:
		return &ProcessInstanceFinished{}
	case SubjectStateChangedEvent:
		return &SubjectStateChanged{}
	default:
		return nil
	}
}
