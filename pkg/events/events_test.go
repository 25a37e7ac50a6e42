package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dukex/sbpm/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventLogRecorded(t *testing.T) {
	t.Parallel()

	record := models.EventLogRecord{CaseID: 4, ProcessModelID: 2, Activity: "Send Order", Resource: "Customer"}

	event := NewEventLogRecorded(record, "worker-1")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, EventLogRecordedEvent, event.Type)
	assert.Equal(t, EventLogRecordedEvent, event.GetType())
	assert.Equal(t, int64(4), event.ProcessInstanceID)
	assert.Equal(t, record, event.Record)
}

func TestNewProcessInstanceFinished(t *testing.T) {
	t.Parallel()

	finishedAt := time.Date(2024, 2, 5, 7, 3, 0, 0, time.UTC)
	instance := &models.ProcessInstance{ID: 9, ProcessModelID: 3, State: models.ProcessInstanceStateFinished, FinishedAt: &finishedAt}

	event := NewProcessInstanceFinished(instance, "")

	assert.Equal(t, int64(9), event.ProcessInstanceID)
	assert.Equal(t, int64(3), event.ProcessModelID)
	assert.Equal(t, finishedAt, event.FinishedAt)
}

func TestNew(t *testing.T) {
	t.Parallel()

	for _, eventType := range []EventType{
		EventLogRecordedEvent,
		ProcessInstanceStartedEvent,
		ProcessInstanceFinishedEvent,
		SubjectStateChangedEvent,
	} {
		event := New(eventType)
		require.NotNil(t, event, eventType)

		typed, ok := event.(interface{ GetType() EventType })
		require.True(t, ok)
		assert.Equal(t, eventType, typed.GetType())
	}

	assert.Nil(t, New("unknown"))
}

func TestEventLogRecordedDecodes(t *testing.T) {
	t.Parallel()

	original := NewEventLogRecorded(models.EventLogRecord{CaseID: 1, MessageType: "Invoice"}, "w")

	payload, err := json.Marshal(original)
	require.NoError(t, err)

	decoded, ok := New(EventLogRecordedEvent).(*EventLogRecorded)
	require.True(t, ok)
	require.NoError(t, json.Unmarshal(payload, decoded))

	assert.Equal(t, "Invoice", decoded.Record.MessageType)
	assert.Equal(t, original.ID, decoded.ID)
}
