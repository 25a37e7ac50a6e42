package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dukex/sbpm/pkg/messages"
	"github.com/dukex/sbpm/pkg/models"
	"github.com/dukex/sbpm/pkg/persistence"
	"github.com/stretchr/testify/require"
)

// SaveProcessModel stores pm and returns it with its assigned ID.
func SaveProcessModel(t testing.TB, store persistence.Persistence, pm *models.ProcessModel) *models.ProcessModel {
	t.Helper()

	require.NoError(t, persistence.WithTx(context.Background(), store, func(tx persistence.Tx) error {
		return tx.SaveProcessModel(context.Background(), pm)
	}))

	return pm
}

// CreateInstance stores a RUNNING instance of pm with one uninitialized
// subject per subject model. Subjects are keyed by subject model ID.
func CreateInstance(t testing.TB, store persistence.Persistence, pm *models.ProcessModel) (*models.ProcessInstance, map[int64]*models.Subject) {
	t.Helper()

	instance := &models.ProcessInstance{
		ProcessModelID: pm.ID,
		State:          models.ProcessInstanceStateRunning,
		CreatedAt:      time.Now().UTC(),
	}
	subjects := make(map[int64]*models.Subject, len(pm.SubjectModels))

	require.NoError(t, persistence.WithTx(context.Background(), store, func(tx persistence.Tx) error {
		err := tx.SaveProcessInstance(context.Background(), instance)
		if err != nil {
			return err
		}

		for _, sm := range pm.SubjectModels {
			subject := &models.Subject{ProcessInstanceID: instance.ID, SubjectModelID: sm.ID}

			err = tx.SaveSubject(context.Background(), subject)
			if err != nil {
				return err
			}

			subjects[sm.ID] = subject
		}

		return nil
	}))

	return instance, subjects
}

// AppendState moves a subject to stateID without any checks.
func AppendState(t testing.TB, store persistence.Persistence, subject *models.Subject, stateID int64) {
	t.Helper()

	require.NoError(t, persistence.WithTx(context.Background(), store, func(tx persistence.Tx) error {
		return tx.AppendSubjectState(context.Background(), &models.SubjectState{
			SubjectID:         subject.ID,
			ProcessInstanceID: subject.ProcessInstanceID,
			StateID:           stateID,
			CreatedAt:         time.Now().UTC(),
		})
	}))
}

// CurrentStateID returns the current state of a subject, or false when it has none.
func CurrentStateID(t testing.TB, store persistence.Persistence, subjectID int64) (int64, bool) {
	t.Helper()

	var (
		stateID int64
		found   bool
	)

	require.NoError(t, persistence.WithTx(context.Background(), store, func(tx persistence.Tx) error {
		current, err := tx.CurrentSubjectState(context.Background(), subjectID)
		if persistence.IsNotFound(err) {
			return nil
		}

		if err != nil {
			return err
		}

		stateID, found = current.StateID, true

		return nil
	}))

	return stateID, found
}

// LoadInstance reads a process instance in its own transaction.
func LoadInstance(t testing.TB, store persistence.Persistence, id int64) *models.ProcessInstance {
	t.Helper()

	var instance *models.ProcessInstance

	require.NoError(t, persistence.WithTx(context.Background(), store, func(tx persistence.Tx) error {
		var err error

		instance, err = tx.ProcessInstanceByID(context.Background(), id)

		return err
	}))

	return instance
}

// RecordingTeller collects told messages instead of delivering them.
type RecordingTeller struct {
	mu       sync.Mutex
	messages []messages.Message
}

func (r *RecordingTeller) Tell(_ context.Context, env messages.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.messages = append(r.messages, env.Message)

	return nil
}

// Messages returns a copy of the told messages in order.
func (r *RecordingTeller) Messages() []messages.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]messages.Message(nil), r.messages...)
}

// RecordingSink collects emitted event-log records.
type RecordingSink struct {
	mu      sync.Mutex
	records []*models.EventLogRecord
}

func (r *RecordingSink) Emit(_ context.Context, record *models.EventLogRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *record
	r.records = append(r.records, &copied)

	return nil
}

// Records returns the emitted records in order.
func (r *RecordingSink) Records() []*models.EventLogRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]*models.EventLogRecord(nil), r.records...)
}
