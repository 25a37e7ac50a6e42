// Package persistence provides the transactional store abstraction used by the process engine.
package persistence

import (
	"context"

	"github.com/dukex/sbpm/pkg/models"
	"github.com/dukex/sbpm/pkg/txsync"
)

// Persistence is a process store. Every engine read and write happens inside a Tx.
type Persistence interface {
	// BeginTx opens a READ COMMITTED unit of work.
	BeginTx(ctx context.Context) (Tx, error)

	EventLogRepository() EventLogRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// Tx is one unit of work. Writes are invisible to other transactions until
// Commit returns. Effects registered with AfterCommit run after a successful
// commit in registration order and are dropped on rollback.
type Tx interface {
	ProcessModelByID(ctx context.Context, id int64) (*models.ProcessModel, error)
	// SaveProcessModel inserts or replaces a model. A zero ID is assigned by the store.
	SaveProcessModel(ctx context.Context, pm *models.ProcessModel) error

	ProcessInstanceByID(ctx context.Context, id int64) (*models.ProcessInstance, error)
	// LockProcessInstance loads the instance and holds an exclusive lock on it
	// until the transaction ends.
	LockProcessInstance(ctx context.Context, id int64) (*models.ProcessInstance, error)
	SaveProcessInstance(ctx context.Context, pi *models.ProcessInstance) error
	ProcessInstancesByState(ctx context.Context, state models.ProcessInstanceState) ([]*models.ProcessInstance, error)

	SubjectByID(ctx context.Context, id int64) (*models.Subject, error)
	SubjectsByProcessInstance(ctx context.Context, processInstanceID int64) ([]*models.Subject, error)
	SaveSubject(ctx context.Context, subject *models.Subject) error

	// CurrentSubjectState returns the most recently appended state record of
	// the subject, or a NotFoundError when the subject has none.
	CurrentSubjectState(ctx context.Context, subjectID int64) (*models.SubjectState, error)
	// AppendSubjectState stores a new state record. Records are never updated.
	AppendSubjectState(ctx context.Context, state *models.SubjectState) error

	AfterCommit(effect txsync.Effect) error
	Commit(ctx context.Context) error
	// Rollback discards the unit of work. Calling it after Commit is a no-op.
	Rollback(ctx context.Context) error
}

// EventLogFilter narrows an event-log query. Zero values match everything.
type EventLogFilter struct {
	CaseID         int64
	ProcessModelID int64
	Resource       string
}

// EventLogRepository stores process-mining event-log records.
type EventLogRepository interface {
	SaveEventLogRecord(ctx context.Context, record *models.EventLogRecord) error
	// EventLogRecords returns the matching records ordered by ID.
	EventLogRecords(ctx context.Context, filter EventLogFilter) ([]*models.EventLogRecord, error)
}

// Matches reports whether record satisfies the filter.
func (f EventLogFilter) Matches(record *models.EventLogRecord) bool {
	if f.CaseID != 0 && record.CaseID != f.CaseID {
		return false
	}

	if f.ProcessModelID != 0 && record.ProcessModelID != f.ProcessModelID {
		return false
	}

	if f.Resource != "" && record.Resource != f.Resource {
		return false
	}

	return true
}

// WithTx runs fn inside a transaction, committing when fn succeeds and
// rolling back otherwise.
func WithTx(ctx context.Context, p Persistence, fn func(tx Tx) error) error {
	tx, err := p.BeginTx(ctx)
	if err != nil {
		return err
	}

	err = fn(tx)
	if err != nil {
		_ = tx.Rollback(ctx)

		return err
	}

	return tx.Commit(ctx)
}
