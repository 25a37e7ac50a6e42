// Package subject implements the tasks that move a subject through its state
// machine: initialization into the start state and single-step transitions.
package subject

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/sbpm/pkg/models"
	"github.com/dukex/sbpm/pkg/persistence"
)

var (
	// ErrInvalidTransition is returned when the target state is not a successor of the current state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNotInitialized is returned when advancing a subject that has no state yet.
	ErrNotInitialized = errors.New("subject has not been initialized")

	// ErrProcessInstanceFinished is returned when advancing a subject of a finished instance.
	ErrProcessInstanceFinished = errors.New("process instance is finished")

	// ErrSubjectMismatch is returned when a subject does not belong to the addressed instance.
	ErrSubjectMismatch = errors.New("subject does not belong to process instance")
)

// scope is everything a subject task needs to know about the subject.
type scope struct {
	instance     *models.ProcessInstance
	subject      *models.Subject
	model        *models.ProcessModel
	subjectModel models.SubjectModel
}

// loadScope reads the instance, the subject and its model. When lock is set
// the instance stays locked until the transaction ends.
func loadScope(ctx context.Context, tx persistence.Tx, processInstanceID, subjectID int64, lock bool) (*scope, error) {
	load := tx.ProcessInstanceByID
	if lock {
		load = tx.LockProcessInstance
	}

	instance, err := load(ctx, processInstanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load process instance: %w", err)
	}

	subject, err := tx.SubjectByID(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subject: %w", err)
	}

	if subject.ProcessInstanceID != instance.ID {
		return nil, fmt.Errorf("%w: subject %d, process instance %d", ErrSubjectMismatch, subject.ID, instance.ID)
	}

	pm, err := tx.ProcessModelByID(ctx, instance.ProcessModelID)
	if err != nil {
		return nil, fmt.Errorf("failed to load process model: %w", err)
	}

	subjectModel, ok := pm.SubjectModelByID(subject.SubjectModelID)
	if !ok {
		return nil, fmt.Errorf("process model %d has no subject model %d: %w",
			pm.ID, subject.SubjectModelID, persistence.ErrNotFound)
	}

	return &scope{instance: instance, subject: subject, model: pm, subjectModel: subjectModel}, nil
}
