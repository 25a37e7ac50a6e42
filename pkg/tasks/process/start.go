// Package process implements the process-level tasks: starting an instance of
// a released model and detecting when an instance is complete.
package process

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dukex/sbpm/pkg/dispatch"
	"github.com/dukex/sbpm/pkg/events"
	"github.com/dukex/sbpm/pkg/messages"
	"github.com/dukex/sbpm/pkg/models"
	"github.com/dukex/sbpm/pkg/persistence"
	"github.com/dukex/sbpm/pkg/tasks"
)

// ErrProcessModelNotReleased is returned when starting a DRAFT model.
var ErrProcessModelNotReleased = errors.New("process model is not released")

// StartTaskID identifies the start factory.
const StartTaskID = "process.start"

// StartFactory creates tasks that instantiate a process model.
type StartFactory struct {
	env      tasks.Env
	callback dispatch.Callback[*models.ProcessInstance]
}

func NewStartFactory(env tasks.Env, callback dispatch.Callback[*models.ProcessInstance]) *StartFactory {
	return &StartFactory{env: env.WithDefaults(), callback: callback}
}

func (f *StartFactory) ID() string {
	return StartTaskID
}

func (f *StartFactory) CanHandle(msg messages.Message) bool {
	_, ok := msg.(messages.StartProcess)

	return ok
}

// nolint:ireturn // factories hand out tasks by interface
func (f *StartFactory) Create() dispatch.Task {
	return &startTask{env: f.env, callback: f.callback}
}

type startTask struct {
	env      tasks.Env
	callback dispatch.Callback[*models.ProcessInstance]
}

// Execute creates a RUNNING instance with one subject per subject model. The
// starter subject is assigned to the start user. After commit every subject
// actor is told to initialize.
func (t *startTask) Execute(ctx context.Context, tx persistence.Tx, env messages.Envelope) error {
	msg, err := tasks.MessageAs[messages.StartProcess](env)
	if err != nil {
		return err
	}

	pm, err := tx.ProcessModelByID(ctx, msg.ProcessModelID)
	if err != nil {
		return fmt.Errorf("failed to load process model: %w", err)
	}

	if !pm.IsReleased() {
		return fmt.Errorf("%w: %d (%s)", ErrProcessModelNotReleased, pm.ID, pm.State)
	}

	instance := &models.ProcessInstance{
		ProcessModelID: pm.ID,
		State:          models.ProcessInstanceStateRunning,
		StartUserID:    msg.StartUserID,
		CreatedAt:      t.env.Now(),
	}

	err = tx.SaveProcessInstance(ctx, instance)
	if err != nil {
		return fmt.Errorf("failed to save process instance: %w", err)
	}

	subjectIDs := make([]int64, 0, len(pm.SubjectModels))

	for _, sm := range pm.SubjectModels {
		subject := &models.Subject{
			ProcessInstanceID: instance.ID,
			SubjectModelID:    sm.ID,
		}

		if sm.ID == pm.StarterSubjectModelID {
			subject.UserID = msg.StartUserID
		}

		err = tx.SaveSubject(ctx, subject)
		if err != nil {
			return fmt.Errorf("failed to save subject for %s: %w", sm.Name, err)
		}

		subjectIDs = append(subjectIDs, subject.ID)
	}

	t.env.Logger.InfoContext(ctx, "process instance created",
		"process_model_id", pm.ID,
		"process_instance_id", instance.ID,
		"subjects", len(subjectIDs))

	return tasks.AfterCommit(tx, "start notifications", func(ctx context.Context) {
		env.ReplyTo.Reply(ctx, messages.ProcessStarted{ProcessInstanceID: instance.ID, SubjectIDs: subjectIDs})
		t.callback.Invoke(ctx, instance)
		t.env.Publish(ctx, strconv.FormatInt(instance.ID, 10),
			events.NewProcessInstanceStarted(instance, subjectIDs, t.env.WorkerID))

		for _, subjectID := range subjectIDs {
			t.env.Tell(ctx, messages.InitializeSubject{ProcessInstanceID: instance.ID, SubjectID: subjectID})
		}
	})
}
