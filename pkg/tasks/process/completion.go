package process

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dukex/sbpm/pkg/dispatch"
	"github.com/dukex/sbpm/pkg/events"
	"github.com/dukex/sbpm/pkg/messages"
	"github.com/dukex/sbpm/pkg/models"
	"github.com/dukex/sbpm/pkg/persistence"
	"github.com/dukex/sbpm/pkg/tasks"
)

// CompletionTaskID identifies the completion factory.
const CompletionTaskID = "process.completion"

// CompletionFactory creates tasks that finish an instance once every subject
// reached an END state.
type CompletionFactory struct {
	env      tasks.Env
	callback dispatch.Callback[bool]
}

func NewCompletionFactory(env tasks.Env, callback dispatch.Callback[bool]) *CompletionFactory {
	return &CompletionFactory{env: env.WithDefaults(), callback: callback}
}

func (f *CompletionFactory) ID() string {
	return CompletionTaskID
}

func (f *CompletionFactory) CanHandle(msg messages.Message) bool {
	_, ok := msg.(messages.CheckCompletion)

	return ok
}

// nolint:ireturn // factories hand out tasks by interface
func (f *CompletionFactory) Create() dispatch.Task {
	return &completionTask{env: f.env, callback: f.callback}
}

type completionTask struct {
	env      tasks.Env
	callback dispatch.Callback[bool]
}

func (t *completionTask) Execute(ctx context.Context, tx persistence.Tx, env messages.Envelope) error {
	msg, err := tasks.MessageAs[messages.CheckCompletion](env)
	if err != nil {
		return err
	}

	logger := t.env.Logger.With("process_instance_id", msg.ProcessInstanceID)

	instance, err := tx.LockProcessInstance(ctx, msg.ProcessInstanceID)
	if err != nil {
		return fmt.Errorf("failed to lock process instance: %w", err)
	}

	if instance.IsFinished() {
		logger.DebugContext(ctx, "process instance already finished")

		return tasks.AfterCommit(tx, "completion reply", func(ctx context.Context) {
			env.ReplyTo.Reply(ctx, messages.Completion{ProcessInstanceID: instance.ID, Completed: true})
		})
	}

	complete, err := t.allSubjectsEnded(ctx, tx, instance)
	if err != nil {
		return err
	}

	if !complete {
		logger.DebugContext(ctx, "process instance not complete")

		// No write happened, so there is nothing to wait for.
		env.ReplyTo.Reply(ctx, messages.Completion{ProcessInstanceID: instance.ID})
		t.callback.Invoke(ctx, false)

		return nil
	}

	instance.Finish(t.env.Now())

	err = tx.SaveProcessInstance(ctx, instance)
	if err != nil {
		return fmt.Errorf("failed to save finished process instance: %w", err)
	}

	logger.InfoContext(ctx, "process instance finished")

	return tasks.AfterCommit(tx, "completion notifications", func(ctx context.Context) {
		env.ReplyTo.Reply(ctx, messages.Completion{ProcessInstanceID: instance.ID, Completed: true, Finalized: true})
		t.callback.Invoke(ctx, true)
		t.env.Publish(ctx, strconv.FormatInt(instance.ID, 10), events.NewProcessInstanceFinished(instance, t.env.WorkerID))
	})
}

// allSubjectsEnded reports whether every subject's current state is an END
// state. A subject without any state is not at an END state.
func (t *completionTask) allSubjectsEnded(ctx context.Context, tx persistence.Tx, instance *models.ProcessInstance) (bool, error) {
	pm, err := tx.ProcessModelByID(ctx, instance.ProcessModelID)
	if err != nil {
		return false, fmt.Errorf("failed to load process model: %w", err)
	}

	subjects, err := tx.SubjectsByProcessInstance(ctx, instance.ID)
	if err != nil {
		return false, fmt.Errorf("failed to load subjects: %w", err)
	}

	for _, subject := range subjects {
		current, err := tx.CurrentSubjectState(ctx, subject.ID)
		if persistence.IsNotFound(err) {
			return false, nil
		}

		if err != nil {
			return false, fmt.Errorf("failed to load state of subject %d: %w", subject.ID, err)
		}

		state, _, ok := pm.StateByID(current.StateID)
		if !ok || !state.IsEnd() {
			return false, nil
		}
	}

	return true, nil
}
