package subject

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dukex/sbpm/pkg/dispatch"
	"github.com/dukex/sbpm/pkg/eventlog"
	"github.com/dukex/sbpm/pkg/events"
	"github.com/dukex/sbpm/pkg/messages"
	"github.com/dukex/sbpm/pkg/models"
	"github.com/dukex/sbpm/pkg/persistence"
	"github.com/dukex/sbpm/pkg/tasks"
)

// AdvanceTaskID identifies the transition factory.
const AdvanceTaskID = "subject.advance"

// AdvanceFactory creates tasks that move a subject along one transition.
type AdvanceFactory struct {
	env      tasks.Env
	callback dispatch.Callback[*models.SubjectState]
}

func NewAdvanceFactory(env tasks.Env, callback dispatch.Callback[*models.SubjectState]) *AdvanceFactory {
	return &AdvanceFactory{env: env.WithDefaults(), callback: callback}
}

func (f *AdvanceFactory) ID() string {
	return AdvanceTaskID
}

func (f *AdvanceFactory) CanHandle(msg messages.Message) bool {
	_, ok := msg.(messages.AdvanceSubject)

	return ok
}

// nolint:ireturn // factories hand out tasks by interface
func (f *AdvanceFactory) Create() dispatch.Task {
	return &advanceTask{env: f.env, callback: f.callback}
}

type advanceTask struct {
	env      tasks.Env
	callback dispatch.Callback[*models.SubjectState]
}

// Execute appends the target state. The instance is locked so a transition
// cannot interleave with the completion check of the same instance. Reaching
// an END state asks the process actor to check completion after commit.
func (t *advanceTask) Execute(ctx context.Context, tx persistence.Tx, env messages.Envelope) error {
	msg, err := tasks.MessageAs[messages.AdvanceSubject](env)
	if err != nil {
		return err
	}

	sc, err := loadScope(ctx, tx, msg.ProcessInstanceID, msg.SubjectID, true)
	if err != nil {
		return err
	}

	if sc.instance.IsFinished() {
		return fmt.Errorf("%w: %d", ErrProcessInstanceFinished, sc.instance.ID)
	}

	current, err := tx.CurrentSubjectState(ctx, sc.subject.ID)
	if err != nil {
		if persistence.IsNotFound(err) {
			return fmt.Errorf("%w: subject %d", ErrNotInitialized, sc.subject.ID)
		}

		return fmt.Errorf("failed to load subject state: %w", err)
	}

	from, ok := sc.subjectModel.StateByID(current.StateID)
	if !ok {
		return fmt.Errorf("subject model %d has no state %d: %w", sc.subjectModel.ID, current.StateID, persistence.ErrNotFound)
	}

	to, ok := sc.subjectModel.StateByID(msg.ToStateID)
	if !ok || !from.HasTransitionTo(to.ID) {
		return fmt.Errorf("%w: %q has no transition to state %d", ErrInvalidTransition, from.Name, msg.ToStateID)
	}

	now := t.env.Now()

	state := &models.SubjectState{
		SubjectID:         sc.subject.ID,
		ProcessInstanceID: sc.instance.ID,
		StateID:           to.ID,
		CreatedAt:         now,
	}

	err = tx.AppendSubjectState(ctx, state)
	if err != nil {
		return fmt.Errorf("failed to append subject state: %w", err)
	}

	record := eventlog.NewRecord(sc.model, sc.instance.ID, sc.subjectModel, to, now, t.env.Policy)

	t.env.Logger.InfoContext(ctx, "subject advanced",
		"process_instance_id", sc.instance.ID,
		"subject_id", sc.subject.ID,
		"from", from.Name,
		"to", to.Name)

	return tasks.AfterCommit(tx, "transition notifications", func(ctx context.Context) {
		eventlog.Deliver(ctx, t.env.Sink, t.env.Logger, record)
		t.env.Publish(ctx, strconv.FormatInt(sc.instance.ID, 10),
			events.NewSubjectStateChanged(state, from.ID, to.Name, t.env.WorkerID))

		env.ReplyTo.Reply(ctx, messages.Ack{})
		t.callback.Invoke(ctx, state)

		if to.IsEnd() {
			t.env.Tell(ctx, messages.CheckCompletion{ProcessInstanceID: sc.instance.ID})
		}
	})
}
