package subject

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/dukex/sbpm/pkg/dispatch"
	"github.com/dukex/sbpm/pkg/eventlog"
	"github.com/dukex/sbpm/pkg/events"
	"github.com/dukex/sbpm/pkg/messages"
	"github.com/dukex/sbpm/pkg/models"
	"github.com/dukex/sbpm/pkg/persistence"
	"github.com/dukex/sbpm/pkg/tasks"
)

// InitializeTaskID identifies the initialization factory.
const InitializeTaskID = "subject.initialize"

// InitializeFactory creates tasks that place a subject in its start state.
type InitializeFactory struct {
	env      tasks.Env
	callback dispatch.Callback[struct{}]
}

func NewInitializeFactory(env tasks.Env, callback dispatch.Callback[struct{}]) *InitializeFactory {
	return &InitializeFactory{env: env.WithDefaults(), callback: callback}
}

func (f *InitializeFactory) ID() string {
	return InitializeTaskID
}

func (f *InitializeFactory) CanHandle(msg messages.Message) bool {
	_, ok := msg.(messages.InitializeSubject)

	return ok
}

// nolint:ireturn // factories hand out tasks by interface
func (f *InitializeFactory) Create() dispatch.Task {
	return &initializeTask{env: f.env, callback: f.callback}
}

type initializeTask struct {
	env      tasks.Env
	callback dispatch.Callback[struct{}]
}

// Execute appends the start state of an INTERNAL subject and stages its
// event-log record. EXTERNAL subjects and subjects that already have a state
// are acknowledged without a write.
func (t *initializeTask) Execute(ctx context.Context, tx persistence.Tx, env messages.Envelope) error {
	msg, err := tasks.MessageAs[messages.InitializeSubject](env)
	if err != nil {
		return err
	}

	logger := t.env.Logger.With("process_instance_id", msg.ProcessInstanceID, "subject_id", msg.SubjectID)

	sc, err := loadScope(ctx, tx, msg.ProcessInstanceID, msg.SubjectID, false)
	if err != nil {
		return err
	}

	switch {
	case !sc.subjectModel.IsInternal():
		logger.InfoContext(ctx, "skipping initialization of external subject", "subject_model", sc.subjectModel.Name)
	default:
		err = t.enterStartState(ctx, tx, sc, logger)
		if err != nil {
			return err
		}
	}

	return tasks.AfterCommit(tx, "initialization reply", func(ctx context.Context) {
		env.ReplyTo.Reply(ctx, messages.Ack{})
		t.callback.Invoke(ctx, struct{}{})
	})
}

func (t *initializeTask) enterStartState(ctx context.Context, tx persistence.Tx, sc *scope, logger *slog.Logger) error {
	current, err := tx.CurrentSubjectState(ctx, sc.subject.ID)

	switch {
	case err == nil:
		logger.InfoContext(ctx, "subject already initialized", "state_id", current.StateID)

		return nil
	case !persistence.IsNotFound(err):
		return fmt.Errorf("failed to load subject state: %w", err)
	}

	start, err := sc.subjectModel.StartState()
	if err != nil {
		return err
	}

	now := t.env.Now()

	state := &models.SubjectState{
		SubjectID:         sc.subject.ID,
		ProcessInstanceID: sc.instance.ID,
		StateID:           start.ID,
		CreatedAt:         now,
	}

	err = tx.AppendSubjectState(ctx, state)
	if err != nil {
		return fmt.Errorf("failed to append start state: %w", err)
	}

	record := eventlog.NewRecord(sc.model, sc.instance.ID, sc.subjectModel, start, now, t.env.Policy)

	logger.InfoContext(ctx, "subject initialized", "state", start.Name, "message_type", record.MessageType)

	return tasks.AfterCommit(tx, "initialization notifications", func(ctx context.Context) {
		eventlog.Deliver(ctx, t.env.Sink, t.env.Logger, record)
		t.env.Publish(ctx, strconv.FormatInt(sc.instance.ID, 10),
			events.NewSubjectStateChanged(state, 0, start.Name, t.env.WorkerID))
	})
}
