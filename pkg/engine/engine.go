// Package engine assembles the process engine: task factories, the dispatcher
// and the actor system that serializes messages per process and subject.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/sbpm/pkg/actor"
	"github.com/dukex/sbpm/pkg/dispatch"
	"github.com/dukex/sbpm/pkg/eventbus"
	"github.com/dukex/sbpm/pkg/eventlog"
	"github.com/dukex/sbpm/pkg/messages"
	"github.com/dukex/sbpm/pkg/models"
	"github.com/dukex/sbpm/pkg/persistence"
	"github.com/dukex/sbpm/pkg/tasks"
	"github.com/dukex/sbpm/pkg/tasks/process"
	"github.com/dukex/sbpm/pkg/tasks/subject"
	"go.opentelemetry.io/otel/trace"
)

// Callbacks observe durable task outcomes. Every field is optional.
type Callbacks struct {
	ProcessStarted    dispatch.Callback[*models.ProcessInstance]
	SubjectReady      dispatch.Callback[struct{}]
	SubjectAdvanced   dispatch.Callback[*models.SubjectState]
	CompletionChecked dispatch.Callback[bool]
}

// Options configures an Engine.
type Options struct {
	Publisher eventbus.EventPublisher
	Sink      eventlog.Sink
	Policy    eventlog.MessageTypePolicy
	Logger    *slog.Logger
	Tracer    trace.Tracer
	Clock     func() time.Time
	WorkerID  string
	Actors    actor.Config
	Callbacks Callbacks
}

// Engine runs process instances on top of a store.
type Engine struct {
	store    persistence.Persistence
	registry *dispatch.Registry
	system   *actor.System
	logger   *slog.Logger
}

// New builds an engine with the four task factories registered.
func New(ctx context.Context, store persistence.Persistence, opts Options) (*Engine, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		store:    store,
		registry: dispatch.NewRegistry(logger),
		logger:   logger.With("module", "engine"),
	}

	env := tasks.Env{
		Publisher: opts.Publisher,
		Sink:      opts.Sink,
		Policy:    opts.Policy,
		Teller:    e,
		Logger:    logger.With("module", "tasks"),
		Clock:     opts.Clock,
		WorkerID:  opts.WorkerID,
	}

	factories := []dispatch.TaskFactory{
		process.NewStartFactory(env, opts.Callbacks.ProcessStarted),
		subject.NewInitializeFactory(env, opts.Callbacks.SubjectReady),
		subject.NewAdvanceFactory(env, opts.Callbacks.SubjectAdvanced),
		process.NewCompletionFactory(env, opts.Callbacks.CompletionChecked),
	}

	for _, factory := range factories {
		err := e.registry.Register(factory)
		if err != nil {
			return nil, fmt.Errorf("failed to register task factory: %w", err)
		}
	}

	dispatcher := dispatch.NewDispatcher(e.registry, store, logger, opts.Tracer)
	e.system = actor.NewSystem(ctx, dispatcher, logger, opts.Actors)

	e.logger.InfoContext(ctx, "engine ready", "tasks", e.registry.FactoryIDs(), "worker_id", opts.WorkerID)

	return e, nil
}

// Tell hands env to the actor owning its message.
func (e *Engine) Tell(ctx context.Context, env messages.Envelope) error {
	return e.system.Tell(ctx, env)
}

// Ask sends msg and waits for its reply.
//
// nolint:ireturn // replies are a closed set of types
func (e *Engine) Ask(ctx context.Context, msg messages.Message) (messages.Reply, error) {
	return e.system.Ask(ctx, msg)
}

// StartProcess creates an instance of a released model. Subjects are
// initialized asynchronously after the reply.
func (e *Engine) StartProcess(ctx context.Context, processModelID int64, startUserID string) (messages.ProcessStarted, error) {
	return ask[messages.ProcessStarted](ctx, e, messages.StartProcess{ProcessModelID: processModelID, StartUserID: startUserID})
}

// InitializeSubject places a subject in its start state.
func (e *Engine) InitializeSubject(ctx context.Context, processInstanceID, subjectID int64) error {
	_, err := ask[messages.Ack](ctx, e, messages.InitializeSubject{ProcessInstanceID: processInstanceID, SubjectID: subjectID})

	return err
}

// AdvanceSubject moves a subject to one of the successors of its current state.
func (e *Engine) AdvanceSubject(ctx context.Context, processInstanceID, subjectID, toStateID int64) error {
	_, err := ask[messages.Ack](ctx, e, messages.AdvanceSubject{
		ProcessInstanceID: processInstanceID,
		SubjectID:         subjectID,
		ToStateID:         toStateID,
	})

	return err
}

// CheckCompletion finishes the instance when every subject reached an END state.
func (e *Engine) CheckCompletion(ctx context.Context, processInstanceID int64) (messages.Completion, error) {
	return ask[messages.Completion](ctx, e, messages.CheckCompletion{ProcessInstanceID: processInstanceID})
}

// Store returns the engine's store.
//
// nolint:ireturn // the store is configured by interface
func (e *Engine) Store() persistence.Persistence {
	return e.store
}

// ActiveActors returns the number of live actors.
func (e *Engine) ActiveActors() int {
	return e.system.ActiveActors()
}

// Shutdown stops the actor system.
func (e *Engine) Shutdown(ctx context.Context) error {
	return e.system.Shutdown(ctx)
}

func ask[T messages.Reply](ctx context.Context, e *Engine, msg messages.Message) (T, error) {
	var zero T

	reply, err := e.system.Ask(ctx, msg)
	if err != nil {
		return zero, err
	}

	typed, ok := reply.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected reply %T to %s", reply, msg.Kind())
	}

	return typed, nil
}
