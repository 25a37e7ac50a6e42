package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/sbpm/pkg/messages"
	"github.com/dukex/sbpm/pkg/otelhelper"
	"github.com/dukex/sbpm/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Dispatcher runs the task selected for a message inside a READ COMMITTED transaction.
type Dispatcher struct {
	registry *Registry
	store    persistence.Persistence
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewDispatcher(registry *Registry, store persistence.Persistence, logger *slog.Logger, tracer trace.Tracer) *Dispatcher {
	if tracer == nil {
		tracer = otelhelper.NoopTracer()
	}

	return &Dispatcher{
		registry: registry,
		store:    store,
		logger:   logger.With("module", "dispatcher"),
		tracer:   tracer,
	}
}

// Dispatch handles one envelope. The requester receives exactly one reply:
// the task's own reply after commit, or a Failure when routing, execution or
// commit fails. The returned error mirrors that Failure.
func (d *Dispatcher) Dispatch(ctx context.Context, env messages.Envelope) error {
	msg := env.Message
	replier := newOnceReplier(env.ReplyTo, d.logger)
	env.ReplyTo = replier

	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "dispatch "+string(msg.Kind()),
		attribute.String(otelhelper.MessageKindKey, string(msg.Kind())),
		attribute.String(otelhelper.MessageIDKey, env.ID),
		attribute.String(otelhelper.AddressKey, string(msg.Address())),
	)
	defer span.End()

	logger := d.logger.With("kind", msg.Kind(), "address", msg.Address(), "message_id", env.ID)

	factory, err := d.registry.Route(msg)
	if err != nil {
		logger.ErrorContext(ctx, "failed to route message", "error", err)
		otelhelper.SetError(span, err)
		replier.Reply(ctx, messages.Failure{Err: err})

		return err
	}

	span.SetAttributes(attribute.String(otelhelper.TaskIDKey, factory.ID()))

	err = d.execute(ctx, factory, env)
	if err != nil {
		execErr := &ExecutionError{TaskID: factory.ID(), Kind: msg.Kind(), Err: err}

		logger.ErrorContext(ctx, "task failed", "task", factory.ID(), "error", err)
		otelhelper.SetError(span, execErr)
		replier.Reply(ctx, messages.Failure{Err: execErr})

		return execErr
	}

	if !replier.replied() {
		logger.DebugContext(ctx, "task completed without replying", "task", factory.ID())
	}

	return nil
}

func (d *Dispatcher) execute(ctx context.Context, factory TaskFactory, env messages.Envelope) (err error) {
	tx, err := d.store.BeginTx(ctx)
	if err != nil {
		return err
	}

	// Rollback is a no-op once Commit ran, so every other exit releases the
	// transaction and the locks it holds.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}

		rollbackErr := tx.Rollback(ctx)
		if rollbackErr != nil {
			d.logger.ErrorContext(ctx, "failed to roll back transaction", "error", rollbackErr)
		}
	}()

	err = factory.Create().Execute(ctx, tx, env)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}
