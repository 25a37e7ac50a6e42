// Package tasks holds the collaborators shared by the engine's task factories.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/sbpm/pkg/eventbus"
	"github.com/dukex/sbpm/pkg/eventlog"
	"github.com/dukex/sbpm/pkg/messages"
	"github.com/dukex/sbpm/pkg/persistence"
	"github.com/dukex/sbpm/pkg/txsync"
)

// Env carries the dependencies of a task. Publisher and Teller are optional.
type Env struct {
	Publisher eventbus.EventPublisher
	Sink      eventlog.Sink
	Policy    eventlog.MessageTypePolicy
	Teller    messages.Teller
	Logger    *slog.Logger
	Clock     func() time.Time
	WorkerID  string
}

// WithDefaults fills unset optional fields.
func (e Env) WithDefaults() Env {
	if e.Sink == nil {
		e.Sink = eventlog.Discard
	}

	if e.Policy == nil {
		e.Policy = eventlog.JoinAll
	}

	if e.Logger == nil {
		e.Logger = slog.Default()
	}

	if e.Clock == nil {
		e.Clock = time.Now
	}

	return e
}

// Now returns the current time in UTC.
func (e Env) Now() time.Time {
	return e.Clock().UTC()
}

// Publish sends an event on the bus, logging a failure. Publishing is a
// notification and never fails the task that staged it.
func (e Env) Publish(ctx context.Context, key string, event eventbus.Event) {
	if e.Publisher == nil {
		return
	}

	err := e.Publisher.Publish(ctx, key, event)
	if err != nil {
		e.Logger.ErrorContext(ctx, "failed to publish event", "event_type", event.GetType(), "key", key, "error", err)
	}
}

// Tell sends a fire-and-forget message to another actor, logging a failure.
func (e Env) Tell(ctx context.Context, msg messages.Message) {
	if e.Teller == nil {
		e.Logger.WarnContext(ctx, "no teller configured, dropping message", "kind", msg.Kind(), "address", msg.Address())

		return
	}

	err := e.Teller.Tell(ctx, messages.NewEnvelope(msg, messages.NoReply))
	if err != nil {
		e.Logger.ErrorContext(ctx, "failed to tell message", "kind", msg.Kind(), "address", msg.Address(), "error", err)
	}
}

// AfterCommit stages effect on tx, adding the step that failed to the error.
func AfterCommit(tx persistence.Tx, step string, effect txsync.Effect) error {
	err := tx.AfterCommit(effect)
	if err != nil {
		return fmt.Errorf("failed to stage %s: %w", step, err)
	}

	return nil
}

// MessageAs extracts the typed message of an envelope.
func MessageAs[T messages.Message](env messages.Envelope) (T, error) {
	msg, ok := env.Message.(T)
	if !ok {
		var zero T

		return zero, fmt.Errorf("unexpected message %T, want %T", env.Message, zero)
	}

	return msg, nil
}
