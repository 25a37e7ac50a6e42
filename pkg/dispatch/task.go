// Package dispatch routes messages to exactly one task and runs it inside a
// transaction whose notifications are only delivered after commit.
package dispatch

import (
	"context"

	"github.com/dukex/sbpm/pkg/messages"
	"github.com/dukex/sbpm/pkg/persistence"
)

// Task is a fresh, single-use unit of work for one message.
type Task interface {
	// Execute mutates state through tx and registers its notifications with
	// tx.AfterCommit. A returned error rolls the transaction back.
	Execute(ctx context.Context, tx persistence.Tx, env messages.Envelope) error
}

// TaskFactory creates tasks for the messages it accepts.
type TaskFactory interface {
	ID() string
	CanHandle(msg messages.Message) bool
	Create() Task
}

// Callback is invoked once by a task after its state change is durable. It is
// never invoked when the task fails.
type Callback[T any] func(ctx context.Context, result T)

// Invoke calls the callback when it is set.
func (c Callback[T]) Invoke(ctx context.Context, result T) {
	if c != nil {
		c(ctx, result)
	}
}
