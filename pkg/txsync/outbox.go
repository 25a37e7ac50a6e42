// Package txsync defers externally visible side effects until the enclosing
// transaction has durably committed.
//
// A unit of work stages effects while it runs. After the physical commit
// succeeded the owner calls Flush, which runs the effects in the order they
// were staged. On rollback the owner calls Discard and nothing runs.
package txsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrFinished is returned when an effect is staged on an outbox that was already flushed or discarded.
var ErrFinished = errors.New("transaction already finished")

// Effect is a post-commit action.
type Effect func(ctx context.Context)

type outboxState int

const (
	stateOpen outboxState = iota
	stateFlushed
	stateDiscarded
)

// Outbox is the deferred-action list attached to one transaction.
type Outbox struct {
	mu      sync.Mutex
	logger  *slog.Logger
	effects []Effect
	state   outboxState
}

// NewOutbox creates an empty, open outbox.
func NewOutbox(logger *slog.Logger) *Outbox {
	if logger == nil {
		logger = slog.Default()
	}

	return &Outbox{logger: logger}
}

// Stage registers an effect to run after commit.
func (o *Outbox) Stage(effect Effect) error {
	if effect == nil {
		return errors.New("effect cannot be nil")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != stateOpen {
		return ErrFinished
	}

	o.effects = append(o.effects, effect)

	return nil
}

// Len returns the number of staged effects.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return len(o.effects)
}

// Flush runs every staged effect in registration order. It must only be
// called once the transaction is durable. A panicking effect is logged and
// does not prevent the remaining effects from running.
func (o *Outbox) Flush(ctx context.Context) {
	o.mu.Lock()
	if o.state != stateOpen {
		o.mu.Unlock()

		return
	}

	o.state = stateFlushed
	effects := o.effects
	o.effects = nil
	o.mu.Unlock()

	for i, effect := range effects {
		o.run(ctx, i, effect)
	}
}

// Discard drops all staged effects without running them and returns how many were dropped.
func (o *Outbox) Discard() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != stateOpen {
		return 0
	}

	dropped := len(o.effects)
	o.state = stateDiscarded
	o.effects = nil

	return dropped
}

func (o *Outbox) run(ctx context.Context, index int, effect Effect) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.ErrorContext(ctx, "post-commit effect panicked", "index", index, "panic", fmt.Sprint(r))
		}
	}()

	effect(ctx)
}
