// Package actor runs one goroutine per address with a bounded mailbox, so
// messages for the same process instance or subject are handled strictly one
// at a time while different addresses progress independently.
package actor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/sbpm/pkg/messages"
	"go.opentelemetry.io/otel/trace"
)

// ErrSystemStopped is returned for messages told after Shutdown began, and
// replied to messages still queued when it did.
var ErrSystemStopped = errors.New("actor system stopped")

const (
	DefaultMailboxSize = 64
	DefaultIdleTimeout = time.Minute

	drainPollInterval = 10 * time.Millisecond
)

// Handler processes one envelope on the owning actor's goroutine.
type Handler interface {
	Dispatch(ctx context.Context, env messages.Envelope) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, env messages.Envelope) error

func (f HandlerFunc) Dispatch(ctx context.Context, env messages.Envelope) error {
	return f(ctx, env)
}

// Config tunes the actor system.
type Config struct {
	MailboxSize int
	IdleTimeout time.Duration
}

type delivery struct {
	env  messages.Envelope
	span trace.SpanContext
}

type actor struct {
	address messages.Address
	mailbox chan delivery
	// pending counts messages reserved or queued but not yet processed. Guarded by System.mu.
	pending int
}

// System owns the actors.
type System struct {
	handler Handler
	logger  *slog.Logger
	config  Config

	baseCtx  context.Context
	cancel   context.CancelFunc
	stopping chan struct{}

	mu      sync.Mutex
	actors  map[messages.Address]*actor
	stopped bool
	wg      sync.WaitGroup
}

// NewSystem creates a running actor system. Messages are processed with a
// context derived from ctx, independent of the context of the sender.
func NewSystem(ctx context.Context, handler Handler, logger *slog.Logger, config Config) *System {
	if config.MailboxSize <= 0 {
		config.MailboxSize = DefaultMailboxSize
	}

	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}

	baseCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	return &System{
		handler:  handler,
		logger:   logger.With("module", "actor_system"),
		config:   config,
		baseCtx:  baseCtx,
		cancel:   cancel,
		stopping: make(chan struct{}),
		actors:   make(map[messages.Address]*actor),
	}
}

// Tell enqueues env on the mailbox of the actor owning its message, creating
// the actor when needed. It blocks only while that mailbox is full.
func (s *System) Tell(ctx context.Context, env messages.Envelope) error {
	if env.Message == nil {
		return errors.New("envelope has no message")
	}

	if env.ReplyTo == nil {
		env.ReplyTo = messages.NoReply
	}

	address := env.Message.Address()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()

		return ErrSystemStopped
	}

	a := s.actorFor(address)
	a.pending++
	s.mu.Unlock()

	d := delivery{env: env, span: trace.SpanContextFromContext(ctx)}

	select {
	case a.mailbox <- d:
		return nil
	case <-ctx.Done():
		s.release(a)

		return fmt.Errorf("failed to enqueue %s for %s: %w", env.Message.Kind(), address, ctx.Err())
	case <-s.stopping:
		s.release(a)

		return ErrSystemStopped
	}
}

// Ask tells msg and waits for its reply. A Failure reply is returned as an
// error. Giving up on the reply does not cancel the message.
//
// nolint:ireturn // replies are a closed set of types
func (s *System) Ask(ctx context.Context, msg messages.Message) (messages.Reply, error) {
	replier := messages.NewChanReplier()

	err := s.Tell(ctx, messages.NewEnvelope(msg, replier))
	if err != nil {
		return nil, err
	}

	select {
	case reply := <-replier.C():
		if failure, ok := reply.(messages.Failure); ok {
			return nil, failure.Err
		}

		return reply, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for reply to %s: %w", msg.Kind(), ctx.Err())
	}
}

// ActiveActors returns the number of live actors.
func (s *System) ActiveActors() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.actors)
}

// Shutdown stops accepting messages, lets every actor finish the message it
// is processing and answers queued messages with ErrSystemStopped.
func (s *System) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()

		return nil
	}

	s.stopped = true
	close(s.stopping)
	s.mu.Unlock()

	done := make(chan struct{})

	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		s.logger.InfoContext(ctx, "actor system stopped")

		return nil
	case <-ctx.Done():
		s.cancel()

		return fmt.Errorf("failed to stop actor system: %w", ctx.Err())
	}
}

// actorFor returns the live actor for address, spawning it when needed. Callers hold s.mu.
func (s *System) actorFor(address messages.Address) *actor {
	if a, ok := s.actors[address]; ok {
		return a
	}

	a := &actor{
		address: address,
		mailbox: make(chan delivery, s.config.MailboxSize),
	}

	s.actors[address] = a
	s.wg.Add(1)

	go s.run(a)

	s.logger.Debug("actor started", "address", address)

	return a
}

func (s *System) release(a *actor) {
	s.mu.Lock()
	a.pending--
	s.mu.Unlock()
}

func (s *System) run(a *actor) {
	defer s.wg.Done()

	idle := time.NewTimer(s.config.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case d := <-a.mailbox:
			s.process(a, d)
			s.release(a)

			idle.Reset(s.config.IdleTimeout)
		case <-idle.C:
			if s.passivate(a) {
				return
			}

			idle.Reset(s.config.IdleTimeout)
		case <-s.stopping:
			s.drain(a)

			return
		}
	}
}

// passivate removes an actor that has nothing pending.
func (s *System) passivate(a *actor) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.pending > 0 {
		return false
	}

	delete(s.actors, a.address)
	s.logger.Debug("actor passivated", "address", a.address)

	return true
}

// drain answers every message still reserved for the actor once the system is stopping.
func (s *System) drain(a *actor) {
	for {
		s.mu.Lock()
		if a.pending == 0 {
			delete(s.actors, a.address)
			s.mu.Unlock()

			return
		}
		s.mu.Unlock()

		select {
		case d := <-a.mailbox:
			d.env.ReplyTo.Reply(s.baseCtx, messages.Failure{Err: ErrSystemStopped})
			s.release(a)
		case <-time.After(drainPollInterval):
		}
	}
}

func (s *System) process(a *actor, d delivery) {
	ctx := s.baseCtx
	if d.span.IsValid() {
		ctx = trace.ContextWithRemoteSpanContext(ctx, d.span)
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "actor recovered from panic", "address", a.address, "panic", fmt.Sprint(r))
			d.env.ReplyTo.Reply(ctx, messages.Failure{Err: fmt.Errorf("handler panicked: %v", r)})
		}
	}()

	err := s.handler.Dispatch(ctx, d.env)
	if err != nil {
		s.logger.DebugContext(ctx, "message handling failed", "address", a.address, "kind", d.env.Message.Kind(), "error", err)
	}
}
