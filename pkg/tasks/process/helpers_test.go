package process_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/sbpm/pkg/channels/gochannel"
	"github.com/dukex/sbpm/pkg/dispatch"
	"github.com/dukex/sbpm/pkg/eventbus"
	"github.com/dukex/sbpm/pkg/events"
	"github.com/dukex/sbpm/pkg/log"
	"github.com/dukex/sbpm/pkg/messages"
	"github.com/dukex/sbpm/pkg/models"
	"github.com/dukex/sbpm/pkg/persistence/file"
	"github.com/dukex/sbpm/pkg/tasks"
	"github.com/dukex/sbpm/pkg/tasks/process"
	"github.com/dukex/sbpm/pkg/testutil"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 2, 5, 7, 3, 0, 0, time.UTC)

type harness struct {
	store      *file.Persistence
	teller     *testutil.RecordingTeller
	dispatcher *dispatch.Dispatcher

	mu          sync.Mutex
	started     []*models.ProcessInstance
	completions []bool
	finished    []*events.ProcessInstanceFinished
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store, err := file.NewPersistence(t.TempDir(), log.Discard())
	require.NoError(t, err)

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, log.Discard())
	t.Cleanup(func() { _ = bus.Close() })

	h := &harness{store: store, teller: &testutil.RecordingTeller{}}

	require.NoError(t, bus.Handle(events.ProcessInstanceFinishedEvent, func(_ context.Context, event any) error {
		h.mu.Lock()
		defer h.mu.Unlock()

		h.finished = append(h.finished, event.(*events.ProcessInstanceFinished))

		return nil
	}))
	require.NoError(t, bus.Subscribe(t.Context()))

	env := tasks.Env{
		Publisher: bus,
		Teller:    h.teller,
		Logger:    log.Discard(),
		Clock:     func() time.Time { return fixedNow },
		WorkerID:  "test-worker",
	}

	registry := dispatch.NewRegistry(log.Discard())
	require.NoError(t, registry.Register(process.NewStartFactory(env, func(_ context.Context, instance *models.ProcessInstance) {
		h.mu.Lock()
		defer h.mu.Unlock()

		h.started = append(h.started, instance)
	})))
	require.NoError(t, registry.Register(process.NewCompletionFactory(env, func(_ context.Context, completed bool) {
		h.mu.Lock()
		defer h.mu.Unlock()

		h.completions = append(h.completions, completed)
	})))

	h.dispatcher = dispatch.NewDispatcher(registry, store, log.Discard(), nil)

	return h
}

func (h *harness) send(t *testing.T, msg messages.Message) ([]messages.Reply, error) {
	t.Helper()

	var (
		mu      sync.Mutex
		replies []messages.Reply
	)

	replier := messages.ReplierFunc(func(_ context.Context, reply messages.Reply) {
		mu.Lock()
		defer mu.Unlock()

		replies = append(replies, reply)
	})

	err := h.dispatcher.Dispatch(context.Background(), messages.NewEnvelope(msg, replier))

	mu.Lock()
	defer mu.Unlock()

	return replies, err
}

func (h *harness) completionResults() []bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]bool(nil), h.completions...)
}

func (h *harness) finishedEvents() []*events.ProcessInstanceFinished {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]*events.ProcessInstanceFinished(nil), h.finished...)
}
