package subject_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dukex/sbpm/pkg/dispatch"
	"github.com/dukex/sbpm/pkg/eventlog"
	"github.com/dukex/sbpm/pkg/log"
	"github.com/dukex/sbpm/pkg/messages"
	"github.com/dukex/sbpm/pkg/models"
	"github.com/dukex/sbpm/pkg/persistence/file"
	"github.com/dukex/sbpm/pkg/tasks"
	"github.com/dukex/sbpm/pkg/tasks/subject"
	"github.com/dukex/sbpm/pkg/testutil"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 2, 5, 7, 3, 0, 0, time.UTC)

type harness struct {
	store      *file.Persistence
	sink       *testutil.RecordingSink
	teller     *testutil.RecordingTeller
	dispatcher *dispatch.Dispatcher

	mu          sync.Mutex
	initialized int
	advanced    []*models.SubjectState
}

func newHarness(t *testing.T, policy eventlog.MessageTypePolicy) *harness {
	t.Helper()

	store, err := file.NewPersistence(t.TempDir(), log.Discard())
	require.NoError(t, err)

	h := &harness{
		store:  store,
		sink:   &testutil.RecordingSink{},
		teller: &testutil.RecordingTeller{},
	}

	env := tasks.Env{
		Sink:   h.sink,
		Policy: policy,
		Teller: h.teller,
		Logger: log.Discard(),
		Clock:  func() time.Time { return fixedNow },
	}

	registry := dispatch.NewRegistry(log.Discard())
	require.NoError(t, registry.Register(subject.NewInitializeFactory(env, func(context.Context, struct{}) {
		h.mu.Lock()
		defer h.mu.Unlock()

		h.initialized++
	})))
	require.NoError(t, registry.Register(subject.NewAdvanceFactory(env, func(_ context.Context, state *models.SubjectState) {
		h.mu.Lock()
		defer h.mu.Unlock()

		h.advanced = append(h.advanced, state)
	})))

	h.dispatcher = dispatch.NewDispatcher(registry, store, log.Discard(), nil)

	return h
}

// send dispatches msg and returns every reply the requester received.
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

	err := h.dispatcher.Dispatch(t.Context(), messages.NewEnvelope(msg, replier))

	mu.Lock()
	defer mu.Unlock()

	return replies, err
}

func (h *harness) initializedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.initialized
}

func (h *harness) advancedStates() []*models.SubjectState {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]*models.SubjectState(nil), h.advanced...)
}
