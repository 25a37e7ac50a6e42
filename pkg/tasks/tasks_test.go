package tasks_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukex/sbpm/pkg/events"
	"github.com/dukex/sbpm/pkg/log"
	"github.com/dukex/sbpm/pkg/messages"
	"github.com/dukex/sbpm/pkg/mocks"
	"github.com/dukex/sbpm/pkg/models"
	"github.com/dukex/sbpm/pkg/persistence/file"
	"github.com/dukex/sbpm/pkg/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestEnv_WithDefaults(t *testing.T) {
	env := tasks.Env{}.WithDefaults()

	assert.NotNil(t, env.Sink)
	assert.NotNil(t, env.Policy)
	assert.NotNil(t, env.Logger)
	assert.NotNil(t, env.Clock)
	assert.Equal(t, time.UTC, env.Now().Location())
}

func TestEnv_PublishLogsFailures(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "5", mock.Anything).Return(errors.New("broker down")).Once()

	env := tasks.Env{Publisher: bus, Logger: log.Discard()}.WithDefaults()

	instance := &models.ProcessInstance{ID: 5, State: models.ProcessInstanceStateFinished}
	env.Publish(t.Context(), "5", events.NewProcessInstanceFinished(instance, "w"))

	bus.AssertExpectations(t)

	assert.NotPanics(t, func() {
		tasks.Env{}.WithDefaults().Publish(t.Context(), "5", events.NewProcessInstanceFinished(instance, "w"))
	})
}

func TestEnv_TellUsesNoReply(t *testing.T) {
	teller := &mocks.MockTeller{}
	teller.On("Tell", mock.Anything, mock.MatchedBy(func(env messages.Envelope) bool {
		msg, ok := env.Message.(messages.CheckCompletion)

		return ok && msg.ProcessInstanceID == 9 && env.ReplyTo != nil
	})).Return(nil).Once()

	env := tasks.Env{Teller: teller, Logger: log.Discard()}.WithDefaults()
	env.Tell(t.Context(), messages.CheckCompletion{ProcessInstanceID: 9})

	teller.AssertExpectations(t)
}

func TestMessageAs(t *testing.T) {
	env := messages.NewEnvelope(messages.CheckCompletion{ProcessInstanceID: 3}, nil)

	msg, err := tasks.MessageAs[messages.CheckCompletion](env)
	require.NoError(t, err)
	assert.Equal(t, int64(3), msg.ProcessInstanceID)

	_, err = tasks.MessageAs[messages.StartProcess](env)
	require.Error(t, err)
}

func TestAfterCommit_NamesTheStep(t *testing.T) {
	store, err := file.NewPersistence(t.TempDir(), log.Discard())
	require.NoError(t, err)

	tx, err := store.BeginTx(t.Context())
	require.NoError(t, err)

	ran := false
	require.NoError(t, tasks.AfterCommit(tx, "reply", func(_ context.Context) { ran = true }))
	require.NoError(t, tx.Commit(t.Context()))
	assert.True(t, ran)

	err = tasks.AfterCommit(tx, "reply", func(context.Context) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to stage reply")
}
