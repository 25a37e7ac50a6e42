package messages_test

import (
	"errors"
	"testing"

	"github.com/dukex/sbpm/pkg/messages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageAddresses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		message messages.Message
		kind    messages.Kind
		address messages.Address
	}{
		{
			name:    "start process goes to the model actor",
			message: messages.StartProcess{ProcessModelID: 3, StartUserID: "alice"},
			kind:    messages.KindStartProcess,
			address: "process-model/3",
		},
		{
			name:    "initialize goes to the subject actor",
			message: messages.InitializeSubject{ProcessInstanceID: 1, SubjectID: 7},
			kind:    messages.KindInitializeSubject,
			address: "subject/7",
		},
		{
			name:    "advance goes to the subject actor",
			message: messages.AdvanceSubject{ProcessInstanceID: 1, SubjectID: 7, ToStateID: 12},
			kind:    messages.KindAdvanceSubject,
			address: "subject/7",
		},
		{
			name:    "completion goes to the process actor",
			message: messages.CheckCompletion{ProcessInstanceID: 1},
			kind:    messages.KindCheckCompletion,
			address: "process/1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.kind, tt.message.Kind())
			assert.Equal(t, tt.address, tt.message.Address())
		})
	}
}

func TestParseAddress(t *testing.T) {
	t.Parallel()

	prefix, id, err := messages.ParseAddress(messages.ProcessModelAddress(42))
	require.NoError(t, err)
	assert.Equal(t, "process-model", prefix)
	assert.Equal(t, int64(42), id)

	_, _, err = messages.ParseAddress("process")
	require.Error(t, err)

	_, _, err = messages.ParseAddress("process/abc")
	require.Error(t, err)
}

func TestChanReplierKeepsFirstReply(t *testing.T) {
	t.Parallel()

	replier := messages.NewChanReplier()

	replier.Reply(t.Context(), messages.Ack{})
	replier.Reply(t.Context(), messages.Completion{Completed: true})

	assert.Equal(t, messages.Ack{}, <-replier.C())
	assert.Empty(t, replier.C())
}

func TestNewEnvelope(t *testing.T) {
	t.Parallel()

	env := messages.NewEnvelope(messages.CheckCompletion{ProcessInstanceID: 1}, nil)

	assert.NotEmpty(t, env.ID)
	assert.NotNil(t, env.ReplyTo)
	assert.False(t, env.ReceivedAt.IsZero())
	assert.NotPanics(t, func() { env.ReplyTo.Reply(t.Context(), messages.Ack{}) })
}

func TestFailureUnwraps(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	failure := messages.Failure{Err: cause}

	assert.ErrorIs(t, failure, cause)
	assert.Equal(t, "boom", failure.Error())
}
