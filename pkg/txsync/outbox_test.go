package txsync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutbox_FlushRunsEffectsInOrder(t *testing.T) {
	t.Parallel()

	outbox := NewOutbox(nil)

	var order []int

	for i := range 3 {
		require.NoError(t, outbox.Stage(func(context.Context) { order = append(order, i) }))
	}

	assert.Empty(t, order, "effects must not run before flush")
	assert.Equal(t, 3, outbox.Len())

	outbox.Flush(t.Context())

	assert.Equal(t, []int{0, 1, 2}, order)
	assert.Equal(t, 0, outbox.Len())
}

func TestOutbox_DiscardDropsEffects(t *testing.T) {
	t.Parallel()

	outbox := NewOutbox(nil)
	ran := false

	require.NoError(t, outbox.Stage(func(context.Context) { ran = true }))

	assert.Equal(t, 1, outbox.Discard())

	outbox.Flush(t.Context())
	assert.False(t, ran)
}

func TestOutbox_StageAfterFinish(t *testing.T) {
	t.Parallel()

	flushed := NewOutbox(nil)
	flushed.Flush(t.Context())
	require.ErrorIs(t, flushed.Stage(func(context.Context) {}), ErrFinished)

	discarded := NewOutbox(nil)
	discarded.Discard()
	require.ErrorIs(t, discarded.Stage(func(context.Context) {}), ErrFinished)
}

func TestOutbox_FlushTwiceRunsOnce(t *testing.T) {
	t.Parallel()

	outbox := NewOutbox(nil)
	calls := 0

	require.NoError(t, outbox.Stage(func(context.Context) { calls++ }))

	outbox.Flush(t.Context())
	outbox.Flush(t.Context())

	assert.Equal(t, 1, calls)
}

func TestOutbox_PanickingEffectDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	outbox := NewOutbox(nil)
	after := false

	require.NoError(t, outbox.Stage(func(context.Context) { panic("boom") }))
	require.NoError(t, outbox.Stage(func(context.Context) { after = true }))

	assert.NotPanics(t, func() { outbox.Flush(t.Context()) })
	assert.True(t, after)
}

func TestOutbox_NilEffect(t *testing.T) {
	t.Parallel()

	require.Error(t, NewOutbox(nil).Stage(nil))
}
