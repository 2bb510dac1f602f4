package state_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/activity"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/state"
	"github.com/aretw0/arbor/pkg/turn"
)

type discardSender struct{}

func (discardSender) Send(ctx context.Context, ref *activity.ConversationReference, a *activity.Activity) (*activity.ResourceResponse, error) {
	return &activity.ResourceResponse{ID: "sent"}, nil
}

func newTurn(conversationID string) *turn.Context {
	return turn.New(discardSender{}, &activity.Activity{
		Type:         activity.TypeMessage,
		ChannelID:    "test",
		Text:         "hello",
		Conversation: &activity.ConversationAccount{ID: conversationID},
		From:         &activity.ChannelAccount{ID: "user-1"},
	})
}

type profile struct {
	Name  string `json:"name" mapstructure:"name"`
	Age   int    `json:"age" mapstructure:"age"`
	Tags  []string
	Inner map[string]any `json:"inner" mapstructure:"inner"`
}

func TestStoreKeys(t *testing.T) {
	store := memory.NewStore()

	t.Run("conversation state requires a conversation", func(t *testing.T) {
		cs := state.NewConversationState(store)
		tc := turn.New(discardSender{}, &activity.Activity{Type: activity.TypeMessage, ChannelID: "test"})
		err := cs.Load(context.Background(), tc, false)
		assert.ErrorIs(t, err, state.ErrBadReference)
	})

	t.Run("user state requires a sender", func(t *testing.T) {
		us := state.NewUserState(store)
		tc := turn.New(discardSender{}, &activity.Activity{
			Type:         activity.TypeMessage,
			ChannelID:    "test",
			Conversation: &activity.ConversationAccount{ID: "c1"},
		})
		err := us.Load(context.Background(), tc, false)
		assert.ErrorIs(t, err, state.ErrBadReference)
	})
}

func TestPropertyRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	cs := state.NewConversationState(store)
	prop := state.NewProperty[*profile](cs, "profile")

	// Turn 1: write and save.
	t1 := newTurn("conv-1")
	require.NoError(t, prop.Set(ctx, t1, &profile{Name: "Ada", Age: 36, Inner: map[string]any{"k": "v"}}))
	require.NoError(t, cs.Save(ctx, t1, false))
	assert.Equal(t, 1, store.Len())

	// Turn 2: fresh context, value comes back typed from the JSON form.
	t2 := newTurn("conv-1")
	got, err := prop.Get(ctx, t2)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ada", got.Name)
	assert.Equal(t, 36, got.Age)
	assert.Equal(t, "v", got.Inner["k"])

	// Mutations through the pointer persist without an explicit Set.
	got.Age = 37
	require.NoError(t, cs.Save(ctx, t2, false))

	t3 := newTurn("conv-1")
	again, err := prop.Get(ctx, t3)
	require.NoError(t, err)
	assert.Equal(t, 37, again.Age)
}

func TestPropertyDefaults(t *testing.T) {
	ctx := context.Background()
	cs := state.NewConversationState(memory.NewStore())
	prop := state.NewProperty[*profile](cs, "profile")
	tc := newTurn("conv-1")

	missing, err := prop.Get(ctx, tc)
	require.NoError(t, err)
	assert.Nil(t, missing)

	built, err := prop.GetWithDefault(ctx, tc, func() *profile { return &profile{Name: "fresh"} })
	require.NoError(t, err)
	assert.Equal(t, "fresh", built.Name)

	// The default was anchored: the same value comes back.
	same, err := prop.Get(ctx, tc)
	require.NoError(t, err)
	assert.Same(t, built, same)
}

func TestSaveSkipsUnchanged(t *testing.T) {
	ctx := context.Background()
	backing := memory.NewStore()
	counting := &countingStorage{Store: backing}
	cs := state.NewConversationState(counting)
	prop := state.NewProperty[string](cs, "greeting")

	tc := newTurn("conv-1")
	require.NoError(t, prop.Set(ctx, tc, "hello"))
	require.NoError(t, cs.Save(ctx, tc, false))
	assert.Equal(t, 1, counting.writes)

	// Nothing changed since the last save.
	require.NoError(t, cs.Save(ctx, tc, false))
	assert.Equal(t, 1, counting.writes)

	// Force writes regardless.
	require.NoError(t, cs.Save(ctx, tc, true))
	assert.Equal(t, 2, counting.writes)

	// A change makes the next save write.
	require.NoError(t, prop.Set(ctx, tc, "changed"))
	require.NoError(t, cs.Save(ctx, tc, false))
	assert.Equal(t, 3, counting.writes)
}

func TestSaveWithoutLoadIsNoop(t *testing.T) {
	ctx := context.Background()
	backing := memory.NewStore()
	counting := &countingStorage{Store: backing}
	cs := state.NewConversationState(counting)

	require.NoError(t, cs.Save(ctx, newTurn("conv-1"), true))
	assert.Equal(t, 0, counting.writes)
}

func TestClearAndDelete(t *testing.T) {
	ctx := context.Background()
	backing := memory.NewStore()
	cs := state.NewConversationState(backing)
	prop := state.NewProperty[string](cs, "greeting")

	t1 := newTurn("conv-1")
	require.NoError(t, prop.Set(ctx, t1, "hello"))
	require.NoError(t, cs.Save(ctx, t1, false))

	t.Run("clear empties on next save", func(t *testing.T) {
		t2 := newTurn("conv-1")
		require.NoError(t, cs.Load(ctx, t2, false))
		require.NoError(t, cs.Clear(ctx, t2))
		require.NoError(t, cs.Save(ctx, t2, false))

		t3 := newTurn("conv-1")
		got, err := prop.Get(ctx, t3)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("delete removes the record", func(t *testing.T) {
		t4 := newTurn("conv-1")
		require.NoError(t, prop.Set(ctx, t4, "back"))
		require.NoError(t, cs.Save(ctx, t4, false))
		require.NoError(t, cs.Delete(ctx, t4))
		assert.Equal(t, 0, backing.Len())
	})
}

func TestStoresAreIsolatedByConversation(t *testing.T) {
	ctx := context.Background()
	cs := state.NewConversationState(memory.NewStore())
	prop := state.NewProperty[string](cs, "v")

	a := newTurn("conv-a")
	b := newTurn("conv-b")
	require.NoError(t, prop.Set(ctx, a, "from-a"))
	require.NoError(t, cs.Save(ctx, a, false))

	got, err := prop.Get(ctx, b)
	require.NoError(t, err)
	assert.Empty(t, got)
}

// countingStorage wraps a Storage and counts writes.
type countingStorage struct {
	*memory.Store
	writes int
}

func (c *countingStorage) Write(ctx context.Context, changes map[string]map[string]any) error {
	c.writes++
	return c.Store.Write(ctx, changes)
}
