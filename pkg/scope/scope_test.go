package scope_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/activity"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/dialog"
	"github.com/aretw0/arbor/pkg/scope"
	"github.com/aretw0/arbor/pkg/state"
	"github.com/aretw0/arbor/pkg/turn"
)

type discardSender struct{}

func (discardSender) Send(ctx context.Context, ref *activity.ConversationReference, a *activity.Activity) (*activity.ResourceResponse, error) {
	return &activity.ResourceResponse{ID: "r1"}, nil
}

// budgetField resolves against the active frame's state at read time.
type budgetField struct{}

func (budgetField) Evaluate(dc *dialog.Context) (any, error) {
	inst := dc.ActiveInstance()
	if inst == nil || inst.State == nil {
		return 0, nil
	}
	return inst.State["budget"], nil
}

// surveyDialog exposes configuration fields for class snapshots.
type surveyDialog struct {
	dialog.Base
	Steps     int
	Greeting  string
	MaxBudget budgetField
	OnFinish  func()
}

func newSurveyDialog(id string) *surveyDialog {
	return &surveyDialog{Base: dialog.NewBase(id), Steps: 3, Greeting: "welcome"}
}

func (d *surveyDialog) Begin(ctx context.Context, dc *dialog.Context, options any) (dialog.TurnResult, error) {
	inst := dc.ActiveInstance()
	if inst.State == nil {
		inst.State = make(map[string]any)
	}
	inst.State["budget"] = 250
	return dialog.EndOfTurn, nil
}

// askDialog waits for one reply.
type askDialog struct {
	dialog.Base
}

func newAskDialog(id string) *askDialog {
	return &askDialog{Base: dialog.NewBase(id)}
}

func (d *askDialog) Begin(ctx context.Context, dc *dialog.Context, options any) (dialog.TurnResult, error) {
	return dialog.EndOfTurn, nil
}

// newStack builds a dialog context over fresh in-memory state.
func newStack(t *testing.T, dialogs ...dialog.Dialog) *dialog.Context {
	t.Helper()
	storage := memory.NewStore()
	conv := state.NewConversationState(storage)
	prop := state.NewProperty[*dialog.State](conv, "dialogState")
	set := dialog.NewSet(prop)
	for _, d := range dialogs {
		set.Add(d)
	}

	inbound := activity.NewMessage("hi")
	inbound.ChannelID = "test"
	inbound.Conversation = &activity.ConversationAccount{ID: "conv-1"}
	inbound.From = &activity.ChannelAccount{ID: "user-1"}
	tc := turn.New(discardSender{}, inbound)

	dc, err := set.CreateContext(context.Background(), tc)
	require.NoError(t, err)
	return dc
}

func TestThisScope(t *testing.T) {
	ctx := context.Background()

	t.Run("empty stack reads as empty", func(t *testing.T) {
		dc := newStack(t)
		rec, err := scope.This{}.Get(dc)
		require.NoError(t, err)
		assert.Empty(t, rec)
	})

	t.Run("reads and writes the active frame", func(t *testing.T) {
		dc := newStack(t, newAskDialog("ask"))
		_, err := dc.Begin(ctx, "ask", nil)
		require.NoError(t, err)

		rec, err := scope.This{}.Get(dc)
		require.NoError(t, err)
		rec["answer"] = 42
		assert.Equal(t, 42, dc.ActiveInstance().State["answer"], "the record is live")

		require.NoError(t, scope.This{}.Set(dc, map[string]any{"fresh": true}))
		assert.Equal(t, map[string]any{"fresh": true}, dc.ActiveInstance().State)
	})

	t.Run("set requires a frame and a value", func(t *testing.T) {
		dc := newStack(t)
		err := scope.This{}.Set(dc, map[string]any{})
		require.ErrorIs(t, err, dialog.ErrNoActiveDialog)

		dc = newStack(t, newAskDialog("ask"))
		_, err = dc.Begin(ctx, "ask", nil)
		require.NoError(t, err)
		require.ErrorIs(t, scope.This{}.Set(dc, nil), scope.ErrNilValue)
	})
}

func TestTurnScope(t *testing.T) {
	dc := newStack(t)

	rec, err := scope.Turn{}.Get(dc)
	require.NoError(t, err)
	assert.Empty(t, rec)
	rec["seen"] = true

	again, err := scope.Turn{}.Get(dc)
	require.NoError(t, err)
	assert.Equal(t, true, again["seen"], "same record within the turn")

	require.NoError(t, scope.Turn{}.Set(dc, map[string]any{"replaced": 1}))
	assert.Equal(t, map[string]any{"replaced": 1}, rec, "replacement is in place")
}

func TestClassScope(t *testing.T) {
	ctx := context.Background()
	dc := newStack(t, newSurveyDialog("survey"))
	_, err := dc.Begin(ctx, "survey", nil)
	require.NoError(t, err)

	rec, err := scope.Class{}.Get(dc)
	require.NoError(t, err)
	assert.Equal(t, 3, rec["steps"])
	assert.Equal(t, "welcome", rec["greeting"])
	assert.Equal(t, 250, rec["maxBudget"], "evaluator fields resolve against state")
	assert.NotContains(t, rec, "onFinish", "func fields are not part of the snapshot")

	require.ErrorIs(t, scope.Class{}.Set(dc, map[string]any{}), scope.ErrReadOnly)

	t.Run("empty stack snapshots as empty", func(t *testing.T) {
		dc := newStack(t)
		rec, err := scope.Class{}.Get(dc)
		require.NoError(t, err)
		assert.Empty(t, rec)
	})
}

// wizardComponent is a container with its own exported configuration.
type wizardComponent struct {
	*dialog.Component
	Flavor string
}

func TestDialogClassScope(t *testing.T) {
	ctx := context.Background()

	comp := &wizardComponent{
		Component: dialog.NewComponent("wizard").AddDialog(newAskDialog("inner")),
		Flavor:    "guided",
	}
	dc := newStack(t, comp)
	_, err := dc.Begin(ctx, "wizard", nil)
	require.NoError(t, err)

	child, err := dc.Child()
	require.NoError(t, err)
	require.NotNil(t, child)
	require.NotNil(t, child.ActiveInstance())
	assert.Equal(t, "inner", child.ActiveInstance().ID)

	rec, err := scope.DialogClass{}.Get(child)
	require.NoError(t, err)
	assert.Equal(t, "guided", rec["flavor"], "the child sees its container's configuration")

	t.Run("class at the child sees the child dialog", func(t *testing.T) {
		rec, err := scope.Class{}.Get(child)
		require.NoError(t, err)
		assert.NotContains(t, rec, "flavor")
	})

	t.Run("at the root it degrades to class", func(t *testing.T) {
		viaDialogClass, err := scope.DialogClass{}.Get(dc)
		require.NoError(t, err)
		viaClass, err := scope.Class{}.Get(dc)
		require.NoError(t, err)
		assert.Equal(t, viaClass, viaDialogClass)
	})
}

func TestDialogContextScope(t *testing.T) {
	ctx := context.Background()

	comp := dialog.NewComponent("wizard").AddDialog(newAskDialog("inner"))
	dc := newStack(t, comp)
	_, err := dc.Begin(ctx, "wizard", nil)
	require.NoError(t, err)

	child, err := dc.Child()
	require.NoError(t, err)
	require.NotNil(t, child)

	rec, err := scope.DialogContext{}.Get(child)
	require.NoError(t, err)
	assert.Equal(t, []string{"inner", "wizard"}, rec["stack"])
	assert.Equal(t, "inner", rec["activeDialog"])
	assert.Equal(t, "wizard", rec["parent"])

	require.ErrorIs(t, scope.DialogContext{}.Set(child, map[string]any{}), scope.ErrReadOnly)
}

// upperScope is a custom scope for registry tests.
type upperScope struct{}

func (upperScope) Name() string     { return "settings" }
func (upperScope) Settable() bool   { return false }
func (upperScope) Set(dc *dialog.Context, value map[string]any) error { return scope.ErrReadOnly }
func (upperScope) Get(dc *dialog.Context) (map[string]any, error) {
	return map[string]any{"env": "test"}, nil
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	dc := newStack(t, newAskDialog("ask"))
	_, err := dc.Begin(ctx, "ask", nil)
	require.NoError(t, err)

	r := scope.NewRegistry(upperScope{})

	t.Run("resolves built-ins and extras", func(t *testing.T) {
		names := r.Names()
		for _, want := range []string{"this", "turn", "class", "dialogClass", "dialogContext", "settings"} {
			assert.Contains(t, names, want)
		}
		rec, err := r.Get(dc, "settings")
		require.NoError(t, err)
		assert.Equal(t, "test", rec["env"])
	})

	t.Run("unknown scope", func(t *testing.T) {
		_, err := r.Get(dc, "nope")
		require.ErrorIs(t, err, scope.ErrUnknownScope)
		require.ErrorIs(t, r.Set(dc, "nope", map[string]any{}), scope.ErrUnknownScope)
	})

	t.Run("settability is enforced before the scope runs", func(t *testing.T) {
		require.ErrorIs(t, r.Set(dc, "class", map[string]any{}), scope.ErrReadOnly)
		require.NoError(t, r.Set(dc, "this", map[string]any{"k": "v"}))
		assert.Equal(t, "v", dc.ActiveInstance().State["k"])
	})
}
