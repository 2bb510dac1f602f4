package dialogtest_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/activity"
	"github.com/aretw0/arbor/pkg/dialog"
	"github.com/aretw0/arbor/pkg/dialogtest"
	"github.com/aretw0/arbor/pkg/prompt"
)

func nameFlow() dialog.Dialog {
	return dialog.NewComponent("ask-name").
		AddDialog(dialog.NewWaterfall("ask-name-steps",
			func(ctx context.Context, step *dialog.StepContext) (dialog.TurnResult, error) {
				return step.Begin(ctx, "name", &prompt.Options{
					Prompt: activity.NewMessage("What is your name?"),
				})
			},
			func(ctx context.Context, step *dialog.StepContext) (dialog.TurnResult, error) {
				name, _ := step.Result.(string)
				if _, err := step.Turn().SendText(ctx, "Hello, "+name+"!"); err != nil {
					return dialog.TurnResult{}, err
				}
				return step.End(ctx, name)
			},
		)).
		AddDialog(prompt.Text("name"))
}

func TestScript(t *testing.T) {
	engine, err := arbor.New(nameFlow())
	require.NoError(t, err)

	script := dialogtest.NewScript(t, engine)
	script.Open().
		ExpectReply("What is your name?").
		ExpectStatus(dialog.StatusWaiting).
		ExpectNoReply().
		Send("Ada").
		ExpectReply("Hello, Ada!").
		ExpectStatus(dialog.StatusComplete)
	assert.Equal(t, "Ada", script.Result())
}

func TestAdapter_Addressing(t *testing.T) {
	a := dialogtest.New(
		dialogtest.WithChannel("msteams"),
		dialogtest.WithConversation("c9"),
		dialogtest.WithUser("u7"),
	)

	msg := a.UserSays("hello")
	assert.Equal(t, activity.TypeMessage, msg.Type)
	assert.Equal(t, "msteams", msg.ChannelID)
	assert.Equal(t, "c9", msg.Conversation.ID)
	assert.Equal(t, "u7", msg.From.ID)
	assert.NotEmpty(t, msg.ID)

	ev := a.UserEvent("tokens/response", map[string]any{"token": "tok"})
	assert.Equal(t, activity.TypeEvent, ev.Type)
	assert.Equal(t, "tokens/response", ev.Name)

	inv := a.UserInvoke("signin/verifyState", map[string]any{"state": "123"})
	assert.Equal(t, activity.TypeInvoke, inv.Type)
	assert.Equal(t, "signin/verifyState", inv.Name)

	// Both land in the same conversation as the message.
	assert.Equal(t, msg.Conversation.ID, ev.Conversation.ID)
	assert.Equal(t, msg.Conversation.ID, inv.Conversation.ID)
}

func TestAdapter_DrainSent(t *testing.T) {
	a := dialogtest.New()
	ctx := context.Background()

	r1, err := a.Send(ctx, nil, activity.NewMessage("one"))
	require.NoError(t, err)
	r2, err := a.Send(ctx, nil, activity.NewMessage("two"))
	require.NoError(t, err)
	assert.NotEqual(t, r1.ID, r2.ID)

	require.Len(t, a.Sent(), 2)

	drained := a.DrainSent()
	require.Len(t, drained, 2)
	assert.Equal(t, "one", drained[0].Text)
	assert.Equal(t, "two", drained[1].Text)
	assert.Empty(t, a.Sent())
}

func TestClock(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := dialogtest.NewClock(start)
	assert.Equal(t, start, clock.Now())

	clock.Advance(15 * time.Minute)
	assert.Equal(t, start.Add(15*time.Minute), clock.Now())

	clock.Set(start)
	assert.Equal(t, start, clock.Now())
}
