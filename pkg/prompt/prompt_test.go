package prompt_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/activity"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/dialog"
	"github.com/aretw0/arbor/pkg/prompt"
	"github.com/aretw0/arbor/pkg/state"
	"github.com/aretw0/arbor/pkg/turn"
)

// captureSender records outbound activities instead of delivering them.
type captureSender struct {
	sent []*activity.Activity
}

func (s *captureSender) Send(ctx context.Context, ref *activity.ConversationReference, a *activity.Activity) (*activity.ResourceResponse, error) {
	s.sent = append(s.sent, a)
	return &activity.ResourceResponse{ID: fmt.Sprintf("r%d", len(s.sent))}, nil
}

func (s *captureSender) texts() []string {
	var out []string
	for _, a := range s.sent {
		if a.IsMessage() {
			out = append(out, a.Text)
		}
	}
	return out
}

// promptFixture runs prompts inside a persisted dialog stack, reloading
// state every turn like a stateless service would.
type promptFixture struct {
	storage *memory.Store
	conv    *state.Store
	set     *dialog.Set
}

func newPromptFixture(dialogs ...dialog.Dialog) *promptFixture {
	storage := memory.NewStore()
	conv := state.NewConversationState(storage)
	prop := state.NewProperty[*dialog.State](conv, "dialogState")
	f := &promptFixture{
		storage: storage,
		conv:    conv,
		set:     dialog.NewSet(prop),
	}
	for _, d := range dialogs {
		f.set.Add(d)
	}
	return f
}

func (f *promptFixture) turn(a *activity.Activity) (*turn.Context, *captureSender) {
	sender := &captureSender{}
	a.ChannelID = "test"
	a.Conversation = &activity.ConversationAccount{ID: "conv-1"}
	a.From = &activity.ChannelAccount{ID: "user-1"}
	a.Recipient = &activity.ChannelAccount{ID: "bot"}
	return turn.New(sender, a), sender
}

// begin starts a prompt and persists the suspended stack.
func (f *promptFixture) begin(t *testing.T, id string, options any, inbound *activity.Activity) (dialog.TurnResult, *captureSender) {
	t.Helper()
	ctx := context.Background()
	tc, sender := f.turn(inbound)
	dc, err := f.set.CreateContext(ctx, tc)
	require.NoError(t, err)
	res, err := dc.Begin(ctx, id, options)
	require.NoError(t, err)
	require.NoError(t, f.conv.Save(ctx, tc, false))
	return res, sender
}

// send delivers one activity to the persisted stack.
func (f *promptFixture) send(t *testing.T, inbound *activity.Activity) (dialog.TurnResult, *captureSender) {
	t.Helper()
	ctx := context.Background()
	tc, sender := f.turn(inbound)
	dc, err := f.set.CreateContext(ctx, tc)
	require.NoError(t, err)
	res, err := dc.Continue(ctx)
	require.NoError(t, err)
	require.NoError(t, f.conv.Save(ctx, tc, false))
	return res, sender
}

func askOptions(text, retry string) *prompt.Options {
	opts := &prompt.Options{Prompt: activity.NewMessage(text)}
	if retry != "" {
		opts.RetryPrompt = activity.NewMessage(retry)
	}
	return opts
}

func TestTextPrompt(t *testing.T) {
	t.Run("asks and accepts a reply", func(t *testing.T) {
		f := newPromptFixture(prompt.Text("name"))

		res, sender := f.begin(t, "name", askOptions("what's your name?", ""), activity.NewMessage("hi"))
		require.Equal(t, dialog.StatusWaiting, res.Status)
		assert.Equal(t, []string{"what's your name?"}, sender.texts())

		res, _ = f.send(t, activity.NewMessage("Ada"))
		assert.Equal(t, dialog.StatusComplete, res.Status)
		assert.Equal(t, "Ada", res.Result)
	})

	t.Run("blank replies retry with the retry prompt", func(t *testing.T) {
		f := newPromptFixture(prompt.Text("name"))
		f.begin(t, "name", askOptions("your name?", "I still need a name"), activity.NewMessage("hi"))

		res, sender := f.send(t, activity.NewMessage("   "))
		assert.Equal(t, dialog.StatusWaiting, res.Status)
		assert.Equal(t, []string{"I still need a name"}, sender.texts())

		res, _ = f.send(t, activity.NewMessage("Grace"))
		assert.Equal(t, dialog.StatusComplete, res.Status)
		assert.Equal(t, "Grace", res.Result)
	})

	t.Run("without a retry prompt the question repeats", func(t *testing.T) {
		f := newPromptFixture(prompt.Text("name"))
		f.begin(t, "name", askOptions("your name?", ""), activity.NewMessage("hi"))

		_, sender := f.send(t, activity.NewMessage(" "))
		assert.Equal(t, []string{"your name?"}, sender.texts())
	})

	t.Run("non-message activities leave the prompt waiting", func(t *testing.T) {
		f := newPromptFixture(prompt.Text("name"))
		f.begin(t, "name", askOptions("your name?", ""), activity.NewMessage("hi"))

		res, sender := f.send(t, activity.NewEvent("typing"))
		assert.Equal(t, dialog.StatusWaiting, res.Status)
		assert.Empty(t, sender.sent)

		res, _ = f.send(t, activity.NewMessage("Linus"))
		assert.Equal(t, dialog.StatusComplete, res.Status)
	})

	t.Run("nil options ask nothing but still collect", func(t *testing.T) {
		f := newPromptFixture(prompt.Text("name"))

		res, sender := f.begin(t, "name", nil, activity.NewMessage("hi"))
		require.Equal(t, dialog.StatusWaiting, res.Status)
		assert.Empty(t, sender.sent)

		res, _ = f.send(t, activity.NewMessage("quiet"))
		assert.Equal(t, "quiet", res.Result)
	})
}

func TestPromptValidation(t *testing.T) {
	t.Run("validator gates recognized values and counts attempts", func(t *testing.T) {
		var attempts []int
		longEnough := func(ctx context.Context, vc *prompt.ValidatorContext) (bool, error) {
			attempts = append(attempts, vc.Attempts)
			if !vc.Recognized.Succeeded {
				return false, nil
			}
			name, _ := vc.Recognized.Value.(string)
			return len(name) >= 3, nil
		}
		f := newPromptFixture(prompt.Text("name").WithValidator(longEnough))
		f.begin(t, "name", askOptions("name?", "longer please"), activity.NewMessage("hi"))

		res, sender := f.send(t, activity.NewMessage("Al"))
		assert.Equal(t, dialog.StatusWaiting, res.Status)
		assert.Equal(t, []string{"longer please"}, sender.texts())

		res, _ = f.send(t, activity.NewMessage("Alan"))
		assert.Equal(t, dialog.StatusComplete, res.Status)
		assert.Equal(t, "Alan", res.Result)
		assert.Equal(t, []int{1, 2}, attempts, "the counter survives the turn boundary")
	})

	t.Run("end on invalid message completes with nil", func(t *testing.T) {
		rejectAll := func(ctx context.Context, vc *prompt.ValidatorContext) (bool, error) {
			return false, nil
		}
		f := newPromptFixture(prompt.Text("name").WithValidator(rejectAll).WithEndOnInvalidMessage())
		f.begin(t, "name", askOptions("name?", ""), activity.NewMessage("hi"))

		res, _ := f.send(t, activity.NewMessage("whatever"))
		assert.Equal(t, dialog.StatusComplete, res.Status)
		assert.Nil(t, res.Result)
	})

	t.Run("no automatic retry after the validator replied", func(t *testing.T) {
		scolding := func(ctx context.Context, vc *prompt.ValidatorContext) (bool, error) {
			if vc.Recognized.Succeeded {
				return true, nil
			}
			_, err := vc.Turn.SendText(ctx, "that was empty")
			return false, err
		}
		f := newPromptFixture(prompt.Text("name").WithValidator(scolding))
		f.begin(t, "name", askOptions("name?", "try again"), activity.NewMessage("hi"))

		_, sender := f.send(t, activity.NewMessage("  "))
		assert.Equal(t, []string{"that was empty"}, sender.texts(), "the retry prompt stays quiet")
	})

	t.Run("validator state survives turns", func(t *testing.T) {
		stubborn := func(ctx context.Context, vc *prompt.ValidatorContext) (bool, error) {
			seen, _ := vc.State["seen"].(string)
			vc.State["seen"] = seen + "x"
			return len(seen) >= 2, nil
		}
		f := newPromptFixture(prompt.Text("name").WithValidator(stubborn))
		f.begin(t, "name", askOptions("name?", ""), activity.NewMessage("hi"))

		res, _ := f.send(t, activity.NewMessage("a"))
		assert.Equal(t, dialog.StatusWaiting, res.Status)
		res, _ = f.send(t, activity.NewMessage("b"))
		assert.Equal(t, dialog.StatusWaiting, res.Status)
		res, _ = f.send(t, activity.NewMessage("c"))
		assert.Equal(t, dialog.StatusComplete, res.Status)
	})
}

func TestConfirmPrompt(t *testing.T) {
	t.Run("renders inline choices", func(t *testing.T) {
		f := newPromptFixture(prompt.Confirm("go"))

		_, sender := f.begin(t, "go", askOptions("deploy now?", ""), activity.NewMessage("deploy"))
		assert.Equal(t, []string{"deploy now? (1) Yes or (2) No"}, sender.texts())
	})

	t.Run("interprets yes and no words", func(t *testing.T) {
		f := newPromptFixture(prompt.Confirm("go"))
		f.begin(t, "go", askOptions("deploy now?", ""), activity.NewMessage("deploy"))
		res, _ := f.send(t, activity.NewMessage("sure"))
		assert.Equal(t, dialog.StatusComplete, res.Status)
		assert.Equal(t, true, res.Result)

		f = newPromptFixture(prompt.Confirm("go"))
		f.begin(t, "go", askOptions("deploy now?", ""), activity.NewMessage("deploy"))
		res, _ = f.send(t, activity.NewMessage("nope"))
		assert.Equal(t, dialog.StatusComplete, res.Status)
		assert.Equal(t, false, res.Result)
	})

	t.Run("positional answers resolve against the listed order", func(t *testing.T) {
		f := newPromptFixture(prompt.Confirm("go"))
		f.begin(t, "go", askOptions("deploy now?", ""), activity.NewMessage("deploy"))

		res, _ := f.send(t, activity.NewMessage("2"))
		assert.Equal(t, dialog.StatusComplete, res.Status)
		assert.Equal(t, false, res.Result)
	})

	t.Run("ordinal words pick a choice", func(t *testing.T) {
		f := newPromptFixture(prompt.Confirm("go"))
		f.begin(t, "go", askOptions("deploy now?", ""), activity.NewMessage("deploy"))

		res, _ := f.send(t, activity.NewMessage("the second one"))
		assert.Equal(t, dialog.StatusComplete, res.Status)
		assert.Equal(t, false, res.Result)
	})

	t.Run("ambiguous replies retry", func(t *testing.T) {
		f := newPromptFixture(prompt.Confirm("go"))
		f.begin(t, "go", askOptions("deploy now?", "yes or no please"), activity.NewMessage("deploy"))

		res, sender := f.send(t, activity.NewMessage("yes no maybe"))
		assert.Equal(t, dialog.StatusWaiting, res.Status)
		assert.Equal(t, []string{"yes or no please (1) Yes or (2) No"}, sender.texts())
	})

	t.Run("follows the activity locale", func(t *testing.T) {
		f := newPromptFixture(prompt.Confirm("go"))
		ask := activity.NewMessage("implantar agora?")
		ask.Locale = "pt-BR"
		_, sender := f.begin(t, "go", askOptions("implantar agora?", ""), ask)
		assert.Equal(t, []string{"implantar agora? (1) Sim ou (2) Não"}, sender.texts())

		reply := activity.NewMessage("claro")
		reply.Locale = "pt-BR"
		res, _ := f.send(t, reply)
		assert.Equal(t, dialog.StatusComplete, res.Status)
		assert.Equal(t, true, res.Result)
	})

	t.Run("custom wording replaces the defaults", func(t *testing.T) {
		f := newPromptFixture(prompt.Confirm("go",
			prompt.WithConfirmChoices(
				prompt.Choice{Title: "Ship it", Synonyms: []string{"ship"}},
				prompt.Choice{Title: "Hold", Synonyms: []string{"hold", "wait"}},
			),
		))
		_, sender := f.begin(t, "go", askOptions("ready?", ""), activity.NewMessage("deploy"))
		assert.Equal(t, []string{"ready? (1) Ship it or (2) Hold"}, sender.texts())

		res, _ := f.send(t, activity.NewMessage("ship"))
		assert.Equal(t, dialog.StatusComplete, res.Status)
		assert.Equal(t, true, res.Result)
	})

	t.Run("list style none keeps the text clean", func(t *testing.T) {
		f := newPromptFixture(prompt.Confirm("go", prompt.WithListStyle(prompt.ListNone)))
		_, sender := f.begin(t, "go", askOptions("deploy now?", ""), activity.NewMessage("deploy"))
		assert.Equal(t, []string{"deploy now?"}, sender.texts())
	})
}

func TestMatchChoice(t *testing.T) {
	choices := []prompt.Choice{
		{Title: "Small", Value: "s"},
		{Title: "Medium", Value: "m", Synonyms: []string{"regular"}},
		{Title: "Large", Value: "l"},
	}

	cases := []struct {
		name string
		text string
		idx  int
		ok   bool
	}{
		{name: "title match", text: "medium", idx: 1, ok: true},
		{name: "value match", text: "L", idx: 2, ok: true},
		{name: "synonym match", text: "Regular", idx: 1, ok: true},
		{name: "positional number", text: "2", idx: 1, ok: true},
		{name: "ordinal", text: "the third one", idx: 2, ok: true},
		{name: "last", text: "the last one", idx: 2, ok: true},
		{name: "out of range", text: "7", ok: false},
		{name: "no match", text: "gigantic", ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			idx, ok := prompt.MatchChoice(tc.text, "en-US", choices, true)
			require.Equal(t, tc.ok, ok)
			if ok {
				assert.Equal(t, tc.idx, idx)
			}
		})
	}

	t.Run("numbers can be disabled", func(t *testing.T) {
		_, ok := prompt.MatchChoice("2", "en-US", choices, false)
		assert.False(t, ok)
	})
}

func TestPromptOptionsSurviveReload(t *testing.T) {
	// A second fixture over the same storage simulates a process restart
	// between the question and the answer.
	storage := memory.NewStore()
	build := func() *promptFixture {
		conv := state.NewConversationState(storage)
		prop := state.NewProperty[*dialog.State](conv, "dialogState")
		f := &promptFixture{storage: storage, conv: conv, set: dialog.NewSet(prop)}
		f.set.Add(prompt.Text("name"))
		return f
	}

	first := build()
	first.begin(t, "name", askOptions("your name?", "a name, please"), activity.NewMessage("hi"))

	second := build()
	res, sender := second.send(t, activity.NewMessage(" "))
	assert.Equal(t, dialog.StatusWaiting, res.Status)
	assert.Equal(t, []string{"a name, please"}, sender.texts(), "the retry prompt survives serialization")

	res, _ = second.send(t, activity.NewMessage("Ada"))
	assert.Equal(t, dialog.StatusComplete, res.Status)
	assert.Equal(t, "Ada", res.Result)
}
