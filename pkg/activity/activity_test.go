package activity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inbound() *Activity {
	return &Activity{
		Type:         TypeMessage,
		ID:           "act-1",
		ChannelID:    "test",
		ServiceURL:   "https://channel.example",
		Text:         "hello",
		Conversation: &ConversationAccount{ID: "conv-1"},
		From:         &ChannelAccount{ID: "user-1", Name: "User"},
		Recipient:    &ChannelAccount{ID: "agent-1", Name: "Agent"},
	}
}

func TestReference(t *testing.T) {
	t.Run("swaps sender and addressee", func(t *testing.T) {
		ref := inbound().Reference()
		require.NotNil(t, ref)

		assert.Equal(t, "act-1", ref.ActivityID)
		assert.Equal(t, "test", ref.ChannelID)
		assert.Equal(t, "conv-1", ref.Conversation.ID)
		assert.Equal(t, "user-1", ref.User.ID)
		assert.Equal(t, "agent-1", ref.Agent.ID)
	})

	t.Run("tolerates missing accounts", func(t *testing.T) {
		ref := (&Activity{Type: TypeMessage, ChannelID: "test"}).Reference()
		require.NotNil(t, ref)
		assert.Nil(t, ref.User)
		assert.Nil(t, ref.Agent)
		assert.Nil(t, ref.Conversation)
	})

	t.Run("detached from the source activity", func(t *testing.T) {
		a := inbound()
		ref := a.Reference()
		a.Conversation.ID = "mutated"
		assert.Equal(t, "conv-1", ref.Conversation.ID)
	})
}

func TestApplyReference(t *testing.T) {
	t.Run("as reply addresses the original sender", func(t *testing.T) {
		ref := inbound().Reference()
		out := ApplyReference(NewMessage("hi there"), ref, true)

		assert.Equal(t, "conv-1", out.Conversation.ID)
		assert.Equal(t, "user-1", out.Recipient.ID)
		assert.Equal(t, "agent-1", out.From.ID)
		assert.Equal(t, "act-1", out.ReplyToID)
		assert.Equal(t, "test", out.ChannelID)
	})

	t.Run("empty reference fields leave the activity alone", func(t *testing.T) {
		out := &Activity{Type: TypeMessage, ChannelID: "keep", ServiceURL: "https://keep"}
		ApplyReference(out, &ConversationReference{}, true)
		assert.Equal(t, "keep", out.ChannelID)
		assert.Equal(t, "https://keep", out.ServiceURL)
	})
}

func TestPredicates(t *testing.T) {
	assert.True(t, inbound().IsMessage())
	assert.False(t, (&Activity{Type: TypeEvent}).IsMessage())
	assert.True(t, (&Activity{Type: TypeEvent, Name: "tokens/response"}).IsEventNamed("tokens/response"))
	assert.True(t, (&Activity{Type: TypeInvoke, Name: "signin/verifyState"}).IsInvokeNamed("signin/verifyState"))
	assert.False(t, (&Activity{Type: TypeMessage, Name: "signin/verifyState"}).IsInvokeNamed("signin/verifyState"))

	var nilActivity *Activity
	assert.False(t, nilActivity.IsMessage())
	assert.Empty(t, nilActivity.TrimmedText())
	assert.Empty(t, nilActivity.ConversationID())
}

func TestClone(t *testing.T) {
	a := inbound()
	a.Attachments = []Attachment{{ContentType: "application/json", Content: map[string]any{"k": "v"}}}

	b := a.Clone()
	b.Conversation.ID = "other"
	b.From.ID = "other-user"
	b.Attachments[0].ContentType = "text/plain"

	assert.Equal(t, "conv-1", a.Conversation.ID)
	assert.Equal(t, "user-1", a.From.ID)
	assert.Equal(t, "application/json", a.Attachments[0].ContentType)
}

func TestNewID(t *testing.T) {
	assert.NotEmpty(t, NewID())
	assert.NotEqual(t, NewID(), NewID())
}
