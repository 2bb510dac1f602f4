package dialogtest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/activity"
	"github.com/aretw0/arbor/pkg/dialog"
	"github.com/aretw0/arbor/pkg/turn"
)

// Script runs turns against an engine and asserts on the replies in order.
// Methods chain; failures report through the test.
type Script struct {
	t      *testing.T
	engine *arbor.Engine

	// Adapter is the channel behind the script, exposed for assertions the
	// chain does not cover.
	Adapter *Adapter

	pending []*activity.Activity
	last    dialog.TurnResult
}

// NewScript binds an engine to a fresh adapter.
func NewScript(t *testing.T, engine *arbor.Engine, opts ...Option) *Script {
	t.Helper()
	return &Script{t: t, engine: engine, Adapter: New(opts...)}
}

// Open runs the conversation-update turn a channel delivers when the user
// joins.
func (s *Script) Open() *Script {
	s.t.Helper()
	return s.run(s.Adapter.ConversationUpdate())
}

// Send runs one turn with a user message and queues the replies.
func (s *Script) Send(text string) *Script {
	s.t.Helper()
	return s.run(s.Adapter.UserSays(text))
}

// SendEvent runs one turn with a named event.
func (s *Script) SendEvent(name string, value any) *Script {
	s.t.Helper()
	return s.run(s.Adapter.UserEvent(name, value))
}

// SendInvoke runs one turn with an invoke activity.
func (s *Script) SendInvoke(name string, value any) *Script {
	s.t.Helper()
	return s.run(s.Adapter.UserInvoke(name, value))
}

func (s *Script) run(act *activity.Activity) *Script {
	s.t.Helper()
	res, err := s.engine.RunTurn(context.Background(), turn.New(s.Adapter, act))
	require.NoError(s.t, err)
	s.last = res
	s.pending = append(s.pending, s.Adapter.DrainSent()...)
	return s
}

// ExpectReply consumes the next reply and asserts its text contains substr.
func (s *Script) ExpectReply(substr string) *Script {
	s.t.Helper()
	assert.Contains(s.t, s.Reply().Text, substr)
	return s
}

// ExpectNoReply asserts every queued reply has been consumed.
func (s *Script) ExpectNoReply() *Script {
	s.t.Helper()
	if len(s.pending) > 0 {
		var texts []string
		for _, a := range s.pending {
			texts = append(texts, fmt.Sprintf("%s %q", a.Type, a.Text))
		}
		s.t.Fatalf("expected no replies, have %d: %s", len(s.pending), strings.Join(texts, "; "))
	}
	return s
}

// ExpectStatus asserts the status of the last turn.
func (s *Script) ExpectStatus(status dialog.TurnStatus) *Script {
	s.t.Helper()
	assert.Equal(s.t, status, s.last.Status)
	return s
}

// Reply consumes and returns the next reply, failing if none is queued.
func (s *Script) Reply() *activity.Activity {
	s.t.Helper()
	require.NotEmpty(s.t, s.pending, "no reply queued")
	reply := s.pending[0]
	s.pending = s.pending[1:]
	return reply
}

// Result returns the last turn's dialog result.
func (s *Script) Result() any {
	return s.last.Result
}
