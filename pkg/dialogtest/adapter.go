// Package dialogtest provides an in-memory channel for exercising dialogs:
// a capturing sender, fabricated inbound activities bound to one
// conversation, a scripted turn runner and a manual clock.
package dialogtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/arbor/pkg/activity"
)

// Adapter plays the channel in tests. Outbound activities are recorded
// instead of delivered; inbound ones are fabricated with stable addressing
// so every turn lands in the same conversation.
type Adapter struct {
	mu   sync.Mutex
	sent []*activity.Activity
	seq  int

	channelID string
	convID    string
	userID    string
	botID     string
}

// Option adjusts the adapter's addressing.
type Option func(*Adapter)

// WithConversation fixes the conversation id.
func WithConversation(id string) Option {
	return func(a *Adapter) { a.convID = id }
}

// WithUser fixes the sending user's id.
func WithUser(id string) Option {
	return func(a *Adapter) { a.userID = id }
}

// WithChannel fixes the channel id.
func WithChannel(id string) Option {
	return func(a *Adapter) { a.channelID = id }
}

// New returns an adapter for a test channel with one user and one
// conversation.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		channelID: "test",
		convID:    "conv-1",
		userID:    "user-1",
		botID:     "bot",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Send implements turn.Sender by recording the activity.
func (a *Adapter) Send(_ context.Context, _ *activity.ConversationReference, act *activity.Activity) (*activity.ResourceResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	a.sent = append(a.sent, act)
	return &activity.ResourceResponse{ID: fmt.Sprintf("reply-%d", a.seq)}, nil
}

// Sent returns a snapshot of everything recorded so far.
func (a *Adapter) Sent() []*activity.Activity {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*activity.Activity, len(a.sent))
	copy(out, a.sent)
	return out
}

// DrainSent returns the recorded activities and clears the record.
func (a *Adapter) DrainSent() []*activity.Activity {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.sent
	a.sent = nil
	return out
}

// UserSays fabricates an inbound message.
func (a *Adapter) UserSays(text string) *activity.Activity {
	return a.address(activity.NewMessage(text))
}

// UserEvent fabricates an inbound event.
func (a *Adapter) UserEvent(name string, value any) *activity.Activity {
	return a.address(&activity.Activity{Type: activity.TypeEvent, Name: name, Value: value})
}

// UserInvoke fabricates an inbound invoke.
func (a *Adapter) UserInvoke(name string, value any) *activity.Activity {
	return a.address(&activity.Activity{Type: activity.TypeInvoke, Name: name, Value: value})
}

// ConversationUpdate fabricates the turn a channel delivers when the user
// joins, the one that lets bot-first flows greet.
func (a *Adapter) ConversationUpdate() *activity.Activity {
	return a.address(&activity.Activity{Type: activity.TypeConversationUpdate})
}

func (a *Adapter) address(act *activity.Activity) *activity.Activity {
	act.ID = activity.NewID()
	act.ChannelID = a.channelID
	act.Conversation = &activity.ConversationAccount{ID: a.convID}
	act.From = &activity.ChannelAccount{ID: a.userID}
	act.Recipient = &activity.ChannelAccount{ID: a.botID}
	return act
}
