package turn

import (
	"context"
	"errors"

	"github.com/aretw0/arbor/pkg/activity"
	"github.com/aretw0/arbor/pkg/ports"
)

// ErrNilActivity indicates a turn was constructed or asked to send without an
// activity.
var ErrNilActivity = errors.New("turn: nil activity")

// Sender delivers outbound activities to the channel. Transports implement it
// (console, HTTP, MCP); tests use a capturing fake.
type Sender interface {
	Send(ctx context.Context, ref *activity.ConversationReference, a *activity.Activity) (*activity.ResourceResponse, error)
}

// Context is the explicit per-turn state. One Context is built per inbound
// activity and passed down by parameter; it must not be retained across turns
// and is not safe for concurrent use.
type Context struct {
	sender    Sender
	inbound   *activity.Activity
	ref       *activity.ConversationReference
	responded bool
	locale    string

	memory map[string]any
	cache  map[string]ports.Record
}

// New builds the context for one inbound activity.
func New(sender Sender, inbound *activity.Activity) *Context {
	return &Context{
		sender:  sender,
		inbound: inbound,
		ref:     inbound.Reference(),
	}
}

// Activity returns the inbound activity driving this turn.
func (t *Context) Activity() *activity.Activity {
	return t.inbound
}

// ReplaceActivity swaps the inbound activity mid-turn. Used when a resumed
// sign-in flow re-injects the originally blocked activity.
func (t *Context) ReplaceActivity(a *activity.Activity) {
	t.inbound = a
	if ref := a.Reference(); ref != nil {
		t.ref = ref
	}
}

// Reference returns the conversation reference extracted from the inbound
// activity.
func (t *Context) Reference() *activity.ConversationReference {
	return t.ref
}

// Locale returns the effective locale: an explicit override if set, else the
// inbound activity's locale, else "".
func (t *Context) Locale() string {
	if t.locale != "" {
		return t.locale
	}
	if t.inbound != nil {
		return t.inbound.Locale
	}
	return ""
}

// SetLocale overrides the locale for the rest of the turn.
func (t *Context) SetLocale(locale string) {
	t.locale = locale
}

// SendActivity addresses the activity to the conversation and delivers it.
// Any delivery except an invoke response flips the responded flag; prompts
// use that flag to avoid double-prompting within one turn.
func (t *Context) SendActivity(ctx context.Context, a *activity.Activity) (*activity.ResourceResponse, error) {
	if a == nil {
		return nil, ErrNilActivity
	}
	out := activity.ApplyReference(a.Clone(), t.ref, true)
	res, err := t.sender.Send(ctx, t.ref, out)
	if err != nil {
		return nil, err
	}
	if out.Type != activity.TypeInvokeResponse {
		t.responded = true
	}
	return res, nil
}

// SendText delivers a plain text message.
func (t *Context) SendText(ctx context.Context, text string) (*activity.ResourceResponse, error) {
	return t.SendActivity(ctx, activity.NewMessage(text))
}

// Responded reports whether a user-visible activity was sent this turn.
func (t *Context) Responded() bool {
	return t.responded
}

// Memory is the turn-scoped scratch record, created lazily. It vanishes with
// the turn.
func (t *Context) Memory() map[string]any {
	if t.memory == nil {
		t.memory = make(map[string]any)
	}
	return t.memory
}

// CachedState returns the state record cached under a storage key this turn.
func (t *Context) CachedState(key string) (ports.Record, bool) {
	rec, ok := t.cache[key]
	return rec, ok
}

// SetCachedState caches a state record under a storage key for the rest of
// the turn.
func (t *Context) SetCachedState(key string, rec ports.Record) {
	if t.cache == nil {
		t.cache = make(map[string]ports.Record)
	}
	t.cache[key] = rec
}

// ClearCachedState drops the cached record for a storage key.
func (t *Context) ClearCachedState(key string) {
	delete(t.cache, key)
}
