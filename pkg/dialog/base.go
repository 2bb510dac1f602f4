package dialog

import (
	"context"
	"fmt"

	"github.com/aretw0/arbor/pkg/turn"
)

// Base supplies the default dialog behaviors. Concrete dialogs embed it and
// compose: override interface methods for the big shapes, or attach
// PreBubble/PostBubble/On handlers for event behavior, instead of building
// inheritance towers.
type Base struct {
	id string

	// PreBubble intercepts events before they leave this dialog.
	PreBubble EventHandler
	// PostBubble is the default processing point for events nobody wanted.
	PostBubble EventHandler

	handlers map[Kind]EventHandler
}

// NewBase creates the embeddable core with an explicit id.
func NewBase(id string) Base {
	return Base{id: id}
}

// ID returns the dialog's id within its set.
func (b *Base) ID() string { return b.id }

// SetID renames the dialog. Called by Set on id collision.
func (b *Base) SetID(id string) { b.id = id }

// Version defaults to the id: the definition is assumed stable unless a
// concrete dialog computes something finer.
func (b *Base) Version() string { return b.id }

// Begin must be provided by the concrete dialog.
func (b *Base) Begin(ctx context.Context, dc *Context, options any) (TurnResult, error) {
	return TurnResult{}, fmt.Errorf("dialog %q: Begin not implemented", b.id)
}

// Continue defaults to ending immediately with no result; single-turn
// dialogs get that for free, multi-turn dialogs override.
func (b *Base) Continue(ctx context.Context, dc *Context) (TurnResult, error) {
	return dc.End(ctx, nil)
}

// Resume defaults to ending this frame and forwarding the child's result to
// its own parent; a plain dialog has nothing to do with a finished child.
func (b *Base) Resume(ctx context.Context, dc *Context, reason Reason, result any) (TurnResult, error) {
	return dc.End(ctx, result)
}

// Reprompt is a no-op by default.
func (b *Base) Reprompt(ctx context.Context, t *turn.Context, inst *Instance) error {
	return nil
}

// End is a no-op cleanup hook by default.
func (b *Base) End(ctx context.Context, t *turn.Context, inst *Instance, reason Reason) error {
	return nil
}

// On registers a handler for one event kind, consulted in the pre-bubble
// stage. Registration replaces any previous handler for the kind.
func (b *Base) On(kind Kind, h EventHandler) *Base {
	if b.handlers == nil {
		b.handlers = make(map[Kind]EventHandler)
	}
	b.handlers[kind] = h
	return b
}

// OnEvent routes an event through the three stages: pre-bubble interception
// here, bubbling to the parent context's active dialog, then post-bubble
// default processing. Dispatch is by kind through the handler table; kinds
// without a handler fall through unhandled.
func (b *Base) OnEvent(ctx context.Context, dc *Context, e Event) (bool, error) {
	handled, err := b.preBubble(ctx, dc, e)
	if err != nil {
		return false, err
	}

	if !handled && e.Bubble {
		if parent := dc.Parent(); parent != nil {
			handled, err = parent.dispatchEvent(ctx, e)
			if err != nil {
				return false, err
			}
		}
	}

	if !handled && b.PostBubble != nil {
		handled, err = b.PostBubble(ctx, dc, e)
		if err != nil {
			return false, err
		}
	}
	return handled, nil
}

func (b *Base) preBubble(ctx context.Context, dc *Context, e Event) (bool, error) {
	if h, ok := b.handlers[e.Kind]; ok {
		return h(ctx, dc, e)
	}
	if b.PreBubble != nil {
		return b.PreBubble(ctx, dc, e)
	}
	return false, nil
}
