package dialog

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/arbor/pkg/turn"
)

// childStateKey is where a component frame keeps its inner stack, inside the
// frame's own state record. The inner stack persists with the outer frame
// and needs no storage of its own.
const childStateKey = "dialogs"

// ComponentOption configures a Component.
type ComponentOption func(*Component)

// WithInitialDialog overrides which inner dialog a fresh component frame
// starts. The default is the first dialog added.
func WithInitialDialog(id string) ComponentOption {
	return func(c *Component) {
		c.initialDialog = id
	}
}

// Component packages a set of dialogs behind a single dialog id. From the
// outside it begins, waits and ends like any dialog; inside it drives a
// private stack persisted within its own frame. Components nest to any
// depth.
type Component struct {
	Base

	dialogs       *Set
	initialDialog string
}

// NewComponent builds an empty component. Add inner dialogs with AddDialog
// before using it.
func NewComponent(id string, opts ...ComponentOption) *Component {
	c := &Component{
		Base:    NewBase(id),
		dialogs: NewSet(nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddDialog registers an inner dialog. The first one added becomes the
// initial dialog unless WithInitialDialog chose another. Chainable.
func (c *Component) AddDialog(d Dialog) *Component {
	c.dialogs.Add(d)
	if c.initialDialog == "" && d != nil {
		c.initialDialog = d.ID()
	}
	return c
}

// FindDialog resolves an id against the inner set only.
func (c *Component) FindDialog(id string) (Dialog, bool) {
	return c.dialogs.Find(id)
}

// DialogIDs lists the inner dialog ids in registration order.
func (c *Component) DialogIDs() []string {
	return c.dialogs.IDs()
}

// InitialID returns the inner dialog a fresh frame starts with.
func (c *Component) InitialID() string {
	return c.initialDialog
}

// Version covers the component and every inner dialog, so a change anywhere
// inside surfaces as a version change of the component's own frame.
func (c *Component) Version() string {
	return c.ID() + ":" + c.dialogs.Version()
}

// Begin starts the initial inner dialog. If it finishes within the turn the
// component itself ends with the inner result; otherwise the component
// frame suspends.
func (c *Component) Begin(ctx context.Context, dc *Context, options any) (TurnResult, error) {
	if err := c.dialogs.Err(); err != nil {
		return TurnResult{}, fmt.Errorf("component %q: %w", c.ID(), err)
	}
	if c.initialDialog == "" {
		return TurnResult{}, fmt.Errorf("component %q: %w: no inner dialogs", c.ID(), ErrInvalidDialog)
	}
	inner, err := c.CreateChildContext(dc)
	if err != nil {
		return TurnResult{}, err
	}
	result, err := inner.Begin(ctx, c.initialDialog, options)
	if err != nil {
		return TurnResult{}, err
	}
	if result.Status != StatusWaiting {
		return dc.End(ctx, result.Result)
	}
	return EndOfTurn, nil
}

// Continue forwards the turn to the inner stack and ends the component when
// the inner stack drains.
func (c *Component) Continue(ctx context.Context, dc *Context) (TurnResult, error) {
	inner, err := c.CreateChildContext(dc)
	if err != nil {
		return TurnResult{}, err
	}
	result, err := inner.Continue(ctx)
	if err != nil {
		return TurnResult{}, err
	}
	if result.Status != StatusWaiting {
		return dc.End(ctx, result.Result)
	}
	return EndOfTurn, nil
}

// Resume handles the case of another dialog having been pushed on top of
// the component and ending. The component is not done, so it re-prompts its
// inner stack and keeps waiting.
func (c *Component) Resume(ctx context.Context, dc *Context, reason Reason, result any) (TurnResult, error) {
	if err := c.Reprompt(ctx, dc.Turn(), dc.ActiveInstance()); err != nil {
		return TurnResult{}, err
	}
	return EndOfTurn, nil
}

// Reprompt forwards the re-render request to the inner stack.
func (c *Component) Reprompt(ctx context.Context, t *turn.Context, inst *Instance) error {
	inner, err := c.innerContext(t, inst)
	if err != nil {
		return err
	}
	return inner.Reprompt(ctx)
}

// End forwards cancellation into the inner stack so nested frames run their
// own cleanup before the component frame pops.
func (c *Component) End(ctx context.Context, t *turn.Context, inst *Instance, reason Reason) error {
	if reason != ReasonCancel {
		return nil
	}
	inner, err := c.innerContext(t, inst)
	if err != nil {
		return err
	}
	_, err = inner.CancelAll(ctx, false, nil)
	return err
}

// OnEvent behaves like any dialog, with a log line for version changes that
// nobody handled.
func (c *Component) OnEvent(ctx context.Context, dc *Context, e Event) (bool, error) {
	handled, err := c.Base.OnEvent(ctx, dc, e)
	if err != nil {
		return false, err
	}
	if !handled && e.Kind == KindVersionChanged {
		dc.Logger().Warn("component definition changed for a live conversation", "component", c.ID())
	}
	return handled, nil
}

// CreateChildContext opens the inner context under the cursor's active
// frame, which must be this component's.
func (c *Component) CreateChildContext(dc *Context) (*Context, error) {
	inst := dc.ActiveInstance()
	if inst == nil {
		return nil, fmt.Errorf("component %q: %w", c.ID(), ErrNoActiveDialog)
	}
	st, err := c.innerState(inst)
	if err != nil {
		return nil, err
	}
	return dc.newChild(c.dialogs, st), nil
}

// innerContext builds a detached cursor over the inner stack for paths that
// carry no outer context (reprompt, cleanup).
func (c *Component) innerContext(t *turn.Context, inst *Instance) (*Context, error) {
	if inst == nil {
		return nil, fmt.Errorf("component %q: %w", c.ID(), ErrNoActiveDialog)
	}
	st, err := c.innerState(inst)
	if err != nil {
		return nil, err
	}
	return newRootContext(c.dialogs, st, t), nil
}

// innerState digs the inner stack out of the frame, rebuilding the typed
// form after a persistence round trip and anchoring it back so later
// mutations reach the stored record.
func (c *Component) innerState(inst *Instance) (*State, error) {
	if inst.State == nil {
		inst.State = make(map[string]any)
	}
	raw, ok := inst.State[childStateKey]
	if !ok || raw == nil {
		st := &State{}
		inst.State[childStateKey] = st
		return st, nil
	}
	if st, ok := raw.(*State); ok {
		return st, nil
	}
	st := &State{}
	if err := mapstructure.Decode(raw, st); err != nil {
		return nil, fmt.Errorf("component %q: decoding inner stack: %w", c.ID(), err)
	}
	inst.State[childStateKey] = st
	return st, nil
}
