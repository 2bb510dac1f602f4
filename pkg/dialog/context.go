package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/arbor/pkg/turn"
)

// InternalIDPrefix marks frame ids that are engine bookkeeping rather than
// application dialogs. Introspection filters them out.
const InternalIDPrefix = "arbor:"

// arena holds every dialog level reached during one turn. Levels reference
// their parent by index, so the whole tree is a flat slice with no pointer
// cycles; it grows as containers open child contexts and is discarded with
// the turn.
type arena struct {
	turn   *turn.Context
	logger *slog.Logger
	hooks  *Hooks
	levels []level
}

type level struct {
	set    *Set
	state  *State
	parent int
}

// Context is a cursor over one level of the dialog tree for the current
// turn. It is created by Set.CreateContext (root) or by containers (child
// levels) and never outlives the turn.
type Context struct {
	a   *arena
	idx int
}

func newRootContext(s *Set, st *State, t *turn.Context) *Context {
	a := &arena{
		turn:   t,
		logger: s.logger,
		hooks:  s.hooks,
		levels: []level{{set: s, state: st, parent: -1}},
	}
	return &Context{a: a, idx: 0}
}

// newChild opens a nested level whose parent is this context. Containers
// call it from CreateChildContext with their inner set and inner stack.
func (dc *Context) newChild(set *Set, st *State) *Context {
	dc.a.levels = append(dc.a.levels, level{set: set, state: st, parent: dc.idx})
	return &Context{a: dc.a, idx: len(dc.a.levels) - 1}
}

// Turn returns the turn this cursor belongs to.
func (dc *Context) Turn() *turn.Context {
	return dc.a.turn
}

// Dialogs returns the set this level resolves ids against first.
func (dc *Context) Dialogs() *Set {
	return dc.a.levels[dc.idx].set
}

// Logger returns the structured logger wired through the set.
func (dc *Context) Logger() *slog.Logger {
	return dc.a.logger
}

func (dc *Context) state() *State {
	return dc.a.levels[dc.idx].state
}

// StackInstances returns this level's live stack, bottom first. Callers must
// treat it as read-only.
func (dc *Context) StackInstances() []*Instance {
	return dc.state().Stack
}

// ActiveInstance returns the top frame of this level, or nil.
func (dc *Context) ActiveInstance() *Instance {
	stack := dc.state().Stack
	if len(stack) == 0 {
		return nil
	}
	return stack[len(stack)-1]
}

// Parent returns the enclosing level's cursor, or nil at the root.
func (dc *Context) Parent() *Context {
	parent := dc.a.levels[dc.idx].parent
	if parent < 0 {
		return nil
	}
	return &Context{a: dc.a, idx: parent}
}

// Child opens the active container's inner context, or returns nil when the
// active dialog hosts no inner stack.
func (dc *Context) Child() (*Context, error) {
	inst := dc.ActiveInstance()
	if inst == nil {
		return nil, nil
	}
	d, ok := dc.FindDialog(inst.ID)
	if !ok {
		return nil, nil
	}
	container, ok := d.(Container)
	if !ok {
		return nil, nil
	}
	return container.CreateChildContext(dc)
}

// FindDialog resolves an id against this level's set, then each ancestor's.
func (dc *Context) FindDialog(id string) (Dialog, bool) {
	for cursor := dc; cursor != nil; cursor = cursor.Parent() {
		if d, ok := cursor.Dialogs().Find(id); ok {
			return d, true
		}
	}
	return nil, false
}

// Begin pushes a fresh frame for the dialog onto this level's stack and runs
// its Begin. The id resolves through ancestor sets, but the frame always
// lands on this level.
func (dc *Context) Begin(ctx context.Context, dialogID string, options any) (TurnResult, error) {
	if err := dc.checkVersion(ctx); err != nil {
		return TurnResult{}, err
	}
	d, ok := dc.FindDialog(dialogID)
	if !ok {
		return TurnResult{}, fmt.Errorf("begin dialog %q: %w", dialogID, ErrNotFound)
	}

	st := dc.state()
	inst := &Instance{ID: d.ID(), State: make(map[string]any), Version: d.Version()}
	st.Stack = append(st.Stack, inst)

	dc.a.hooks.emitBegin(ctx, &StackEvent{DialogID: d.ID(), Reason: ReasonBegin, Depth: len(st.Stack)})
	dc.a.logger.Debug("dialog begin", "dialog", d.ID(), "depth", len(st.Stack))
	return d.Begin(ctx, dc, options)
}

// Continue dispatches the turn to the active frame. An empty stack yields
// StatusEmpty; a frame whose id no longer resolves is a consistency error.
func (dc *Context) Continue(ctx context.Context) (TurnResult, error) {
	if err := dc.checkVersion(ctx); err != nil {
		return TurnResult{}, err
	}
	inst := dc.ActiveInstance()
	if inst == nil {
		return TurnResult{Status: StatusEmpty}, nil
	}
	d, ok := dc.FindDialog(inst.ID)
	if !ok {
		return TurnResult{}, newContextError(dc, "continue", fmt.Errorf("%w: %q", ErrNotFound, inst.ID))
	}
	dc.a.logger.Debug("dialog continue", "dialog", inst.ID)
	return d.Continue(ctx, dc)
}

// End pops the active frame and resumes the frame beneath it with the
// result. When the stack empties the turn completes with that result.
func (dc *Context) End(ctx context.Context, result any) (TurnResult, error) {
	if err := dc.endActive(ctx, ReasonEnd); err != nil {
		return TurnResult{}, err
	}
	inst := dc.ActiveInstance()
	if inst == nil {
		return TurnResult{Status: StatusComplete, Result: result}, nil
	}
	d, ok := dc.FindDialog(inst.ID)
	if !ok {
		return TurnResult{}, newContextError(dc, "end: resuming previous dialog", fmt.Errorf("%w: %q", ErrNotFound, inst.ID))
	}
	return d.Resume(ctx, dc, ReasonEnd, result)
}

// Replace swaps the active frame for a fresh one in a single operation. The
// frame beneath is not resumed.
func (dc *Context) Replace(ctx context.Context, dialogID string, options any) (TurnResult, error) {
	if err := dc.checkVersion(ctx); err != nil {
		return TurnResult{}, err
	}
	if err := dc.endActive(ctx, ReasonReplace); err != nil {
		return TurnResult{}, err
	}
	return dc.Begin(ctx, dialogID, options)
}

// CancelAll unwinds this level's stack, and ancestors' when cancelParents is
// set. After the first pop each further level is offered the cancellation
// event and can stop the teardown by handling it. A nil event means the
// standard KindCancel.
func (dc *Context) CancelAll(ctx context.Context, cancelParents bool, event *Event) (TurnResult, error) {
	e := Event{Kind: KindCancel}
	if event != nil {
		e = *event
	}
	e.Bubble = false

	if len(dc.state().Stack) == 0 && dc.Parent() == nil {
		return TurnResult{Status: StatusEmpty}, nil
	}

	notify := false
	cursor := dc
	for cursor != nil {
		if len(cursor.state().Stack) > 0 {
			if notify {
				handled, err := cursor.EmitEvent(ctx, e, false)
				if err != nil {
					return TurnResult{}, err
				}
				if handled {
					break
				}
			}
			if err := cursor.endActive(ctx, ReasonCancel); err != nil {
				return TurnResult{}, err
			}
		} else if cancelParents {
			cursor = cursor.Parent()
		} else {
			cursor = nil
		}
		notify = true
	}
	return TurnResult{Status: StatusCancelled}, nil
}

// Reprompt asks the active dialog to re-render. A KindReprompt event is
// offered first so another dialog may intercept; an empty stack is a no-op.
func (dc *Context) Reprompt(ctx context.Context) error {
	handled, err := dc.EmitEvent(ctx, Event{Kind: KindReprompt}, false)
	if err != nil {
		return err
	}
	if handled {
		return nil
	}
	inst := dc.ActiveInstance()
	if inst == nil {
		return nil
	}
	d, ok := dc.FindDialog(inst.ID)
	if !ok {
		return newContextError(dc, "reprompt", fmt.Errorf("%w: %q", ErrNotFound, inst.ID))
	}
	return d.Reprompt(ctx, dc.a.turn, inst)
}

// EmitEvent routes an event to the active dialog, starting from the deepest
// child level when fromLeaf is set. It reports whether any dialog handled
// the event.
func (dc *Context) EmitEvent(ctx context.Context, e Event, fromLeaf bool) (bool, error) {
	dc.a.hooks.emitEvent(ctx, e)
	target := dc
	if fromLeaf {
		for {
			child, err := target.Child()
			if err != nil {
				return false, err
			}
			if child == nil {
				break
			}
			target = child
		}
	}
	return target.dispatchEvent(ctx, e)
}

// dispatchEvent hands the event to this level's active dialog. Bubbling to
// ancestors is the dialog's own move (see Base.OnEvent).
func (dc *Context) dispatchEvent(ctx context.Context, e Event) (bool, error) {
	inst := dc.ActiveInstance()
	if inst == nil {
		return false, nil
	}
	d, ok := dc.FindDialog(inst.ID)
	if !ok {
		return false, nil
	}
	return d.OnEvent(ctx, dc, e)
}

// InstanceInfo is one introspected frame.
type InstanceInfo struct {
	ID      string `json:"id"`
	Version string `json:"version,omitempty"`
}

// Trace walks the dialog tree leaf-first and lists the frames top-to-bottom
// per level while ascending, skipping engine bookkeeping frames. The raw
// frame state is never exposed.
func (dc *Context) Trace() ([]InstanceInfo, error) {
	leaf := dc
	for {
		child, err := leaf.Child()
		if err != nil {
			return nil, err
		}
		if child == nil {
			break
		}
		leaf = child
	}

	var out []InstanceInfo
	for cursor := leaf; cursor != nil; cursor = cursor.Parent() {
		stack := cursor.state().Stack
		for i := len(stack) - 1; i >= 0; i-- {
			if strings.HasPrefix(stack[i].ID, InternalIDPrefix) {
				continue
			}
			out = append(out, InstanceInfo{ID: stack[i].ID, Version: stack[i].Version})
		}
	}
	return out, nil
}

// endActive runs the cleanup hook on the active frame and pops it.
func (dc *Context) endActive(ctx context.Context, reason Reason) error {
	st := dc.state()
	n := len(st.Stack)
	if n == 0 {
		return nil
	}
	inst := st.Stack[n-1]
	if d, ok := dc.FindDialog(inst.ID); ok {
		if err := d.End(ctx, dc.a.turn, inst, reason); err != nil {
			return fmt.Errorf("ending dialog %q: %w", inst.ID, err)
		}
	}
	st.Stack = st.Stack[:n-1]

	dc.a.hooks.emitEnd(ctx, &StackEvent{DialogID: inst.ID, Reason: reason, Depth: n - 1})
	dc.a.logger.Debug("dialog end", "dialog", inst.ID, "reason", reason.String())
	return nil
}

// checkVersion detects a persisted frame whose dialog definition changed
// since it was pushed, refreshes the stamp and emits KindVersionChanged. An
// unhandled change is logged and the turn proceeds.
func (dc *Context) checkVersion(ctx context.Context) error {
	inst := dc.ActiveInstance()
	if inst == nil {
		return nil
	}
	d, ok := dc.FindDialog(inst.ID)
	if !ok {
		return nil
	}
	current := d.Version()
	if inst.Version == current {
		return nil
	}
	previous := inst.Version
	inst.Version = current
	if previous == "" {
		// Legacy frame without a stamp; adopt silently.
		return nil
	}
	handled, err := dc.EmitEvent(ctx, Event{Kind: KindVersionChanged, Value: inst.ID, Bubble: true}, false)
	if err != nil {
		return err
	}
	if !handled {
		dc.a.logger.Warn("dialog version changed between turns", "dialog", inst.ID, "from", previous, "to", current)
	}
	return nil
}
