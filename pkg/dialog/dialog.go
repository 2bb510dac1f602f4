package dialog

import (
	"context"

	"github.com/aretw0/arbor/pkg/turn"
)

// TurnStatus describes what the dialog stack did with a turn.
type TurnStatus string

const (
	// StatusEmpty means the stack was empty and nothing ran.
	StatusEmpty TurnStatus = "empty"
	// StatusWaiting means a dialog suspended; persist and end the turn.
	StatusWaiting TurnStatus = "waiting"
	// StatusComplete means the last dialog popped; Result carries its value.
	StatusComplete TurnStatus = "complete"
	// StatusCancelled means the stack was torn down by a cancellation.
	StatusCancelled TurnStatus = "cancelled"
)

func (s TurnStatus) String() string { return string(s) }

// TurnResult is the outcome of driving the stack for one turn.
type TurnResult struct {
	Status TurnStatus
	Result any
}

// EndOfTurn is the canonical "suspend here" result.
var EndOfTurn = TurnResult{Status: StatusWaiting}

// Reason explains why a dialog method is being invoked.
type Reason string

const (
	ReasonBegin    Reason = "beginCalled"
	ReasonContinue Reason = "continueCalled"
	ReasonEnd      Reason = "endCalled"
	ReasonReplace  Reason = "replaceCalled"
	ReasonCancel   Reason = "cancelCalled"
	ReasonNextStep Reason = "nextCalled"
)

func (r Reason) String() string { return string(r) }

// Instance is one persisted stack frame. State is an opaque record owned by
// the frame's dialog; Version enables change detection across deploys.
type Instance struct {
	ID      string         `json:"id" mapstructure:"id"`
	State   map[string]any `json:"state" mapstructure:"state"`
	Version string         `json:"version,omitempty" mapstructure:"version"`
}

// State is the persisted dialog stack for one dialog set.
type State struct {
	Stack []*Instance `json:"dialogStack" mapstructure:"dialogStack"`
}

// Dialog is the capability interface of a conversational step. Embed Base to
// get defaults for everything except Begin.
type Dialog interface {
	// ID identifies the dialog within its Set. Set mutates it on collision.
	ID() string
	SetID(id string)

	// Version fingerprints the dialog's definition. A mismatch with a
	// persisted frame emits KindVersionChanged before dispatch.
	Version() string

	// Begin runs when a fresh frame for this dialog is pushed.
	Begin(ctx context.Context, dc *Context, options any) (TurnResult, error)

	// Continue runs when a later turn reaches this dialog's frame.
	Continue(ctx context.Context, dc *Context) (TurnResult, error)

	// Resume runs when a child dialog this frame started has ended.
	Resume(ctx context.Context, dc *Context, reason Reason, result any) (TurnResult, error)

	// Reprompt re-renders whatever this dialog is waiting on.
	Reprompt(ctx context.Context, t *turn.Context, inst *Instance) error

	// End is the cleanup hook invoked when the frame pops for any reason.
	End(ctx context.Context, t *turn.Context, inst *Instance, reason Reason) error

	// OnEvent gives the dialog a chance to handle an event. Returning true
	// stops propagation.
	OnEvent(ctx context.Context, dc *Context, e Event) (bool, error)
}

// Container is a dialog hosting an inner stack. The stack machinery uses it
// to descend into child contexts for leaf-first event dispatch and
// introspection.
type Container interface {
	Dialog
	CreateChildContext(dc *Context) (*Context, error)
}

// DependencyProvider lets a dialog register the collaborators it pushes by
// id, so adding it to a Set is enough to make those resolvable.
type DependencyProvider interface {
	Dependencies() []Dialog
}
