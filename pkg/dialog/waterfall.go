package dialog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Frame-state keys used by Waterfall.
const (
	keyOptions   = "options"
	keyValues    = "values"
	keyStepIndex = "stepIndex"
)

// WaterfallStep is one step of a waterfall. It receives the step cursor and
// either waits (usually by beginning a prompt), jumps ahead with Next, or
// ends the waterfall through the embedded context.
type WaterfallStep func(ctx context.Context, step *StepContext) (TurnResult, error)

// StepContext is the cursor handed to a waterfall step. It embeds the dialog
// context, so steps begin child dialogs and end the waterfall through it
// directly.
type StepContext struct {
	*Context

	// Index is the zero-based position of the executing step.
	Index int
	// Reason tells the step why it is running.
	Reason Reason
	// Result carries what the previous step or its child dialog produced.
	Result any
	// Values persists across the steps of this waterfall frame.
	Values map[string]any
	// Options is whatever Begin was called with.
	Options any

	waterfall  *Waterfall
	nextCalled bool
}

// Next skips to the following step within the same turn, handing it a
// result. Calling it twice in one step is a bug and errors out.
func (sc *StepContext) Next(ctx context.Context, result any) (TurnResult, error) {
	if sc.nextCalled {
		return TurnResult{}, fmt.Errorf("waterfall %q step %d: Next called twice", sc.waterfall.ID(), sc.Index)
	}
	sc.nextCalled = true
	return sc.waterfall.resume(ctx, sc.Context, ReasonNextStep, result)
}

// Waterfall runs a fixed sequence of steps, suspending between them
// whenever a step waits on the user. The persisted frame carries the step
// index, the Begin options and a values bag shared by all steps.
type Waterfall struct {
	Base

	steps []WaterfallStep
}

// NewWaterfall builds a waterfall from its steps. More can be appended with
// AddStep before first use.
func NewWaterfall(id string, steps ...WaterfallStep) *Waterfall {
	return &Waterfall{Base: NewBase(id), steps: steps}
}

// AddStep appends a step. Chainable.
func (w *Waterfall) AddStep(step WaterfallStep) *Waterfall {
	w.steps = append(w.steps, step)
	return w
}

// StepCount reports how many steps the waterfall has.
func (w *Waterfall) StepCount() int {
	return len(w.steps)
}

// Version changes when steps are added or removed, which is exactly the
// deploy hazard for suspended waterfall frames: the persisted step index
// would point somewhere else.
func (w *Waterfall) Version() string {
	return fmt.Sprintf("%s:%d", w.ID(), len(w.steps))
}

// Begin seeds the frame state and runs the first step.
func (w *Waterfall) Begin(ctx context.Context, dc *Context, options any) (TurnResult, error) {
	inst := dc.ActiveInstance()
	if inst == nil {
		return TurnResult{}, newContextError(dc, "waterfall begin", ErrNoActiveDialog)
	}
	if inst.State == nil {
		inst.State = make(map[string]any)
	}
	instanceID := uuid.NewString()
	inst.State[keyOptions] = options
	inst.State[keyValues] = map[string]any{"instanceId": instanceID}
	dc.Logger().Debug("waterfall start", "dialog", w.ID(), "instance", instanceID)
	return w.runStep(ctx, dc, 0, ReasonBegin, nil)
}

// Continue treats the user's message text as the pending step's result.
// Non-message activities leave the waterfall suspended.
func (w *Waterfall) Continue(ctx context.Context, dc *Context) (TurnResult, error) {
	if !dc.Turn().Activity().IsMessage() {
		return EndOfTurn, nil
	}
	return w.resume(ctx, dc, ReasonContinue, dc.Turn().Activity().Text)
}

// Resume advances to the step after the one that pushed the finished child.
func (w *Waterfall) Resume(ctx context.Context, dc *Context, reason Reason, result any) (TurnResult, error) {
	return w.resume(ctx, dc, reason, result)
}

func (w *Waterfall) resume(ctx context.Context, dc *Context, reason Reason, result any) (TurnResult, error) {
	inst := dc.ActiveInstance()
	if inst == nil {
		return TurnResult{}, newContextError(dc, "waterfall resume", ErrNoActiveDialog)
	}
	return w.runStep(ctx, dc, stepIndexOf(inst)+1, reason, result)
}

func (w *Waterfall) runStep(ctx context.Context, dc *Context, index int, reason Reason, result any) (TurnResult, error) {
	if index >= len(w.steps) {
		// Past the last step: the waterfall is done and its parent gets
		// the final result.
		return dc.End(ctx, result)
	}
	inst := dc.ActiveInstance()
	if inst == nil {
		return TurnResult{}, newContextError(dc, "waterfall step", ErrNoActiveDialog)
	}
	if inst.State == nil {
		inst.State = make(map[string]any)
	}
	inst.State[keyStepIndex] = index

	step := &StepContext{
		Context:   dc,
		Index:     index,
		Reason:    reason,
		Result:    result,
		Values:    w.valuesOf(inst),
		Options:   inst.State[keyOptions],
		waterfall: w,
	}
	dc.Logger().Debug("waterfall step", "dialog", w.ID(), "step", index+1, "steps", len(w.steps))
	return w.steps[index](ctx, step)
}

// valuesOf returns the shared values bag, anchored in the frame so step
// mutations persist.
func (w *Waterfall) valuesOf(inst *Instance) map[string]any {
	if v, ok := inst.State[keyValues].(map[string]any); ok && v != nil {
		return v
	}
	v := make(map[string]any)
	inst.State[keyValues] = v
	return v
}

// stepIndexOf reads the persisted index, tolerating the numeric widening a
// JSON round trip applies.
func stepIndexOf(inst *Instance) int {
	switch v := inst.State[keyStepIndex].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
