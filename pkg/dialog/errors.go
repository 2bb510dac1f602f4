package dialog

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a dialog id cannot be resolved in the set or
// any ancestor set.
var ErrNotFound = errors.New("dialog not found")

// ErrNoActiveDialog is returned when an operation needs an active frame and
// the stack is empty.
var ErrNoActiveDialog = errors.New("no active dialog")

// ErrNoStateProperty is returned by Set.CreateContext when the set was built
// without a bound dialog-state property.
var ErrNoStateProperty = errors.New("dialog set has no state property")

// ErrInvalidDialog is returned when a nil or unidentifiable dialog is added
// to a set.
var ErrInvalidDialog = errors.New("invalid dialog")

// ContextError is a stack consistency failure: the persisted stack and the
// registered dialogs disagree. It snapshots enough of the stack to diagnose
// which deploy or data migration broke the invariant.
type ContextError struct {
	Op             string
	ActiveID       string
	ParentActiveID string
	Stack          []string
	Err            error
}

func (e *ContextError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "dialog: %s: %v", e.Op, e.Err)
	if e.ActiveID != "" {
		fmt.Fprintf(&b, " (active=%s", e.ActiveID)
	} else {
		b.WriteString(" (active=<none>")
	}
	if e.ParentActiveID != "" {
		fmt.Fprintf(&b, " parentActive=%s", e.ParentActiveID)
	}
	fmt.Fprintf(&b, " stack=[%s])", strings.Join(e.Stack, ", "))
	return b.String()
}

func (e *ContextError) Unwrap() error { return e.Err }

// newContextError snapshots the cursor's view of the stack at failure time.
func newContextError(dc *Context, op string, err error) *ContextError {
	ce := &ContextError{Op: op, Err: err}
	if dc != nil {
		if inst := dc.ActiveInstance(); inst != nil {
			ce.ActiveID = inst.ID
		}
		if parent := dc.Parent(); parent != nil {
			if inst := parent.ActiveInstance(); inst != nil {
				ce.ParentActiveID = inst.ID
			}
		}
		for _, inst := range dc.StackInstances() {
			ce.Stack = append(ce.Stack, inst.ID)
		}
	}
	return ce
}
