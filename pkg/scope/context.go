package scope

import (
	"fmt"

	"github.com/aretw0/arbor/pkg/dialog"
)

// DialogContext resolves to a read-only description of the dialog stack:
//
//	{ "stack": []string, "activeDialog": id or nil, "parent": id or nil }
//
// The stack lists the whole tree leaf-first, engine bookkeeping frames
// filtered out.
type DialogContext struct{}

// Name implements Scope.
func (DialogContext) Name() string { return "dialogContext" }

// Settable implements Scope.
func (DialogContext) Settable() bool { return false }

// Get implements Scope.
func (DialogContext) Get(dc *dialog.Context) (map[string]any, error) {
	trace, err := dc.Trace()
	if err != nil {
		return nil, fmt.Errorf("scope %q: %w", DialogContext{}.Name(), err)
	}
	stack := make([]string, 0, len(trace))
	for _, info := range trace {
		stack = append(stack, info.ID)
	}

	out := map[string]any{
		"stack":        stack,
		"activeDialog": nil,
		"parent":       nil,
	}
	if inst := dc.ActiveInstance(); inst != nil {
		out["activeDialog"] = inst.ID
	}
	if p := dc.Parent(); p != nil {
		if inst := p.ActiveInstance(); inst != nil {
			out["parent"] = inst.ID
		}
	}
	return out, nil
}

// Set implements Scope.
func (DialogContext) Set(dc *dialog.Context, value map[string]any) error {
	return fmt.Errorf("scope %q: %w", DialogContext{}.Name(), ErrReadOnly)
}
