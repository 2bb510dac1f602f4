package scope

import (
	"errors"
	"fmt"

	"github.com/aretw0/arbor/pkg/dialog"
)

// Errors reported by scope operations.
var (
	ErrReadOnly     = errors.New("scope: read-only")
	ErrNilValue     = errors.New("scope: value must not be nil")
	ErrUnknownScope = errors.New("scope: unknown scope")
)

// Scope is one named view over conversation memory. Get never fails on
// empty structures; it degrades to an empty record so expressions over
// unset memory read as absent rather than erroring.
type Scope interface {
	Name() string
	Settable() bool
	Get(dc *dialog.Context) (map[string]any, error)
	Set(dc *dialog.Context, value map[string]any) error
}

// This resolves to the active frame's own state.
type This struct{}

// Name implements Scope.
func (This) Name() string { return "this" }

// Settable implements Scope.
func (This) Settable() bool { return true }

// Get returns the active frame's state, or an empty record when the stack
// is empty. The returned map is live; mutations persist with the frame.
func (This) Get(dc *dialog.Context) (map[string]any, error) {
	inst := dc.ActiveInstance()
	if inst == nil {
		return map[string]any{}, nil
	}
	if inst.State == nil {
		inst.State = make(map[string]any)
	}
	return inst.State, nil
}

// Set replaces the active frame's state. It needs a frame to write to and
// refuses nil, which would silently drop the slot on the next save.
func (This) Set(dc *dialog.Context, value map[string]any) error {
	if value == nil {
		return fmt.Errorf("scope %q: %w", This{}.Name(), ErrNilValue)
	}
	inst := dc.ActiveInstance()
	if inst == nil {
		return fmt.Errorf("scope %q: %w", This{}.Name(), dialog.ErrNoActiveDialog)
	}
	inst.State = value
	return nil
}

// Turn resolves to the per-turn scratch record on the turn context. It
// starts empty every turn and is never persisted.
type Turn struct{}

// Name implements Scope.
func (Turn) Name() string { return "turn" }

// Settable implements Scope.
func (Turn) Settable() bool { return true }

// Get returns the live turn record, created lazily.
func (Turn) Get(dc *dialog.Context) (map[string]any, error) {
	return dc.Turn().Memory(), nil
}

// Set replaces the turn record's contents in place, so earlier references
// to the record observe the new values.
func (Turn) Set(dc *dialog.Context, value map[string]any) error {
	if value == nil {
		return fmt.Errorf("scope %q: %w", Turn{}.Name(), ErrNilValue)
	}
	mem := dc.Turn().Memory()
	for k := range mem {
		delete(mem, k)
	}
	for k, v := range value {
		mem[k] = v
	}
	return nil
}
