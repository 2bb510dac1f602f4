package scope

import (
	"fmt"
	"reflect"

	"github.com/aretw0/arbor/pkg/dialog"
)

// Evaluator marks a dialog field whose value depends on live conversation
// state. Class snapshots call Evaluate instead of copying the field.
type Evaluator interface {
	Evaluate(dc *dialog.Context) (any, error)
}

// Class resolves to a snapshot of the active dialog's exported fields:
// configuration the dialog was built with, readable from expressions.
// Field names are exposed lowerCamel, funcs and channels are skipped.
type Class struct{}

// Name implements Scope.
func (Class) Name() string { return "class" }

// Settable implements Scope.
func (Class) Settable() bool { return false }

// Get implements Scope.
func (Class) Get(dc *dialog.Context) (map[string]any, error) {
	return classSnapshot(dc, dc)
}

// Set implements Scope.
func (Class) Set(dc *dialog.Context, value map[string]any) error {
	return fmt.Errorf("scope %q: %w", Class{}.Name(), ErrReadOnly)
}

// DialogClass is Class bound to the defining dialog: inside a container it
// walks to the parent context's active dialog, so a child's expressions see
// the configuration of the dialog that contains it.
type DialogClass struct{}

// Name implements Scope.
func (DialogClass) Name() string { return "dialogClass" }

// Settable implements Scope.
func (DialogClass) Settable() bool { return false }

// Get implements Scope.
func (DialogClass) Get(dc *dialog.Context) (map[string]any, error) {
	from := dc
	if p := dc.Parent(); p != nil && p.ActiveInstance() != nil {
		from = p
	}
	return classSnapshot(dc, from)
}

// Set implements Scope.
func (DialogClass) Set(dc *dialog.Context, value map[string]any) error {
	return fmt.Errorf("scope %q: %w", DialogClass{}.Name(), ErrReadOnly)
}

// classSnapshot reflects over the active dialog of from, resolving
// Evaluator fields against dc. No active dialog snapshots as empty.
func classSnapshot(dc, from *dialog.Context) (map[string]any, error) {
	inst := from.ActiveInstance()
	if inst == nil {
		return map[string]any{}, nil
	}
	d, ok := from.FindDialog(inst.ID)
	if !ok {
		return map[string]any{}, nil
	}

	v := reflect.ValueOf(d)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return map[string]any{}, nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return map[string]any{}, nil
	}

	out := make(map[string]any)
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Anonymous {
			continue
		}
		fv := v.Field(i)
		switch fv.Kind() {
		case reflect.Func, reflect.Chan, reflect.UnsafePointer:
			continue
		}
		val := fv.Interface()
		if ev, ok := val.(Evaluator); ok {
			resolved, err := ev.Evaluate(dc)
			if err != nil {
				return nil, fmt.Errorf("scope: evaluating %s.%s: %w", inst.ID, f.Name, err)
			}
			out[lowerFirst(f.Name)] = resolved
			continue
		}
		out[lowerFirst(f.Name)] = val
	}
	return out, nil
}

func lowerFirst(name string) string {
	if name == "" {
		return name
	}
	b := []byte(name)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}
