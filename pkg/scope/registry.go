package scope

import (
	"fmt"
	"sort"

	"github.com/aretw0/arbor/pkg/dialog"
)

// Registry holds the addressable scopes. The zero value is unusable; build
// one with NewRegistry.
type Registry struct {
	scopes map[string]Scope
}

// NewRegistry registers the built-in scopes plus any extras. An extra with
// a built-in's name replaces it.
func NewRegistry(extra ...Scope) *Registry {
	r := &Registry{scopes: make(map[string]Scope)}
	for _, s := range []Scope{This{}, Turn{}, Class{}, DialogClass{}, DialogContext{}} {
		r.scopes[s.Name()] = s
	}
	for _, s := range extra {
		if s != nil && s.Name() != "" {
			r.scopes[s.Name()] = s
		}
	}
	return r
}

// Resolve returns the named scope.
func (r *Registry) Resolve(name string) (Scope, bool) {
	s, ok := r.scopes[name]
	return s, ok
}

// Names lists the registered scope names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.scopes))
	for name := range r.scopes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Get resolves a scope and reads its record.
func (r *Registry) Get(dc *dialog.Context, name string) (map[string]any, error) {
	s, ok := r.scopes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScope, name)
	}
	return s.Get(dc)
}

// Set resolves a scope and writes its record, enforcing settability.
func (r *Registry) Set(dc *dialog.Context, name string, value map[string]any) error {
	s, ok := r.scopes[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownScope, name)
	}
	if !s.Settable() {
		return fmt.Errorf("scope %q: %w", name, ErrReadOnly)
	}
	return s.Set(dc, value)
}
