package state

import (
	"context"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/arbor/pkg/turn"
)

// Property is a named, typed slot inside a Store's record. T is usually a
// pointer or map type; the decoded value is re-anchored in the record so
// mutations through it survive until Save.
type Property[T any] struct {
	store *Store
	name  string
}

// NewProperty binds a property accessor to a store.
func NewProperty[T any](store *Store, name string) *Property[T] {
	return &Property[T]{store: store, name: name}
}

// Name returns the slot name within the record.
func (p *Property[T]) Name() string {
	return p.name
}

// Store returns the backing store.
func (p *Property[T]) Store() *Store {
	return p.store
}

// Get returns the current value, or the zero value when the slot is empty.
func (p *Property[T]) Get(ctx context.Context, t *turn.Context) (T, error) {
	var zero T
	rec, err := p.store.record(ctx, t)
	if err != nil {
		return zero, err
	}
	raw, ok := rec[p.name]
	if !ok || raw == nil {
		return zero, nil
	}
	return p.coerce(rec, raw)
}

// GetWithDefault returns the current value, building and anchoring the
// default when the slot is empty. The default is stored immediately, so
// mutating a returned pointer persists on the next Save.
func (p *Property[T]) GetWithDefault(ctx context.Context, t *turn.Context, build func() T) (T, error) {
	var zero T
	rec, err := p.store.record(ctx, t)
	if err != nil {
		return zero, err
	}
	raw, ok := rec[p.name]
	if !ok || raw == nil {
		v := build()
		rec[p.name] = v
		return v, nil
	}
	return p.coerce(rec, raw)
}

// Set stores a value in the slot.
func (p *Property[T]) Set(ctx context.Context, t *turn.Context, v T) error {
	rec, err := p.store.record(ctx, t)
	if err != nil {
		return err
	}
	rec[p.name] = v
	return nil
}

// Delete clears the slot.
func (p *Property[T]) Delete(ctx context.Context, t *turn.Context) error {
	rec, err := p.store.record(ctx, t)
	if err != nil {
		return err
	}
	delete(rec, p.name)
	return nil
}

// coerce turns the raw stored value into T. Fresh-from-JSON values arrive as
// maps and are decoded; already-typed values pass through. Either way the
// typed value replaces the raw one in the record, so later Gets are cheap and
// later mutations are saved.
func (p *Property[T]) coerce(rec map[string]any, raw any) (T, error) {
	if typed, ok := raw.(T); ok {
		return typed, nil
	}
	var out T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
	})
	if err != nil {
		return out, fmt.Errorf("%s: property %q: %w", p.store.Name(), p.name, err)
	}
	if err := decoder.Decode(raw); err != nil {
		return out, fmt.Errorf("%s: decoding property %q: %w", p.store.Name(), p.name, err)
	}
	rec[p.name] = out
	return out, nil
}
