package dialog

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strconv"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/state"
	"github.com/aretw0/arbor/pkg/turn"
)

// SetOption configures a Set.
type SetOption func(*Set)

// WithLogger wires a structured logger into the set and every context it
// creates.
func WithLogger(logger *slog.Logger) SetOption {
	return func(s *Set) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHooks attaches stack observer callbacks.
func WithHooks(hooks *Hooks) SetOption {
	return func(s *Set) {
		s.hooks = hooks
	}
}

// Set is a registry of related dialogs. Ids are unique within a set; adding
// a different dialog under a taken id renames the newcomer with the smallest
// free numeric suffix. A set built without a state property can still hand
// out versions, but cannot create contexts.
type Set struct {
	prop    *state.Property[*State]
	dialogs map[string]Dialog
	order   []string
	version string
	err     error
	logger  *slog.Logger
	hooks   *Hooks
}

// NewSet builds a registry bound to the persisted dialog-state property.
// Passing a nil property is allowed for version-only sets.
func NewSet(prop *state.Property[*State], opts ...SetOption) *Set {
	s := &Set{
		prop:    prop,
		dialogs: make(map[string]Dialog),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a dialog and, recursively, everything it declares as a
// dependency. It is chainable; configuration problems are deferred to Err so
// builder-style wiring stays readable.
func (s *Set) Add(d Dialog) *Set {
	s.version = ""
	s.add(d, make(map[Dialog]struct{}))
	return s
}

func (s *Set) add(d Dialog, visited map[Dialog]struct{}) {
	if d == nil {
		s.fail(fmt.Errorf("%w: nil dialog", ErrInvalidDialog))
		return
	}
	if d.ID() == "" {
		s.fail(fmt.Errorf("%w: dialog without id", ErrInvalidDialog))
		return
	}
	if _, seen := visited[d]; seen {
		return
	}
	visited[d] = struct{}{}

	if existing, ok := s.dialogs[d.ID()]; ok {
		// Re-adding the exact same instance is a no-op; a different
		// instance gets renamed to the first free suffixed id.
		if existing == d {
			return
		}
		base := d.ID()
		for suffix := 2; ; suffix++ {
			candidate := base + strconv.Itoa(suffix)
			if _, taken := s.dialogs[candidate]; !taken {
				d.SetID(candidate)
				break
			}
		}
	}

	s.dialogs[d.ID()] = d
	s.order = append(s.order, d.ID())

	if provider, ok := d.(DependencyProvider); ok {
		for _, dep := range provider.Dependencies() {
			s.add(dep, visited)
		}
	}
}

func (s *Set) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}

// Err reports the first configuration error recorded by Add.
func (s *Set) Err() error {
	return s.err
}

// Find resolves a dialog by id.
func (s *Set) Find(id string) (Dialog, bool) {
	d, ok := s.dialogs[id]
	return d, ok
}

// IDs lists the registered dialog ids in registration order.
func (s *Set) IDs() []string {
	return append([]string(nil), s.order...)
}

// Version returns the composite version of all members, memoized until the
// next Add. It changes exactly when a member's version or the membership
// changes, making it a cheap deploy-time fingerprint.
func (s *Set) Version() string {
	if s.version == "" {
		h := fnv.New64a()
		for _, id := range s.order {
			_, _ = h.Write([]byte("|" + s.dialogs[id].Version()))
		}
		s.version = fmt.Sprintf("%x", h.Sum64())
	}
	return s.version
}

// CreateContext loads the persisted stack and returns the root cursor for
// this turn. The stack record is created lazily on first use.
func (s *Set) CreateContext(ctx context.Context, t *turn.Context) (*Context, error) {
	if s.err != nil {
		return nil, fmt.Errorf("dialog set: %w", s.err)
	}
	if s.prop == nil {
		return nil, ErrNoStateProperty
	}
	st, err := s.prop.GetWithDefault(ctx, t, func() *State { return &State{} })
	if err != nil {
		return nil, fmt.Errorf("dialog set: loading state: %w", err)
	}
	return newRootContext(s, st, t), nil
}
