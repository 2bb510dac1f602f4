package arbor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/auth"
	"github.com/aretw0/arbor/pkg/dialog"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/scope"
	"github.com/aretw0/arbor/pkg/state"
	"github.com/aretw0/arbor/pkg/turn"
)

// ErrNoSignIn is returned by the sign-in passthroughs when no handlers were
// configured.
var ErrNoSignIn = errors.New("arbor: sign-in not configured")

// Engine is the high-level entry point for the library. It owns storage, the
// dialog set and the optional sign-in machinery, and runs one turn at a time
// per conversation.
type Engine struct {
	storage      ports.Storage
	conversation *state.Store
	user         *state.Store
	dialogs      *dialog.Set
	rootID       string
	signIn       *auth.SignIn
	scopes       *scope.Registry
	locks        *keyLock
	hooks        *dialog.Hooks
	logger       *slog.Logger

	extraDialogs []dialog.Dialog
	extraScopes  []scope.Scope
	handlers     []*auth.Handler
	locker       ports.DistributedLocker
}

// Option configures the Engine.
type Option func(*Engine)

// WithStorage selects the persistence backend. Defaults to the in-memory
// store.
func WithStorage(storage ports.Storage) Option {
	return func(e *Engine) {
		e.storage = storage
	}
}

// WithLogger sets a structured logger for the engine and everything it
// builds.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithHooks attaches stack observer callbacks.
func WithHooks(hooks *dialog.Hooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithSignIn enables resumable sign-ins with the given handlers.
func WithSignIn(handlers ...*auth.Handler) Option {
	return func(e *Engine) {
		e.handlers = append(e.handlers, handlers...)
	}
}

// WithDialogs registers dialogs beyond the root and its dependencies, so
// application code can Begin them by id.
func WithDialogs(extra ...dialog.Dialog) Option {
	return func(e *Engine) {
		e.extraDialogs = append(e.extraDialogs, extra...)
	}
}

// WithScopes registers additional memory scopes next to the built-ins.
func WithScopes(extra ...scope.Scope) Option {
	return func(e *Engine) {
		e.extraScopes = append(e.extraScopes, extra...)
	}
}

// WithLocker extends per-conversation turn exclusion across replicas.
// Without it turns are serialized in-process only.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = locker
	}
}

// New builds an Engine around a root dialog. The root's dependencies are
// registered automatically; the stack begins the root whenever a turn
// arrives with no dialog in progress.
func New(root dialog.Dialog, opts ...Option) (*Engine, error) {
	if root == nil {
		return nil, errors.New("arbor: root dialog is required")
	}

	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}

	if e.storage == nil {
		e.storage = memory.NewStore()
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}

	e.conversation = state.NewConversationState(e.storage)
	e.user = state.NewUserState(e.storage)

	prop := state.NewProperty[*dialog.State](e.conversation, "DialogState")
	setOpts := []dialog.SetOption{dialog.WithLogger(e.logger)}
	if e.hooks != nil {
		setOpts = append(setOpts, dialog.WithHooks(e.hooks))
	}
	e.dialogs = dialog.NewSet(prop, setOpts...)
	e.dialogs.Add(root)
	for _, d := range e.extraDialogs {
		e.dialogs.Add(d)
	}
	if err := e.dialogs.Err(); err != nil {
		return nil, fmt.Errorf("arbor: %w", err)
	}
	e.rootID = root.ID()

	e.scopes = scope.NewRegistry(e.extraScopes...)

	if len(e.handlers) > 0 {
		signIn, err := auth.NewSignIn(auth.SignInConfig{
			Storage:  e.storage,
			Handlers: e.handlers,
			Logger:   e.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("arbor: %w", err)
		}
		e.signIn = signIn
	}

	e.locks = newKeyLock(e.locker, e.logger)
	return e, nil
}

// Dialogs exposes the dialog registry, mainly for transports and tests.
func (e *Engine) Dialogs() *dialog.Set {
	return e.dialogs
}

// Root returns the dialog the engine begins for fresh conversations.
func (e *Engine) Root() dialog.Dialog {
	d, _ := e.dialogs.Find(e.rootID)
	return d
}

// Scopes exposes the memory scope registry.
func (e *Engine) Scopes() *scope.Registry {
	return e.scopes
}

// Storage exposes the persistence backend the engine was built with.
func (e *Engine) Storage() ports.Storage {
	return e.storage
}

// ConversationState exposes the conversation-scoped state store.
func (e *Engine) ConversationState() *state.Store {
	return e.conversation
}

// UserState exposes the user-scoped state store.
func (e *Engine) UserState() *state.Store {
	return e.user
}

// RunTurn drives the dialog stack for one inbound activity: reconstruct the
// persisted stack, continue the suspended dialog (or begin the root on an
// empty stack) and save state. Turns for the same conversation are
// serialized; turns for different conversations run concurrently.
//
// When a sign-in is pending for the conversation the turn is routed into the
// sign-in state machine first. A completed sign-in hands back the activity
// that was blocked when it began, and that activity, not the token exchange
// traffic, is what the dialog stack sees.
func (e *Engine) RunTurn(ctx context.Context, t *turn.Context) (dialog.TurnResult, error) {
	if t == nil {
		return dialog.TurnResult{}, errors.New("arbor: nil turn context")
	}

	var result dialog.TurnResult
	err := e.locks.withLock(ctx, lockKey(t), func(ctx context.Context) error {
		var err error
		result, err = e.runTurn(ctx, t)
		return err
	})
	return result, err
}

func (e *Engine) runTurn(ctx context.Context, t *turn.Context) (dialog.TurnResult, error) {
	if e.signIn != nil {
		done, result, err := e.routeSignIn(ctx, t)
		if err != nil {
			return dialog.TurnResult{}, err
		}
		if done {
			if err := e.saveState(ctx, t); err != nil {
				return dialog.TurnResult{}, err
			}
			return result, nil
		}
	}

	dc, err := e.dialogs.CreateContext(ctx, t)
	if err != nil {
		return dialog.TurnResult{}, err
	}

	result, err := dc.Continue(ctx)
	if err != nil {
		return dialog.TurnResult{}, err
	}
	if result.Status == dialog.StatusEmpty {
		result, err = dc.Begin(ctx, e.rootID, nil)
		if err != nil {
			return dialog.TurnResult{}, err
		}
	}

	if err := e.saveState(ctx, t); err != nil {
		return dialog.TurnResult{}, err
	}
	return result, nil
}

// routeSignIn feeds the turn to a pending sign-in. It reports done=true when
// the sign-in consumed the turn; otherwise the turn proceeds into the dialog
// stack, with the inbound activity swapped for the sign-in's continuation
// after a success.
func (e *Engine) routeSignIn(ctx context.Context, t *turn.Context) (bool, dialog.TurnResult, error) {
	_, pending, err := e.signIn.Pending(ctx, t)
	if err != nil {
		return false, dialog.TurnResult{}, err
	}
	if !pending {
		return false, dialog.TurnResult{}, nil
	}

	res, err := e.signIn.Continue(ctx, t)
	if err != nil {
		return false, dialog.TurnResult{}, err
	}

	switch res.Status {
	case auth.StatusSuccess:
		if res.Continuation != nil {
			t.ReplaceActivity(res.Continuation)
		}
		return false, dialog.TurnResult{}, nil
	case auth.StatusFailure:
		// The record was reset; the activity that tripped the failure is
		// still a legitimate turn, so let the dialogs have it.
		return false, dialog.TurnResult{}, nil
	default:
		return true, dialog.EndOfTurn, nil
	}
}

func (e *Engine) saveState(ctx context.Context, t *turn.Context) error {
	if err := e.conversation.Save(ctx, t, false); err != nil {
		return err
	}
	return e.user.Save(ctx, t, false)
}

// SignIn starts (or resumes) the given handler's sign-in for the turn's
// user. Call it from application code, not from inside a running turn.
func (e *Engine) SignIn(ctx context.Context, t *turn.Context, handlerID string) (*auth.ContinueResult, error) {
	if e.signIn == nil {
		return nil, ErrNoSignIn
	}
	var res *auth.ContinueResult
	err := e.locks.withLock(ctx, lockKey(t), func(ctx context.Context) error {
		var err error
		res, err = e.signIn.Begin(ctx, t, handlerID)
		return err
	})
	return res, err
}

// SignOut discards the user's token and any pending sign-in for the handler.
func (e *Engine) SignOut(ctx context.Context, t *turn.Context, handlerID string) error {
	if e.signIn == nil {
		return ErrNoSignIn
	}
	return e.locks.withLock(ctx, lockKey(t), func(ctx context.Context) error {
		return e.signIn.SignOut(ctx, t, handlerID)
	})
}

// Trace reports the persisted dialog stack for the turn's conversation
// without running it. Internal frames are filtered out.
func (e *Engine) Trace(ctx context.Context, t *turn.Context) ([]dialog.InstanceInfo, error) {
	dc, err := e.dialogs.CreateContext(ctx, t)
	if err != nil {
		return nil, err
	}
	return dc.Trace()
}

// Reset deletes the conversation's persisted state, dropping any suspended
// dialog stack. User state is untouched.
func (e *Engine) Reset(ctx context.Context, t *turn.Context) error {
	return e.locks.withLock(ctx, lockKey(t), func(ctx context.Context) error {
		return e.conversation.Delete(ctx, t)
	})
}

// lockKey scopes turn exclusion to the conversation. Activities without
// addressing share one key and fail fast in state loading instead.
func lockKey(t *turn.Context) string {
	a := t.Activity()
	if a == nil || a.ConversationID() == "" {
		return ""
	}
	return a.ChannelID + "/" + a.ConversationID()
}
