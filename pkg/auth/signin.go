package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/activity"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/state"
	"github.com/aretw0/arbor/pkg/turn"
)

// Status names one stage of a handler's sign-in journey.
type Status string

const (
	// StatusBegin means no sign-in is underway.
	StatusBegin Status = "begin"
	// StatusContinue means the card was sent and a completion is awaited.
	StatusContinue Status = "continue"
	// StatusSuccess means a token was obtained.
	StatusSuccess Status = "success"
	// StatusFailure means the sign-in was abandoned and reset.
	StatusFailure Status = "failure"
)

// signInWindow bounds how long a sent card waits for its completion before
// the next continuation attempt resets the flow.
const signInWindow = 30 * time.Second

// FlowState is the persisted low-level flow marker.
type FlowState struct {
	Started bool `json:"flowStarted" mapstructure:"flowStarted"`
	// Expires is a unix millisecond deadline for the started flow.
	Expires int64 `json:"flowExpires" mapstructure:"flowExpires"`
}

// HandlerState is the persisted journey of one named sign-in handler.
type HandlerState struct {
	ID     string    `json:"id" mapstructure:"id"`
	Status Status    `json:"status" mapstructure:"status"`
	Flow   FlowState `json:"flow" mapstructure:"flow"`
	// Continuation is the activity that was interrupted by the sign-in,
	// replayed to the caller once the token arrives.
	Continuation *activity.Activity `json:"continuation,omitempty" mapstructure:"continuation"`
}

// FailureReason classifies why a sign-in was abandoned.
type FailureReason string

const (
	FailureNotStarted          FailureReason = "notStarted"
	FailureNoContinuation      FailureReason = "noContinuation"
	FailureConversationChanged FailureReason = "conversationChanged"
	FailureExpired             FailureReason = "expired"
)

// SignInError reports an abandoned sign-in and why. It travels inside a
// ContinueResult rather than as a call error; the flow was reset and the
// conversation can carry on.
type SignInError struct {
	HandlerID string
	Reason    FailureReason
}

func (e *SignInError) Error() string {
	return fmt.Sprintf("auth: sign-in %q abandoned: %s", e.HandlerID, e.Reason)
}

// ContinueResult is the outcome of driving a sign-in one step.
type ContinueResult struct {
	Status Status
	// Token is set on success.
	Token *TokenResponse
	// Continuation is the activity that was blocked when the sign-in
	// began, returned on success so the caller can re-process it.
	Continuation *activity.Activity
	// Failure describes an abandoned sign-in when Status is failure.
	Failure *SignInError
}

// Handler pairs a flow with a stable id and an optional success callback.
type Handler struct {
	ID   string
	Flow *Flow
	// OnSuccess runs once per obtained token, before the result returns.
	OnSuccess func(ctx context.Context, t *turn.Context, token *TokenResponse) error
}

// Errors reported by SignIn operations.
var (
	ErrUnknownHandler   = errors.New("auth: unknown sign-in handler")
	ErrNoPendingSignIn  = errors.New("auth: no sign-in in progress")
	ErrDuplicateHandler = errors.New("auth: duplicate sign-in handler id")
)

// SignInConfig wires the state machine's collaborators.
type SignInConfig struct {
	// Storage persists handler records.
	Storage ports.Storage
	// Handlers in routing order. Ids must be unique.
	Handlers []*Handler
	// Logger is optional.
	Logger *slog.Logger
	// Now overrides the time source, for tests.
	Now func() time.Time
}

// SignIn runs resumable sign-ins across turns and processes. Records are
// keyed per channel, conversation and user, read and written wholesale with
// last-writer-wins semantics; callers serialize turns per conversation.
type SignIn struct {
	handlers map[string]*Handler
	order    []string
	store    *state.Store
	prop     *state.Property[map[string]*HandlerState]
	logger   *slog.Logger
	now      func() time.Time
}

// NewSignIn builds the sign-in state machine.
func NewSignIn(cfg SignInConfig) (*SignIn, error) {
	if cfg.Storage == nil {
		return nil, errors.New("auth: sign-in requires storage")
	}
	s := &SignIn{
		handlers: make(map[string]*Handler, len(cfg.Handlers)),
		store:    state.NewStore(cfg.Storage, "signin", signInKey),
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.prop = state.NewProperty[map[string]*HandlerState](s.store, "handlers")
	for _, h := range cfg.Handlers {
		if h == nil || h.ID == "" || h.Flow == nil {
			return nil, errors.New("auth: sign-in handler needs an id and a flow")
		}
		if _, dup := s.handlers[h.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateHandler, h.ID)
		}
		s.handlers[h.ID] = h
		s.order = append(s.order, h.ID)
	}
	return s, nil
}

func signInKey(t *turn.Context) (string, error) {
	a := t.Activity()
	if a.ChannelID == "" || a.ConversationID() == "" || a.FromID() == "" {
		return "", state.ErrBadReference
	}
	return fmt.Sprintf("auth/%s/%s/%s", a.ChannelID, a.ConversationID(), a.FromID()), nil
}

// Begin starts (or silently completes) a sign-in for the named handler. When
// the user already has a token the result is an immediate success and
// nothing is sent; otherwise the card goes out and the inbound activity is
// parked as the continuation.
func (s *SignIn) Begin(ctx context.Context, t *turn.Context, handlerID string) (*ContinueResult, error) {
	h, ok := s.handlers[handlerID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownHandler, handlerID)
	}

	token, err := h.Flow.Token(ctx, t, "")
	if err != nil {
		return nil, err
	}
	if token != nil {
		return s.succeed(ctx, t, h, &HandlerState{ID: h.ID}, nil, token)
	}

	if err := h.Flow.SendCard(ctx, t); err != nil {
		return nil, err
	}
	rec, err := s.records(ctx, t)
	if err != nil {
		return nil, err
	}
	rec[h.ID] = &HandlerState{
		ID:     h.ID,
		Status: StatusContinue,
		Flow: FlowState{
			Started: true,
			Expires: s.now().Add(signInWindow).UnixMilli(),
		},
		Continuation: t.Activity().Clone(),
	}
	if err := s.persist(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Debug("sign-in started", "handler", h.ID)
	return &ContinueResult{Status: StatusContinue}, nil
}

// Continue drives the pending sign-in with the inbound activity. It returns
// ErrNoPendingSignIn when no handler record is awaiting completion; use
// Pending to route first.
func (s *SignIn) Continue(ctx context.Context, t *turn.Context) (*ContinueResult, error) {
	id, st, err := s.load(ctx, t, "")
	if err != nil {
		return nil, err
	}
	h, ok := s.handlers[id]
	if !ok {
		// The deployment no longer knows this handler. Drop the record so
		// the conversation is not wedged.
		if err := s.reset(ctx, t, nil, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %q", ErrUnknownHandler, id)
	}
	if st.Status == StatusSuccess {
		token, err := h.Flow.Token(ctx, t, "")
		if err != nil {
			return nil, err
		}
		return s.succeed(ctx, t, h, st, st.Continuation, token)
	}

	recog, err := h.Flow.Recognize(ctx, t)
	if err != nil {
		return nil, err
	}
	if recog.Succeeded && recog.Token != nil {
		return s.succeed(ctx, t, h, st, st.Continuation, recog.Token)
	}

	reason, abandoned := s.classify(t, st)
	if !abandoned {
		// No token yet, nothing wrong either. Keep waiting.
		return &ContinueResult{Status: StatusContinue}, nil
	}
	if err := s.reset(ctx, t, h, id); err != nil {
		return nil, err
	}
	fail := &SignInError{HandlerID: id, Reason: reason}
	s.logger.Warn("sign-in abandoned", "handler", id, "reason", string(reason))
	return &ContinueResult{Status: StatusFailure, Failure: fail}, nil
}

// Pending reports the handler awaiting a completion in this conversation,
// if any.
func (s *SignIn) Pending(ctx context.Context, t *turn.Context) (string, bool, error) {
	rec, err := s.records(ctx, t)
	if err != nil {
		return "", false, err
	}
	for _, id := range s.order {
		if st, ok := rec[id]; ok && st != nil && st.Status == StatusContinue {
			return id, true, nil
		}
	}
	for id, st := range rec {
		if st != nil && st.Status == StatusContinue {
			return id, true, nil
		}
	}
	return "", false, nil
}

// SignOut discards the token and the persisted record for a handler.
func (s *SignIn) SignOut(ctx context.Context, t *turn.Context, handlerID string) error {
	h, ok := s.handlers[handlerID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownHandler, handlerID)
	}
	return s.reset(ctx, t, h, handlerID)
}

// load rehydrates the handler record by explicit id, or by scanning for the
// record still mid-journey. A record whose low-level flow marker shows a
// start this machine never recorded is adopted as already signed in rather
// than prompting again.
func (s *SignIn) load(ctx context.Context, t *turn.Context, explicitID string) (string, *HandlerState, error) {
	rec, err := s.records(ctx, t)
	if err != nil {
		return "", nil, err
	}
	if explicitID != "" {
		st, ok := rec[explicitID]
		if !ok || st == nil {
			st = &HandlerState{ID: explicitID, Status: StatusBegin}
			rec[explicitID] = st
		}
		s.adopt(st)
		return explicitID, st, nil
	}
	for _, id := range s.order {
		if st, ok := rec[id]; ok && st != nil && st.Status != StatusSuccess {
			s.adopt(st)
			return id, st, nil
		}
	}
	for id, st := range rec {
		if st != nil && st.Status != StatusSuccess {
			s.adopt(st)
			return id, st, nil
		}
	}
	return "", nil, ErrNoPendingSignIn
}

// adopt fixes up records whose flow marker was written without a status, a
// start that happened outside this machine.
func (s *SignIn) adopt(st *HandlerState) {
	if st.Status == "" || st.Status == StatusBegin {
		if st.Flow.Started {
			st.Status = StatusSuccess
			return
		}
		st.Status = StatusBegin
	}
}

func (s *SignIn) classify(t *turn.Context, st *HandlerState) (FailureReason, bool) {
	switch {
	case !st.Flow.Started:
		return FailureNotStarted, true
	case st.Continuation == nil:
		return FailureNoContinuation, true
	case st.Continuation.ConversationID() != t.Activity().ConversationID():
		return FailureConversationChanged, true
	case s.now().UnixMilli() > st.Flow.Expires:
		return FailureExpired, true
	}
	return "", false
}

// succeed records the success, fires the callback and returns the parked
// continuation.
func (s *SignIn) succeed(ctx context.Context, t *turn.Context, h *Handler, st *HandlerState, continuation *activity.Activity, token *TokenResponse) (*ContinueResult, error) {
	rec, err := s.records(ctx, t)
	if err != nil {
		return nil, err
	}
	st.Status = StatusSuccess
	st.Continuation = nil
	rec[h.ID] = st
	if err := s.persist(ctx, t); err != nil {
		return nil, err
	}
	if h.OnSuccess != nil && token != nil {
		if err := h.OnSuccess(ctx, t, token); err != nil {
			return nil, fmt.Errorf("auth: sign-in success callback: %w", err)
		}
	}
	s.logger.Debug("sign-in succeeded", "handler", h.ID)
	return &ContinueResult{Status: StatusSuccess, Token: token, Continuation: continuation}, nil
}

// reset signs the user out and deletes the handler record. Sign-out is best
// effort; a stale remote token only means an extra card later.
func (s *SignIn) reset(ctx context.Context, t *turn.Context, h *Handler, id string) error {
	if h != nil {
		if err := h.Flow.SignOut(ctx, t); err != nil {
			s.logger.Warn("sign-out during reset failed", "handler", id, "error", err)
		}
	}
	rec, err := s.records(ctx, t)
	if err != nil {
		return err
	}
	delete(rec, id)
	return s.persist(ctx, t)
}

func (s *SignIn) records(ctx context.Context, t *turn.Context) (map[string]*HandlerState, error) {
	return s.prop.GetWithDefault(ctx, t, func() map[string]*HandlerState {
		return map[string]*HandlerState{}
	})
}

func (s *SignIn) persist(ctx context.Context, t *turn.Context) error {
	return s.store.Save(ctx, t, false)
}
