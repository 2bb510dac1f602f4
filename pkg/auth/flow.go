package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/activity"
	"github.com/aretw0/arbor/pkg/turn"
)

// OAuthCardContentType identifies the sign-in card attachment.
const OAuthCardContentType = "application/vnd.microsoft.card.oauth"

// Activity names that can complete a sign-in.
const (
	EventTokenResponse  = "tokens/response"
	InvokeVerifyState   = "signin/verifyState"
	InvokeTokenExchange = "signin/tokenExchange"
)

// ActionSignIn is the button type channels render as a sign-in link.
const ActionSignIn = "signin"

// DefaultTimeout bounds how long a sign-in card stays answerable.
const DefaultTimeout = 15 * time.Minute

// magicCodePattern finds a standalone 6 digit code in message text, the kind
// users paste back from the provider's browser page. Longer digit runs do
// not match.
var magicCodePattern = regexp.MustCompile(`\b\d{6}\b`)

// CardAction is one button on an OAuth card.
type CardAction struct {
	Type  string `json:"type" mapstructure:"type"`
	Title string `json:"title,omitempty" mapstructure:"title"`
	Value string `json:"value,omitempty" mapstructure:"value"`
}

// OAuthCard is the attachment content asking the user to sign in.
type OAuthCard struct {
	Text                  string                 `json:"text,omitempty" mapstructure:"text"`
	ConnectionName        string                 `json:"connectionName,omitempty" mapstructure:"connectionName"`
	Buttons               []CardAction           `json:"buttons,omitempty" mapstructure:"buttons"`
	TokenExchangeResource *TokenExchangeResource `json:"tokenExchangeResource,omitempty" mapstructure:"tokenExchangeResource"`
	TokenPostResource     *TokenPostResource     `json:"tokenPostResource,omitempty" mapstructure:"tokenPostResource"`
}

// TokenExchangeInvokeResponse is the structured reply to a token exchange
// invoke, successful or not.
type TokenExchangeInvokeResponse struct {
	ID             string `json:"id,omitempty" mapstructure:"id"`
	ConnectionName string `json:"connectionName,omitempty" mapstructure:"connectionName"`
	FailureDetail  string `json:"failureDetail,omitempty" mapstructure:"failureDetail"`
}

// FlowSettings configure one connection's sign-in flow.
type FlowSettings struct {
	// Connection names the OAuth connection registered with the service.
	Connection string
	// Title labels the sign-in button. Empty means "Sign in".
	Title string
	// Text is the card body shown above the button.
	Text string
	// Timeout bounds how long a started sign-in stays answerable. Zero
	// means DefaultTimeout.
	Timeout time.Duration
}

// Recognition is the outcome of inspecting one inbound activity for a
// sign-in completion. A zero Recognition means the activity was not a
// completion, or was one that did not yield a token yet.
type Recognition struct {
	Succeeded bool
	Token     *TokenResponse
}

// completion classifies how an inbound activity might finish a sign-in.
type completion uint8

const (
	completionNone completion = iota
	completionTokenEvent
	completionVerifyState
	completionTokenExchange
	completionMagicCode
)

func classify(a *activity.Activity) completion {
	switch {
	case a.IsEventNamed(EventTokenResponse):
		return completionTokenEvent
	case a.IsInvokeNamed(InvokeVerifyState):
		return completionVerifyState
	case a.IsInvokeNamed(InvokeTokenExchange):
		return completionTokenExchange
	case a.IsMessage() && magicCodePattern.MatchString(a.Text):
		return completionMagicCode
	}
	return completionNone
}

// IsCompletionActivity reports whether the activity has any shape that can
// complete a sign-in. Prompts use it to decide which turns count against the
// sign-in deadline.
func IsCompletionActivity(a *activity.Activity) bool {
	return classify(a) != completionNone
}

// Flow renders the sign-in card for one connection and recognizes the
// activities that complete it. It holds no per-user state beyond exchange
// deduplication; persistence belongs to its callers.
type Flow struct {
	settings FlowSettings
	svc      TokenService
	logger   *slog.Logger

	handlers map[completion]func(context.Context, *turn.Context) (Recognition, error)

	// seenExchanges dedupes token exchange invokes by request id. Channels
	// retry the invoke, and only the first attempt should hit the service.
	seenExchanges map[string]struct{}
}

// FlowOption customizes a Flow.
type FlowOption func(*Flow)

// WithLogger wires a structured logger.
func WithLogger(logger *slog.Logger) FlowOption {
	return func(f *Flow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFlow builds a sign-in flow over a token service.
func NewFlow(settings FlowSettings, svc TokenService, opts ...FlowOption) *Flow {
	f := &Flow{
		settings:      settings,
		svc:           svc,
		logger:        logging.NewNop(),
		seenExchanges: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.handlers = map[completion]func(context.Context, *turn.Context) (Recognition, error){
		completionTokenEvent:    f.recognizeTokenEvent,
		completionVerifyState:   f.recognizeVerifyState,
		completionTokenExchange: f.recognizeTokenExchange,
		completionMagicCode:     f.recognizeMagicCode,
	}
	return f
}

// Connection returns the connection name this flow signs into.
func (f *Flow) Connection() string {
	return f.settings.Connection
}

// Timeout returns the effective sign-in window.
func (f *Flow) Timeout() time.Duration {
	if f.settings.Timeout > 0 {
		return f.settings.Timeout
	}
	return DefaultTimeout
}

// Token fetches the user's token, optionally completing the flow with a
// magic code. A missing token returns (nil, nil): not signed in is a state,
// not an error.
func (f *Flow) Token(ctx context.Context, t *turn.Context, magicCode string) (*TokenResponse, error) {
	a := t.Activity()
	token, err := f.svc.GetToken(ctx, f.settings.Connection, a.ChannelID, a.FromID(), magicCode)
	if errors.Is(err, ErrTokenNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("auth: get token for %q: %w", f.settings.Connection, err)
	}
	return token, nil
}

// SendCard asks the service for sign-in material and posts the OAuth card.
func (f *Flow) SendCard(ctx context.Context, t *turn.Context) error {
	res, err := f.svc.SignInResource(ctx, f.settings.Connection, t.Activity(), "")
	if err != nil {
		return fmt.Errorf("auth: sign-in resource for %q: %w", f.settings.Connection, err)
	}
	title := f.settings.Title
	if title == "" {
		title = "Sign in"
	}
	card := OAuthCard{
		Text:                  f.settings.Text,
		ConnectionName:        f.settings.Connection,
		Buttons:               []CardAction{{Type: ActionSignIn, Title: title, Value: res.SignInLink}},
		TokenExchangeResource: res.TokenExchangeResource,
		TokenPostResource:     res.TokenPostResource,
	}
	msg := activity.NewMessage("")
	msg.InputHint = activity.InputAccepting
	msg.Attachments = []activity.Attachment{{ContentType: OAuthCardContentType, Content: card}}
	if _, err := t.SendActivity(ctx, msg); err != nil {
		return fmt.Errorf("auth: send sign-in card: %w", err)
	}
	f.logger.Debug("sign-in card sent", "connection", f.settings.Connection)
	return nil
}

// SignOut discards the user's token for this connection.
func (f *Flow) SignOut(ctx context.Context, t *turn.Context) error {
	a := t.Activity()
	if err := f.svc.SignOut(ctx, f.settings.Connection, a.ChannelID, a.FromID()); err != nil {
		return fmt.Errorf("auth: sign out of %q: %w", f.settings.Connection, err)
	}
	return nil
}

// Recognize inspects the inbound activity for a sign-in completion. Invoke
// shapes are answered on the spot with an invoke response; a Recognition
// without a token means the caller should keep waiting.
func (f *Flow) Recognize(ctx context.Context, t *turn.Context) (Recognition, error) {
	h, ok := f.handlers[classify(t.Activity())]
	if !ok {
		return Recognition{}, nil
	}
	return h(ctx, t)
}

func (f *Flow) recognizeTokenEvent(_ context.Context, t *turn.Context) (Recognition, error) {
	var token TokenResponse
	if err := mapstructure.Decode(t.Activity().Value, &token); err != nil {
		return Recognition{}, fmt.Errorf("auth: token response payload: %w", err)
	}
	if token.Token == "" {
		return Recognition{}, nil
	}
	return Recognition{Succeeded: true, Token: &token}, nil
}

func (f *Flow) recognizeVerifyState(ctx context.Context, t *turn.Context) (Recognition, error) {
	var payload struct {
		State string `mapstructure:"state"`
	}
	// A malformed payload degrades to a silent token check.
	_ = mapstructure.Decode(t.Activity().Value, &payload)
	token, err := f.Token(ctx, t, payload.State)
	if err != nil {
		return Recognition{}, err
	}
	if token == nil {
		if err := f.respondInvoke(ctx, t, http.StatusNotFound, nil); err != nil {
			return Recognition{}, err
		}
		return Recognition{}, nil
	}
	if err := f.respondInvoke(ctx, t, http.StatusOK, nil); err != nil {
		return Recognition{}, err
	}
	return Recognition{Succeeded: true, Token: token}, nil
}

func (f *Flow) recognizeTokenExchange(ctx context.Context, t *turn.Context) (Recognition, error) {
	var req TokenExchangeRequest
	var connection struct {
		ConnectionName string `mapstructure:"connectionName"`
	}
	a := t.Activity()
	if err := mapstructure.Decode(a.Value, &req); err != nil {
		return Recognition{}, fmt.Errorf("auth: token exchange payload: %w", err)
	}
	_ = mapstructure.Decode(a.Value, &connection)

	if connection.ConnectionName != f.settings.Connection {
		body := &TokenExchangeInvokeResponse{
			ID:             req.ID,
			ConnectionName: f.settings.Connection,
			FailureDetail:  "token exchange is for a different connection",
		}
		if err := f.respondInvoke(ctx, t, http.StatusBadRequest, body); err != nil {
			return Recognition{}, err
		}
		return Recognition{}, nil
	}

	if req.ID != "" {
		if _, dup := f.seenExchanges[req.ID]; dup {
			f.logger.Debug("duplicate token exchange ignored", "id", req.ID)
			return Recognition{}, nil
		}
		f.seenExchanges[req.ID] = struct{}{}
	}

	token, err := f.svc.ExchangeToken(ctx, f.settings.Connection, a.ChannelID, a.FromID(), &req)
	if err != nil && !errors.Is(err, ErrTokenNotFound) {
		return Recognition{}, fmt.Errorf("auth: token exchange: %w", err)
	}
	if token == nil || token.Token == "" {
		body := &TokenExchangeInvokeResponse{
			ID:             req.ID,
			ConnectionName: f.settings.Connection,
			FailureDetail:  "the token exchange could not be completed, a sign-in is still required",
		}
		if err := f.respondInvoke(ctx, t, http.StatusPreconditionFailed, body); err != nil {
			return Recognition{}, err
		}
		return Recognition{}, nil
	}
	ok := &TokenExchangeInvokeResponse{ID: req.ID, ConnectionName: f.settings.Connection}
	if err := f.respondInvoke(ctx, t, http.StatusOK, ok); err != nil {
		return Recognition{}, err
	}
	return Recognition{Succeeded: true, Token: token}, nil
}

func (f *Flow) recognizeMagicCode(ctx context.Context, t *turn.Context) (Recognition, error) {
	token, err := f.Token(ctx, t, magicCodePattern.FindString(t.Activity().Text))
	if err != nil {
		return Recognition{}, err
	}
	if token == nil {
		return Recognition{}, nil
	}
	return Recognition{Succeeded: true, Token: token}, nil
}

func (f *Flow) respondInvoke(ctx context.Context, t *turn.Context, status int, body any) error {
	if _, err := t.SendActivity(ctx, activity.NewInvokeResponse(status, body)); err != nil {
		return fmt.Errorf("auth: invoke response: %w", err)
	}
	return nil
}
