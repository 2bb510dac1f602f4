package prompt

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/arbor/pkg/activity"
	"github.com/aretw0/arbor/pkg/auth"
	"github.com/aretw0/arbor/pkg/dialog"
	"github.com/aretw0/arbor/pkg/turn"
)

// keyExpires holds the sign-in deadline in the prompt frame, unix millis.
const keyExpires = "expires"

// OAuth prompts the user to sign in and ends with the token response. The
// heavy lifting, card rendering and completion recognition, lives in
// auth.Flow; the prompt adds the frame bookkeeping: a hard deadline, attempt
// counting and validation like any other prompt.
//
// The deadline only trips on activities that could have completed the flow,
// so unrelated events never kill a pending sign-in.
type OAuth struct {
	dialog.Base
	flow                *auth.Flow
	validator           Validator
	endOnInvalidMessage bool
	now                 func() time.Time
}

// NewOAuth builds a sign-in prompt over a flow.
func NewOAuth(id string, flow *auth.Flow) *OAuth {
	return &OAuth{Base: dialog.NewBase(id), flow: flow, now: time.Now}
}

// WithValidator installs a validation gate over recognized tokens.
func (p *OAuth) WithValidator(v Validator) *OAuth {
	p.validator = v
	return p
}

// WithEndOnInvalidMessage makes the first invalid message end the prompt
// with a nil result instead of retrying.
func (p *OAuth) WithEndOnInvalidMessage() *OAuth {
	p.endOnInvalidMessage = true
	return p
}

// WithClock overrides the time source, for tests.
func (p *OAuth) WithClock(now func() time.Time) *OAuth {
	if now != nil {
		p.now = now
	}
	return p
}

// Begin checks for an existing token and ends immediately when one is
// there; otherwise it sends the sign-in card and suspends.
func (p *OAuth) Begin(ctx context.Context, dc *dialog.Context, options any) (dialog.TurnResult, error) {
	opts, err := normalizeOptions(options)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("prompt %q: %w", p.ID(), err)
	}
	defaultInputHints(opts)

	inst := dc.ActiveInstance()
	if inst.State == nil {
		inst.State = make(map[string]any)
	}
	inst.State[keyOptions] = opts
	inst.State[keyState] = map[string]any{}
	inst.State[keyExpires] = p.now().Add(p.flow.Timeout()).UnixMilli()

	token, err := p.flow.Token(ctx, dc.Turn(), "")
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("prompt %q: %w", p.ID(), err)
	}
	if token != nil {
		return dc.End(ctx, token)
	}
	if err := p.flow.SendCard(ctx, dc.Turn()); err != nil {
		return dialog.TurnResult{}, fmt.Errorf("prompt %q: %w", p.ID(), err)
	}
	return dialog.EndOfTurn, nil
}

// Continue drives the pending sign-in with the inbound activity. Unlike
// text prompts it also reacts to the event and invoke shapes that complete
// a sign-in.
func (p *OAuth) Continue(ctx context.Context, dc *dialog.Context) (dialog.TurnResult, error) {
	t := dc.Turn()
	a := t.Activity()
	inst := dc.ActiveInstance()

	if p.timedOut(inst, a) {
		return dc.End(ctx, nil)
	}

	opts, err := frameOptions(inst)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("prompt %q: %w", p.ID(), err)
	}
	st := frameState(inst)

	recog, err := p.flow.Recognize(ctx, t)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("prompt %q: %w", p.ID(), err)
	}
	recognized := Result{Succeeded: recog.Succeeded && recog.Token != nil}
	if recognized.Succeeded {
		recognized.Value = recog.Token
	}

	valid := false
	if p.validator != nil {
		n := attemptCount(st) + 1
		st[attemptCountKey] = n
		valid, err = p.validator(ctx, &ValidatorContext{
			Turn:       t,
			Recognized: recognized,
			State:      st,
			Options:    opts,
			Attempts:   n,
		})
		if err != nil {
			return dialog.TurnResult{}, fmt.Errorf("prompt %q: validate: %w", p.ID(), err)
		}
	} else if recognized.Succeeded {
		valid = true
	}

	if valid {
		return dc.End(ctx, recognized.Value)
	}
	if a.IsMessage() && p.endOnInvalidMessage {
		return dc.End(ctx, nil)
	}
	if a.IsMessage() && opts.RetryPrompt != nil && !t.Responded() {
		if _, err := t.SendActivity(ctx, opts.RetryPrompt); err != nil {
			return dialog.TurnResult{}, fmt.Errorf("prompt %q: retry: %w", p.ID(), err)
		}
	}
	return dialog.EndOfTurn, nil
}

// Resume re-sends the card after a nested dialog finishes; the sign-in
// still stands.
func (p *OAuth) Resume(ctx context.Context, dc *dialog.Context, reason dialog.Reason, result any) (dialog.TurnResult, error) {
	if err := p.Reprompt(ctx, dc.Turn(), dc.ActiveInstance()); err != nil {
		return dialog.TurnResult{}, err
	}
	return dialog.EndOfTurn, nil
}

// Reprompt re-sends the sign-in card.
func (p *OAuth) Reprompt(ctx context.Context, t *turn.Context, inst *dialog.Instance) error {
	if err := p.flow.SendCard(ctx, t); err != nil {
		return fmt.Errorf("prompt %q: %w", p.ID(), err)
	}
	return nil
}

// SignOut discards the user's token for this prompt's connection.
func (p *OAuth) SignOut(ctx context.Context, t *turn.Context) error {
	return p.flow.SignOut(ctx, t)
}

// timedOut reports whether the deadline passed, judged only against
// activities that could have completed the sign-in.
func (p *OAuth) timedOut(inst *dialog.Instance, a *activity.Activity) bool {
	if !a.IsMessage() && !auth.IsCompletionActivity(a) {
		return false
	}
	expires := frameExpires(inst)
	return expires > 0 && p.now().UnixMilli() > expires
}

func frameExpires(inst *dialog.Instance) int64 {
	if inst == nil || inst.State == nil {
		return 0
	}
	switch v := inst.State[keyExpires].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
