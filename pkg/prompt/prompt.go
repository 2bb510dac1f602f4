package prompt

import (
	"context"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/arbor/pkg/activity"
	"github.com/aretw0/arbor/pkg/dialog"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/turn"
)

// Frame-state keys used by prompts.
const (
	keyOptions = "options"
	keyState   = "state"

	attemptCountKey = "attemptCount"
)

// Result is the outcome of one recognition attempt.
type Result struct {
	Succeeded bool `json:"succeeded" mapstructure:"succeeded"`
	Value     any  `json:"value,omitempty" mapstructure:"value"`
}

// Options parameterize one Begin of a prompt. They persist with the frame
// and are rebuilt after a storage round trip.
type Options struct {
	// Prompt is the initial question.
	Prompt *activity.Activity `json:"prompt,omitempty" mapstructure:"prompt"`
	// RetryPrompt is sent after an invalid reply; when unset the prompt
	// re-renders the initial question.
	RetryPrompt *activity.Activity `json:"retryPrompt,omitempty" mapstructure:"retryPrompt"`
	// Choices constrain the answer for list-based prompts.
	Choices []Choice `json:"choices,omitempty" mapstructure:"choices"`
	// Validations is free-form data for the validator.
	Validations any `json:"validations,omitempty" mapstructure:"validations"`
}

// Choice is one pickable item.
type Choice struct {
	Title    string   `json:"title" mapstructure:"title"`
	Value    string   `json:"value,omitempty" mapstructure:"value"`
	Synonyms []string `json:"synonyms,omitempty" mapstructure:"synonyms"`
}

// RenderFunc delivers the question, or its retry variant, to the user.
type RenderFunc func(ctx context.Context, t *turn.Context, st ports.Record, opts *Options, isRetry bool) error

// RecognizeFunc interprets the inbound activity as an answer.
type RecognizeFunc func(ctx context.Context, t *turn.Context, st ports.Record, opts *Options) (Result, error)

// Validator has the final word on an attempt: it can veto a successful
// recognition or bless a failed one.
type Validator func(ctx context.Context, vc *ValidatorContext) (bool, error)

// ValidatorContext is everything a validator sees about the attempt.
type ValidatorContext struct {
	Turn       *turn.Context
	Recognized Result
	// State is the prompt's scratch record; validators may stash their own
	// keys in it and they persist with the frame.
	State   ports.Record
	Options *Options
	// Attempts counts validated attempts for this frame, starting at 1.
	Attempts int
}

// Prompt asks a question and suspends until a valid answer arrives. The
// render and recognize strategies define what kind of prompt it is; the
// surrounding loop (attempt counting, validation, retries) is shared.
type Prompt struct {
	dialog.Base

	render              RenderFunc
	recognize           RecognizeFunc
	validator           Validator
	endOnInvalidMessage bool
}

// New assembles a prompt from its two strategies. Most callers want the
// Text or Confirm constructors instead.
func New(id string, render RenderFunc, recognize RecognizeFunc) *Prompt {
	return &Prompt{Base: dialog.NewBase(id), render: render, recognize: recognize}
}

// WithValidator attaches the validator. Chainable.
func (p *Prompt) WithValidator(v Validator) *Prompt {
	p.validator = v
	return p
}

// WithEndOnInvalidMessage makes an invalid reply end the prompt with a nil
// result instead of retrying. Useful when an outer dialog wants to handle
// the miss itself.
func (p *Prompt) WithEndOnInvalidMessage() *Prompt {
	p.endOnInvalidMessage = true
	return p
}

// Begin persists the options, renders the question and suspends.
func (p *Prompt) Begin(ctx context.Context, dc *dialog.Context, options any) (dialog.TurnResult, error) {
	inst := dc.ActiveInstance()
	if inst == nil {
		return dialog.TurnResult{}, fmt.Errorf("prompt %q: %w", p.ID(), dialog.ErrNoActiveDialog)
	}
	opts, err := normalizeOptions(options)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("prompt %q: %w", p.ID(), err)
	}
	defaultInputHints(opts)

	if inst.State == nil {
		inst.State = make(map[string]any)
	}
	st := ports.Record{}
	inst.State[keyOptions] = opts
	inst.State[keyState] = st

	if err := p.render(ctx, dc.Turn(), st, opts, false); err != nil {
		return dialog.TurnResult{}, fmt.Errorf("prompt %q: render: %w", p.ID(), err)
	}
	return dialog.EndOfTurn, nil
}

// Continue interprets the reply. Non-message activities leave the prompt
// waiting untouched.
func (p *Prompt) Continue(ctx context.Context, dc *dialog.Context) (dialog.TurnResult, error) {
	t := dc.Turn()
	if !t.Activity().IsMessage() {
		return dialog.EndOfTurn, nil
	}
	inst := dc.ActiveInstance()
	opts, err := frameOptions(inst)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("prompt %q: %w", p.ID(), err)
	}
	st := frameState(inst)

	recognized, err := p.recognize(ctx, t, st, opts)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("prompt %q: recognize: %w", p.ID(), err)
	}

	// The attempt counter moves only when a validator watches it, so it
	// means "attempts the validator judged", not "messages received".
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
	if p.endOnInvalidMessage {
		return dc.End(ctx, nil)
	}
	if !t.Responded() {
		if err := p.render(ctx, t, st, opts, true); err != nil {
			return dialog.TurnResult{}, fmt.Errorf("prompt %q: retry: %w", p.ID(), err)
		}
	}
	return dialog.EndOfTurn, nil
}

// Resume fires when a dialog pushed on top of the prompt ends. The question
// still stands, so re-ask and keep waiting.
func (p *Prompt) Resume(ctx context.Context, dc *dialog.Context, reason dialog.Reason, result any) (dialog.TurnResult, error) {
	if err := p.Reprompt(ctx, dc.Turn(), dc.ActiveInstance()); err != nil {
		return dialog.TurnResult{}, err
	}
	return dialog.EndOfTurn, nil
}

// Reprompt re-renders the original question.
func (p *Prompt) Reprompt(ctx context.Context, t *turn.Context, inst *dialog.Instance) error {
	opts, err := frameOptions(inst)
	if err != nil {
		return fmt.Errorf("prompt %q: %w", p.ID(), err)
	}
	return p.render(ctx, t, frameState(inst), opts, false)
}

// defaultRender sends the configured prompt activity: the retry prompt on
// retries when one exists, else the initial prompt, else nothing.
func defaultRender(ctx context.Context, t *turn.Context, st ports.Record, opts *Options, isRetry bool) error {
	a := opts.Prompt
	if isRetry && opts.RetryPrompt != nil {
		a = opts.RetryPrompt
	}
	if a == nil {
		return nil
	}
	_, err := t.SendActivity(ctx, a)
	return err
}

// normalizeOptions accepts the shapes Begin may be handed: a typed Options,
// nil, or a decoded map when options crossed a process boundary.
func normalizeOptions(options any) (*Options, error) {
	switch v := options.(type) {
	case nil:
		return &Options{}, nil
	case *Options:
		if v == nil {
			return &Options{}, nil
		}
		return v, nil
	case Options:
		return &v, nil
	default:
		return decodeOptions(options)
	}
}

func defaultInputHints(opts *Options) {
	if opts.Prompt != nil && opts.Prompt.InputHint == "" {
		opts.Prompt.InputHint = activity.InputExpecting
	}
	if opts.RetryPrompt != nil && opts.RetryPrompt.InputHint == "" {
		opts.RetryPrompt.InputHint = activity.InputExpecting
	}
}

// frameOptions rebuilds the typed options from the frame, re-anchoring the
// typed form so the decode happens once per frame, not once per turn.
func frameOptions(inst *dialog.Instance) (*Options, error) {
	if inst == nil {
		return nil, dialog.ErrNoActiveDialog
	}
	if inst.State == nil {
		inst.State = make(map[string]any)
	}
	switch v := inst.State[keyOptions].(type) {
	case *Options:
		return v, nil
	case nil:
		opts := &Options{}
		inst.State[keyOptions] = opts
		return opts, nil
	default:
		opts, err := decodeOptions(v)
		if err != nil {
			return nil, err
		}
		inst.State[keyOptions] = opts
		return opts, nil
	}
}

func decodeOptions(raw any) (*Options, error) {
	opts := &Options{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           opts,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("decoding prompt options: %w", err)
	}
	return opts, nil
}

// frameState returns the prompt's scratch record, anchored in the frame.
func frameState(inst *dialog.Instance) ports.Record {
	if inst == nil {
		return ports.Record{}
	}
	if inst.State == nil {
		inst.State = make(map[string]any)
	}
	if st, ok := inst.State[keyState].(map[string]any); ok && st != nil {
		return st
	}
	st := ports.Record{}
	inst.State[keyState] = st
	return st
}

func attemptCount(st ports.Record) int {
	switch v := st[attemptCountKey].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
