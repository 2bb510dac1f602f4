package prompt

import (
	"context"
	"fmt"

	"github.com/aretw0/arbor/pkg/activity"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/recognize"
	"github.com/aretw0/arbor/pkg/turn"
)

// ListStyle controls how a confirm prompt presents its two choices.
type ListStyle string

const (
	// ListAuto lets the prompt pick; today it renders inline.
	ListAuto ListStyle = "auto"
	// ListNone leaves the prompt text untouched.
	ListNone ListStyle = "none"
	// ListInline appends the choices to the prompt text.
	ListInline ListStyle = "inline"
)

// confirmLocale carries one language's yes/no wording.
type confirmLocale struct {
	yes Choice
	no  Choice
	or  string
}

var confirmLocales = map[string]confirmLocale{
	"en": {
		yes: Choice{Title: "Yes", Synonyms: []string{"yes", "y", "sure", "ok"}},
		no:  Choice{Title: "No", Synonyms: []string{"no", "n", "nope"}},
		or:  "or",
	},
	"pt": {
		yes: Choice{Title: "Sim", Synonyms: []string{"sim", "s", "claro"}},
		no:  Choice{Title: "Não", Synonyms: []string{"não", "nao", "n"}},
		or:  "ou",
	},
	"es": {
		yes: Choice{Title: "Sí", Synonyms: []string{"sí", "si", "s"}},
		no:  Choice{Title: "No", Synonyms: []string{"no", "n"}},
		or:  "o",
	},
	"fr": {
		yes: Choice{Title: "Oui", Synonyms: []string{"oui", "o", "d'accord"}},
		no:  Choice{Title: "Non", Synonyms: []string{"non", "n"}},
		or:  "ou",
	},
	"de": {
		yes: Choice{Title: "Ja", Synonyms: []string{"ja", "j", "klar"}},
		no:  Choice{Title: "Nein", Synonyms: []string{"nein", "n"}},
		or:  "oder",
	},
}

// ConfirmChoices returns the default yes/no choices for a locale, falling
// back through the bare language to English.
func ConfirmChoices(locale string) (yes, no Choice) {
	l := confirmLocaleFor(locale)
	return l.yes, l.no
}

func confirmLocaleFor(locale string) confirmLocale {
	lang := locale
	for i := range locale {
		if locale[i] == '-' || locale[i] == '_' {
			lang = locale[:i]
			break
		}
	}
	if l, ok := confirmLocales[lowerASCII(lang)]; ok {
		return l
	}
	return confirmLocales["en"]
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

type confirmConfig struct {
	recognizer     recognize.Recognizer
	locale         string
	style          ListStyle
	includeNumbers bool
	yes, no        *Choice
}

// ConfirmOption configures a confirm prompt at construction time.
type ConfirmOption func(*confirmConfig)

// WithRecognizer swaps the boolean recognizer.
func WithRecognizer(r recognize.Recognizer) ConfirmOption {
	return func(cfg *confirmConfig) {
		if r != nil {
			cfg.recognizer = r
		}
	}
}

// WithLocale sets the default locale used when the inbound activity carries
// none.
func WithLocale(locale string) ConfirmOption {
	return func(cfg *confirmConfig) {
		cfg.locale = locale
	}
}

// WithListStyle controls choice presentation.
func WithListStyle(style ListStyle) ConfirmOption {
	return func(cfg *confirmConfig) {
		cfg.style = style
	}
}

// WithIncludeNumbers disables or re-enables numeric positional answers and
// the "(1) ... (2) ..." rendering.
func WithIncludeNumbers(include bool) ConfirmOption {
	return func(cfg *confirmConfig) {
		cfg.includeNumbers = include
	}
}

// WithConfirmChoices overrides the yes/no wording regardless of locale.
func WithConfirmChoices(yes, no Choice) ConfirmOption {
	return func(cfg *confirmConfig) {
		cfg.yes, cfg.no = &yes, &no
	}
}

// Confirm prompts for a yes/no decision and resolves to a bool. Replies are
// interpreted by the boolean recognizer first, then positionally against
// the two presented choices.
func Confirm(id string, opts ...ConfirmOption) *Prompt {
	cfg := &confirmConfig{
		recognizer:     recognize.Boolean(),
		style:          ListAuto,
		includeNumbers: true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return New(id, cfg.render, cfg.recognize)
}

func (cfg *confirmConfig) resolveLocale(t *turn.Context) string {
	if locale := t.Locale(); locale != "" {
		return locale
	}
	if cfg.locale != "" {
		return cfg.locale
	}
	return "en-US"
}

func (cfg *confirmConfig) choices(locale string) (Choice, Choice) {
	yes, no := ConfirmChoices(locale)
	if cfg.yes != nil {
		yes = *cfg.yes
	}
	if cfg.no != nil {
		no = *cfg.no
	}
	return yes, no
}

func (cfg *confirmConfig) render(ctx context.Context, t *turn.Context, st ports.Record, opts *Options, isRetry bool) error {
	locale := cfg.resolveLocale(t)
	base := opts.Prompt
	if isRetry && opts.RetryPrompt != nil {
		base = opts.RetryPrompt
	}
	out := cfg.styled(base, locale)
	if out.Text == "" {
		return nil
	}
	_, err := t.SendActivity(ctx, out)
	return err
}

// styled appends the two choices to the prompt per list style, e.g.
// "deploy now? (1) Yes or (2) No".
func (cfg *confirmConfig) styled(base *activity.Activity, locale string) *activity.Activity {
	var out *activity.Activity
	if base != nil {
		out = base.Clone()
	} else {
		out = activity.NewMessage("")
	}

	style := cfg.style
	if style == ListAuto {
		style = ListInline
	}
	if style != ListNone {
		yes, no := cfg.choices(locale)
		or := confirmLocaleFor(locale).or
		var suffix string
		if cfg.includeNumbers {
			suffix = fmt.Sprintf("(1) %s %s (2) %s", yes.Title, or, no.Title)
		} else {
			suffix = fmt.Sprintf("%s %s %s", yes.Title, or, no.Title)
		}
		if out.Text != "" {
			out.Text = out.Text + " " + suffix
		} else {
			out.Text = suffix
		}
	}
	if out.InputHint == "" {
		out.InputHint = activity.InputExpecting
	}
	return out
}

func (cfg *confirmConfig) recognize(ctx context.Context, t *turn.Context, st ports.Record, opts *Options) (Result, error) {
	text := t.Activity().TrimmedText()
	locale := cfg.resolveLocale(t)

	if best, ok := recognize.Best(cfg.recognizer.Recognize(text, locale)); ok {
		if b, isBool := best.Value.(bool); isBool {
			return Result{Succeeded: true, Value: b}, nil
		}
	}

	yes, no := cfg.choices(locale)
	if idx, ok := MatchChoice(text, locale, []Choice{yes, no}, cfg.includeNumbers); ok {
		return Result{Succeeded: true, Value: idx == 0}, nil
	}
	return Result{}, nil
}
