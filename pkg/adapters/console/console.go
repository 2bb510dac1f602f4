// Package console delivers engine replies to a terminal. Message text is
// printed as-is or rendered as markdown, and sign-in cards collapse to
// styled status lines carrying the link.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/mitchellh/mapstructure"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/aretw0/arbor/pkg/activity"
	"github.com/aretw0/arbor/pkg/auth"
)

const statusPrefix = ">>> "

// Adapter implements turn.Sender against a terminal.
type Adapter struct {
	mu  sync.Mutex
	out io.Writer
	seq int

	profile     termenv.Profile
	profileSet  bool
	markdown    bool
	markdownSet bool

	render func(string) (string, error)
}

// Option configures the adapter.
type Option func(*Adapter)

// WithWriter redirects output away from stdout.
func WithWriter(w io.Writer) Option {
	return func(a *Adapter) { a.out = w }
}

// WithMarkdown forces markdown rendering on or off. By default replies are
// rendered only when the writer is a terminal.
func WithMarkdown(enabled bool) Option {
	return func(a *Adapter) {
		a.markdown = enabled
		a.markdownSet = true
	}
}

// WithProfile pins the color profile instead of detecting it from the
// environment.
func WithProfile(p termenv.Profile) Option {
	return func(a *Adapter) {
		a.profile = p
		a.profileSet = true
	}
}

// New builds an adapter writing to stdout.
func New(opts ...Option) *Adapter {
	a := &Adapter{out: os.Stdout}
	for _, opt := range opts {
		opt(a)
	}
	if !a.markdownSet {
		a.markdown = isTerminal(a.out)
	}
	if !a.profileSet {
		a.profile = termenv.ColorProfile()
	}
	return a
}

// Send implements turn.Sender. Non-message activities are acknowledged
// silently; a line terminal has nowhere to put them.
func (a *Adapter) Send(_ context.Context, _ *activity.ConversationReference, act *activity.Activity) (*activity.ResourceResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seq++
	id := fmt.Sprintf("console-%d", a.seq)

	if act != nil && act.IsMessage() {
		if err := a.printMessage(act); err != nil {
			return nil, err
		}
	}
	return &activity.ResourceResponse{ID: id}, nil
}

func (a *Adapter) printMessage(act *activity.Activity) error {
	if text := strings.TrimSpace(act.Text); text != "" {
		out := text
		if a.markdown {
			if rendered, err := a.renderMarkdown(text); err == nil {
				out = strings.TrimSpace(rendered)
			}
		}
		if _, err := fmt.Fprintln(a.out, out); err != nil {
			return err
		}
	}
	for _, att := range act.Attachments {
		if att.ContentType != auth.OAuthCardContentType {
			continue
		}
		if card, ok := decodeCard(att.Content); ok {
			if err := a.printCard(card); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *Adapter) printCard(card auth.OAuthCard) error {
	text := card.Text
	if text == "" {
		text = "Sign in required"
	}
	if card.ConnectionName != "" {
		text = fmt.Sprintf("%s (%s)", text, card.ConnectionName)
	}
	if err := a.status(text); err != nil {
		return err
	}
	for _, b := range card.Buttons {
		if b.Value == "" {
			continue
		}
		if err := a.status(fmt.Sprintf("%s: %s", b.Title, b.Value)); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) status(text string) error {
	line := a.profile.String(statusPrefix + text).Faint()
	_, err := fmt.Fprintln(a.out, line.String())
	return err
}

func (a *Adapter) renderMarkdown(text string) (string, error) {
	if a.render == nil {
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
		if err != nil {
			return "", err
		}
		a.render = r.Render
	}
	return a.render(text)
}

// decodeCard accepts the in-process struct or the map shape a transport
// decodes from JSON.
func decodeCard(content any) (auth.OAuthCard, bool) {
	switch c := content.(type) {
	case auth.OAuthCard:
		return c, true
	case *auth.OAuthCard:
		if c != nil {
			return *c, true
		}
	case map[string]any:
		var card auth.OAuthCard
		if err := mapstructure.Decode(c, &card); err == nil {
			return card, true
		}
	}
	return auth.OAuthCard{}, false
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
