package arbor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/arbor/pkg/activity"
	"github.com/aretw0/arbor/pkg/dialog"
	"github.com/aretw0/arbor/pkg/turn"
)

// Runner drives an Engine over line-oriented IO. Every line becomes one
// message activity in a stable conversation, so the dialog stack suspends
// and resumes between lines exactly as it would between webhook requests.
//
// Replies travel through Sender; Output only carries the runner's own
// prompt decorations.
type Runner struct {
	Input    io.Reader
	Output   io.Writer
	Sender   turn.Sender
	Headless bool

	// Addressing for the fabricated activities. Zero values pick a console
	// channel, a local user and a fresh conversation id.
	ChannelID      string
	ConversationID string
	UserID         string
	Locale         string

	// Commands maps whole input lines to host actions that run instead of
	// a turn, like "login" or "logout". A failing command is reported on
	// Output and the loop continues.
	Commands map[string]func(ctx context.Context) error
}

// NewRunner creates a Runner. Set Input, Output and Sender before Run.
func NewRunner() *Runner {
	return &Runner{}
}

// Run executes the conversation loop until EOF, an exit command or an error.
// The first turn is a conversation update, so a fresh conversation greets
// the user before any input is read.
func (r *Runner) Run(ctx context.Context, engine *Engine) error {
	if engine == nil {
		return errors.New("arbor: runner needs an engine")
	}
	if r.Input == nil {
		return errors.New("arbor: runner input must be set (use os.Stdin)")
	}
	if r.Output == nil {
		return errors.New("arbor: runner output must be set (use os.Stdout)")
	}
	if r.Sender == nil {
		return errors.New("arbor: runner sender must be set (use a console adapter)")
	}

	if r.ChannelID == "" {
		r.ChannelID = "console"
	}
	if r.UserID == "" {
		r.UserID = "local-user"
	}
	if r.ConversationID == "" {
		r.ConversationID = activity.NewID()
	}

	opening := r.makeActivity(activity.TypeConversationUpdate, "")
	if _, err := engine.RunTurn(ctx, turn.New(r.Sender, opening)); err != nil {
		return fmt.Errorf("arbor: opening turn: %w", err)
	}

	reader := bufio.NewReader(r.Input)
	for {
		if !r.Headless {
			fmt.Fprint(r.Output, "> ")
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("arbor: reading input: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			if !r.Headless {
				fmt.Fprintln(r.Output, "Bye!")
			}
			return nil
		}
		if fn, ok := r.Commands[line]; ok {
			if err := fn(ctx); err != nil {
				fmt.Fprintf(r.Output, "%s: %v\n", line, err)
			}
			continue
		}

		t := turn.New(r.Sender, r.makeActivity(activity.TypeMessage, line))
		result, err := engine.RunTurn(ctx, t)
		if err != nil {
			return fmt.Errorf("arbor: turn failed: %w", err)
		}
		if result.Status == dialog.StatusComplete && !r.Headless {
			fmt.Fprintln(r.Output, "(conversation complete)")
		}
	}
}

func (r *Runner) makeActivity(typ activity.Type, text string) *activity.Activity {
	return &activity.Activity{
		Type:         typ,
		ID:           activity.NewID(),
		ChannelID:    r.ChannelID,
		Conversation: &activity.ConversationAccount{ID: r.ConversationID},
		From:         &activity.ChannelAccount{ID: r.UserID, Name: r.UserID},
		Recipient:    &activity.ChannelAccount{ID: "bot", Name: "bot"},
		Text:         text,
		Locale:       r.Locale,
	}
}
