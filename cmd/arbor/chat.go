package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/presentation/tui"
	"github.com/aretw0/arbor/pkg/activity"
	"github.com/aretw0/arbor/pkg/adapters/console"
	"github.com/aretw0/arbor/pkg/turn"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the onboarding flow on this terminal",
	Long: `Runs the onboarding flow interactively. Every line you type is one
turn against the engine, with the dialog stack suspended and restored from
storage in between, exactly as it would be behind a webhook.

With redis storage the bot remembers your name across sessions. With OAuth
connections configured, "login" and "logout" drive the sign-in flow.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runChat(cmd); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

func runChat(cmd *cobra.Command) error {
	h, err := newHost(cmd)
	if err != nil {
		return err
	}
	defer h.cleanup()

	var consoleOpts []console.Option
	if plain, _ := cmd.Flags().GetBool("plain"); plain {
		consoleOpts = append(consoleOpts, console.WithMarkdown(false))
	}
	sender := console.New(consoleOpts...)

	r := arbor.NewRunner()
	r.Input = os.Stdin
	r.Output = os.Stdout
	r.Sender = sender
	registerAuthCommands(r, h, sender)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tui.PrintBanner()
	if len(h.handlers) > 0 {
		fmt.Printf("Sign-in commands: login, logout (connections: %v)\n", h.handlers)
	}
	if err := r.Run(ctx, h.engine); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// registerAuthCommands wires login and logout lines to the engine's sign-in
// operations. The bare verbs target the first configured connection; every
// connection also gets its qualified form, like "login github".
func registerAuthCommands(r *arbor.Runner, h *host, sender turn.Sender) {
	if len(h.handlers) == 0 {
		return
	}
	makeTurn := func() *turn.Context {
		return turn.New(sender, &activity.Activity{
			Type:         activity.TypeEvent,
			ID:           activity.NewID(),
			ChannelID:    r.ChannelID,
			Conversation: &activity.ConversationAccount{ID: r.ConversationID},
			From:         &activity.ChannelAccount{ID: r.UserID, Name: r.UserID},
			Recipient:    &activity.ChannelAccount{ID: "bot", Name: "bot"},
		})
	}
	login := func(id string) func(context.Context) error {
		return func(ctx context.Context) error {
			_, err := h.engine.SignIn(ctx, makeTurn(), id)
			return err
		}
	}
	logout := func(id string) func(context.Context) error {
		return func(ctx context.Context) error {
			t := makeTurn()
			if err := h.engine.SignOut(ctx, t, id); err != nil {
				return err
			}
			_, err := t.SendText(ctx, "Signed out of "+id+".")
			return err
		}
	}

	r.Commands = map[string]func(context.Context) error{
		"login":  login(h.handlers[0]),
		"logout": logout(h.handlers[0]),
	}
	for _, id := range h.handlers {
		r.Commands["login "+id] = login(id)
		r.Commands["logout "+id] = logout(id)
	}
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().Bool("plain", false, "Disable markdown rendering of replies")
}
