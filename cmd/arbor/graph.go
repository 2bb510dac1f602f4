package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor/internal/presentation/graph"
	"github.com/aretw0/arbor/pkg/activity"
	"github.com/aretw0/arbor/pkg/turn"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the dialog tree as a Mermaid diagram",
	Long: `Prints a Mermaid flowchart (graph TD) of the hosted dialog tree.

With --conversation the persisted stack of that conversation is highlighted
on the tree, showing where a suspended dialog is waiting for its next turn.
Requires the storage configuration the conversation ran against.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runGraph(cmd); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

func runGraph(cmd *cobra.Command) error {
	h, err := newHost(cmd)
	if err != nil {
		return err
	}
	defer h.cleanup()

	var overlay *graph.Overlay
	if conv, _ := cmd.Flags().GetString("conversation"); conv != "" {
		channel, _ := cmd.Flags().GetString("channel")
		overlay, err = stackOverlay(cmd.Context(), h, channel, conv)
		if err != nil {
			return err
		}
	}

	fmt.Print(graph.GenerateMermaid(h.engine.Root(), overlay))
	return nil
}

// stackOverlay loads the conversation's persisted frames. Trace orders them
// active-first.
func stackOverlay(ctx context.Context, h *host, channel, conv string) (*graph.Overlay, error) {
	t := turn.New(discardSender{}, &activity.Activity{
		Type:         activity.TypeEvent,
		ID:           activity.NewID(),
		ChannelID:    channel,
		Conversation: &activity.ConversationAccount{ID: conv},
		From:         &activity.ChannelAccount{ID: "inspector"},
		Recipient:    &activity.ChannelAccount{ID: "bot"},
	})
	frames, err := h.engine.Trace(ctx, t)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, nil
	}
	overlay := &graph.Overlay{Active: frames[0].ID}
	for _, frame := range frames[1:] {
		overlay.Stacked = append(overlay.Stacked, frame.ID)
	}
	return overlay, nil
}

// discardSender satisfies turn.New for turns that only read state.
type discardSender struct{}

func (discardSender) Send(context.Context, *activity.ConversationReference, *activity.Activity) (*activity.ResourceResponse, error) {
	return &activity.ResourceResponse{ID: activity.NewID()}, nil
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("conversation", "", "Conversation id to overlay the live stack for")
	graphCmd.Flags().String("channel", "console", "Channel id the conversation ran on")
}
