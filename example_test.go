package arbor_test

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/pkg/activity"
	"github.com/aretw0/arbor/pkg/dialog"
	"github.com/aretw0/arbor/pkg/prompt"
)

// printSender prints outbound message text, standing in for a real channel.
type printSender struct{}

func (printSender) Send(ctx context.Context, ref *activity.ConversationReference, a *activity.Activity) (*activity.ResourceResponse, error) {
	if a.IsMessage() {
		fmt.Println(a.Text)
	}
	return &activity.ResourceResponse{ID: activity.NewID()}, nil
}

func Example() {
	flow := dialog.NewComponent("hello").
		AddDialog(dialog.NewWaterfall("hello-steps",
			func(ctx context.Context, step *dialog.StepContext) (dialog.TurnResult, error) {
				return step.Begin(ctx, "name", &prompt.Options{
					Prompt: activity.NewMessage("What is your name?"),
				})
			},
			func(ctx context.Context, step *dialog.StepContext) (dialog.TurnResult, error) {
				name, _ := step.Result.(string)
				if _, err := step.Turn().SendText(ctx, "Nice to meet you, "+name+"!"); err != nil {
					return dialog.TurnResult{}, err
				}
				return step.End(ctx, nil)
			},
		)).
		AddDialog(prompt.Text("name"))

	engine, err := arbor.New(flow)
	if err != nil {
		log.Fatal(err)
	}

	runner := arbor.NewRunner()
	runner.Input = strings.NewReader("Ada\n")
	runner.Output = io.Discard
	runner.Sender = printSender{}
	runner.Headless = true
	if err := runner.Run(context.Background(), engine); err != nil {
		log.Fatal(err)
	}

	// Output:
	// What is your name?
	// Nice to meet you, Ada!
}
