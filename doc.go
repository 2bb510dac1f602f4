/*
Package arbor is a dialog execution engine: it gives stateless per-turn
request handling the feel of a stateful conversation.

Each inbound activity is one turn. The engine reconstructs the persisted
dialog stack for the conversation, routes the activity to the dialog that
was waiting, and saves the stack again before the turn ends. A process can
die between any two turns without losing the conversation.

# Concept

Dialogs are the unit of conversational logic. A dialog can ask a question
and suspend, push child dialogs, and return a typed result to whoever
started it. Prompts (text, confirm, OAuth sign-in) are prebuilt dialogs that
handle ask/recognize/validate/retry. Containers and waterfalls compose them
into multi-step flows.

The engine core is transport-agnostic: adapters for console, HTTP and MCP
live under pkg/adapters, and any storage backend implementing ports.Storage
(in-memory and Redis ship in the box) makes conversations durable.

# Usage

Build an Engine around a root dialog and feed it turns:

	package main

	import (
		"context"
		"log"
		"os"

		"github.com/aretw0/arbor"
		"github.com/aretw0/arbor/pkg/activity"
		"github.com/aretw0/arbor/pkg/adapters/console"
		"github.com/aretw0/arbor/pkg/dialog"
		"github.com/aretw0/arbor/pkg/prompt"
	)

	func main() {
		// A two-step flow: ask for a name, then greet.
		flow := dialog.NewComponent("hello").
			AddDialog(dialog.NewWaterfall("hello-steps",
				func(ctx context.Context, step *dialog.StepContext) (dialog.TurnResult, error) {
					return step.Begin(ctx, "name", &prompt.Options{
						Prompt: activity.NewMessage("What is your name?"),
					})
				},
				func(ctx context.Context, step *dialog.StepContext) (dialog.TurnResult, error) {
					name, _ := step.Result.(string)
					step.Turn().SendText(ctx, "Nice to meet you, "+name+"!")
					return step.End(ctx, nil)
				},
			)).
			AddDialog(prompt.Text("name"))

		engine, err := arbor.New(flow)
		if err != nil {
			log.Fatal(err)
		}

		runner := arbor.NewRunner()
		runner.Input = os.Stdin
		runner.Output = os.Stdout
		runner.Sender = console.New()
		if err := runner.Run(context.Background(), engine); err != nil {
			log.Fatal(err)
		}
	}

Storage, logging, sign-in handlers and stack observers are wired through
options on New; see Engine and the package examples.
*/
package arbor
