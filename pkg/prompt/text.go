package prompt

import (
	"context"
	"strings"

	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/turn"
)

// Text prompts for free-form text. Recognition succeeds when the trimmed
// reply is non-empty; the value is the raw, untrimmed text.
func Text(id string) *Prompt {
	return New(id, defaultRender, recognizeText)
}

func recognizeText(ctx context.Context, t *turn.Context, st ports.Record, opts *Options) (Result, error) {
	text := t.Activity().Text
	if strings.TrimSpace(text) == "" {
		return Result{}, nil
	}
	return Result{Succeeded: true, Value: text}, nil
}
