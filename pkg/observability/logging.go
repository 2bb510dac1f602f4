package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/arbor/pkg/dialog"
)

// NewLogging returns hooks that log stack pushes, pops and routed events
// through the given logger at Debug level.
func NewLogging(logger *slog.Logger) *dialog.Hooks {
	return &dialog.Hooks{
		OnBegin: func(ctx context.Context, e *dialog.StackEvent) {
			logger.DebugContext(ctx, "dialog begin", "dialog", e.DialogID, "depth", e.Depth)
		},
		OnEnd: func(ctx context.Context, e *dialog.StackEvent) {
			logger.DebugContext(ctx, "dialog end", "dialog", e.DialogID, "depth", e.Depth, "reason", string(e.Reason))
		},
		OnEvent: func(ctx context.Context, e dialog.Event) {
			logger.DebugContext(ctx, "dialog event", "event", e.DisplayName(), "bubble", e.Bubble)
		},
	}
}
