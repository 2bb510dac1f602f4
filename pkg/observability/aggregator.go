package observability

import (
	"context"
	"sync"

	"github.com/aretw0/arbor/pkg/dialog"
)

// Combine merges several hook sets into a single view, so metrics, logging
// and recording observers can all watch the same engine. Each callback fans
// out in argument order; nil entries are skipped.
func Combine(hooks ...*dialog.Hooks) *dialog.Hooks {
	list := make([]*dialog.Hooks, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			list = append(list, h)
		}
	}
	return &dialog.Hooks{
		OnBegin: func(ctx context.Context, e *dialog.StackEvent) {
			for _, h := range list {
				if h.OnBegin != nil {
					h.OnBegin(ctx, e)
				}
			}
		},
		OnEnd: func(ctx context.Context, e *dialog.StackEvent) {
			for _, h := range list {
				if h.OnEnd != nil {
					h.OnEnd(ctx, e)
				}
			}
		},
		OnEvent: func(ctx context.Context, e dialog.Event) {
			for _, h := range list {
				if h.OnEvent != nil {
					h.OnEvent(ctx, e)
				}
			}
		},
	}
}

// Entry is one recorded stack movement.
type Entry struct {
	// Op is "begin" or "end".
	Op     string
	Dialog string
	Reason dialog.Reason
	Depth  int
}

// Recorder keeps an in-memory log of stack activity. Useful in tests and
// when debugging why a conversation's stack looks the way it does.
// Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Hooks returns the hook set that feeds this recorder. Combine it with
// other observers when the engine needs more than one.
func (r *Recorder) Hooks() *dialog.Hooks {
	return &dialog.Hooks{
		OnBegin: func(_ context.Context, e *dialog.StackEvent) {
			r.append(Entry{Op: "begin", Dialog: e.DialogID, Reason: e.Reason, Depth: e.Depth})
		},
		OnEnd: func(_ context.Context, e *dialog.StackEvent) {
			r.append(Entry{Op: "end", Dialog: e.DialogID, Reason: e.Reason, Depth: e.Depth})
		},
	}
}

func (r *Recorder) append(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

// Entries returns a snapshot of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Reset discards the recorded entries.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}
