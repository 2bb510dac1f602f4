package dialog

import "context"

// Kind is the closed set of event categories the stack routes. Custom events
// carry their discriminator in Event.Name under KindCustom; everything else
// dispatches on the kind alone.
type Kind uint8

const (
	// KindActivityReceived announces the inbound activity to the stack.
	KindActivityReceived Kind = iota
	// KindReprompt asks the active dialog to re-render its question.
	KindReprompt
	// KindCancel tears down frames; emitted by CancelAll before each pop
	// after the first, giving ancestors a veto.
	KindCancel
	// KindVersionChanged reports a persisted frame whose dialog definition
	// changed since it was pushed.
	KindVersionChanged
	// KindCustom is an application-defined event named by Event.Name.
	KindCustom
)

// kindNames are the wire names, used in logs and the custom-event fallback.
var kindNames = map[Kind]string{
	KindActivityReceived: "activityReceived",
	KindReprompt:         "repromptDialog",
	KindCancel:           "cancelDialog",
	KindVersionChanged:   "versionChanged",
	KindCustom:           "custom",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is routed through the stack: active dialog first, then bubbling to
// parents when Bubble is set, then a post-bubble default stage.
type Event struct {
	Kind   Kind
	Name   string
	Value  any
	Bubble bool
}

// NewEvent builds an event of a built-in kind.
func NewEvent(kind Kind, value any, bubble bool) Event {
	return Event{Kind: kind, Value: value, Bubble: bubble}
}

// CustomEvent builds an application-defined event.
func CustomEvent(name string, value any, bubble bool) Event {
	return Event{Kind: KindCustom, Name: name, Value: value, Bubble: bubble}
}

// DisplayName renders the event for logs: the kind's wire name, or the
// custom name when set.
func (e Event) DisplayName() string {
	if e.Kind == KindCustom && e.Name != "" {
		return e.Name
	}
	return e.Kind.String()
}

// EventHandler reacts to one event kind. Returning true stops propagation.
type EventHandler func(ctx context.Context, dc *Context, e Event) (bool, error)

// StackEvent describes a frame push or pop for observers.
type StackEvent struct {
	DialogID string
	Reason   Reason
	Depth    int
}

// Hooks are optional observer callbacks fired by Context. All fields are
// nil-safe; wiring them is how metrics and structured tracing attach without
// touching the core.
type Hooks struct {
	OnBegin func(context.Context, *StackEvent)
	OnEnd   func(context.Context, *StackEvent)
	OnEvent func(context.Context, Event)
}

func (h *Hooks) emitBegin(ctx context.Context, e *StackEvent) {
	if h != nil && h.OnBegin != nil {
		h.OnBegin(ctx, e)
	}
}

func (h *Hooks) emitEnd(ctx context.Context, e *StackEvent) {
	if h != nil && h.OnEnd != nil {
		h.OnEnd(ctx, e)
	}
}

func (h *Hooks) emitEvent(ctx context.Context, e Event) {
	if h != nil && h.OnEvent != nil {
		h.OnEvent(ctx, e)
	}
}
