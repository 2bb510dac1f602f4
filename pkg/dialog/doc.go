/*
Package dialog implements the conversational dialog stack at the heart of
Arbor.

Dialogs give a stateless per-turn handler the feel of a long-running
conversation. Between turns nothing lives in memory: the stack of dialog
frames is a plain record persisted through pkg/state, and every turn
reconstructs a cursor (Context) over it, routes the inbound activity to the
frame that was waiting, and persists whatever changed.

# Key Entities

  - Dialog: The capability interface a conversational step implements.
    Base provides embeddable defaults so concrete dialogs compose behavior
    instead of inheriting it.
  - Instance: One persisted stack frame {id, state, version}.
  - State: The persisted stack for one dialog set.
  - Set: A registry of dialogs with deterministic id collision handling and
    a memoized composite version used for deploy-time change detection.
  - Context: The per-turn cursor over the stack. Begin, Continue, End,
    Replace, CancelAll and EmitEvent drive the conversation; containers
    nest child contexts for their inner stacks.
  - TurnResult: What a turn produced: waiting (suspend and persist),
    complete (with a result), cancelled, or empty (nothing to do).

Events travel a fixed route: the active dialog sees them first (pre-bubble),
unhandled bubbling events climb to parent containers, and a final post-bubble
stage gives the originating dialog a default processing point.
*/
package dialog
