/*
Package turn carries the per-turn context for one inbound activity.

A turn is the unit of work in Arbor: one inbound activity in, zero or more
outbound activities out, with all conversation state loaded at the start and
persisted at the end. Everything a dialog needs during the turn travels on an
explicit *Context value; there are no ambient registries and nothing is
shared between turns.

# Key Entities

  - Context: The per-turn object. Holds the inbound activity, the sender the
    replies go through, the responded flag prompts consult, the turn-scoped
    memory record, and the per-turn state cache.
  - Sender: The driving port a transport implements to deliver outbound
    activities.
*/
package turn
