/*
Package state persists conversation-scoped and user-scoped records across
turns.

A Store owns one storage key per turn (derived from the inbound activity's
channel, conversation and user) and reads/writes the whole record at once:
no merging, last writer wins. Records are cached on the turn context so that
repeated access within a turn is free, and a change hash lets Save skip the
write when nothing changed.

Property provides typed accessors into a Store's record. Values are decoded
lazily from the loosely-typed persisted form and re-anchored in the record,
so mutations through a returned pointer are picked up by the next Save.

# Key Entities

  - Store: One persisted record, addressed per turn. NewConversationState
    and NewUserState cover the two standard scopes.
  - Property: A named, typed slot inside a Store's record.
*/
package state
