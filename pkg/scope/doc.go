/*
Package scope exposes named views over conversation memory.

A Scope resolves a dialog context to a record: "this" is the active frame's
own state, "turn" is per-turn scratch space, "class" and "dialogClass" are
read-only snapshots of the running dialog's configuration, and
"dialogContext" describes the stack itself. Scopes give templating and
debugging layers one uniform way to address memory without knowing where
each piece lives.

# Key Entities/Interfaces

  - Scope: named (dialogContext) -> record resolver with optional mutation.
  - Registry: the lookup table, built-ins plus custom scopes.
  - Evaluator: hook for dialog fields that resolve against live state.
*/
package scope
