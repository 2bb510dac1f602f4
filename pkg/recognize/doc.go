/*
Package recognize extracts typed values from free-form user text.

Recognizers are small, deterministic and locale-aware; they score every
plausible interpretation instead of guessing, and leave the choice of a
winner to the caller. Prompts plug them in to turn replies into booleans and
numbers without any external NLU service.

# Key Entities/Interfaces

  - Recognizer: text in, scored candidates out.
  - Candidate: one interpretation with a confidence score.
  - Boolean, Number: the built-in recognizers.
  - Best: picks an unambiguous winner from a candidate list.
*/
package recognize
