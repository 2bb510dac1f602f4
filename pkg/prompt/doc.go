/*
Package prompt implements the ask-and-wait dialogs: send a question, suspend
the conversation, interpret the reply when it arrives turns later, and retry
until the answer validates.

One concrete Prompt type carries the whole loop; what varies between Text,
Confirm and OAuth is injected as a render strategy and a recognize strategy.
Validators get the final word on every attempt and see the running attempt
count, so "three strikes" policies need no custom dialog.

# Key Entities/Interfaces

  - Prompt: the generic ask/recognize/validate/retry dialog.
  - Options: per-Begin parameters (prompt, retry prompt, choices).
  - RenderFunc, RecognizeFunc, Validator: the injected strategies.
  - Text, Confirm, OAuth: the built-in prompt constructors.
  - MatchChoice: shared free-text-to-choice resolution.
*/
package prompt
