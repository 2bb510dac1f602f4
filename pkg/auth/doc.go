/*
Package auth implements resumable OAuth sign-in over the turn model.

Signing in is structurally a suspended conversation: the engine sends a
sign-in card, the turn ends, and some later activity completes the flow
with a token. That completion arrives in one of a handful of shapes
(token event, invoke verifications, SSO token exchange, a pasted magic
code) which Flow classifies and handles uniformly. SignIn layers a small
persisted state machine on top so a login started on one process can
finish on another, with expiry and conversation-change safety checks.

# Key Entities/Interfaces

  - TokenService: the port to the token store/identity provider.
  - Flow: card rendering plus completion recognition for one connection.
  - SignIn: the begin/continue/success/failure state machine.
  - Client: TokenService over HTTP.
  - authtest.FakeTokenService: scriptable in-memory service for tests.
*/
package auth
