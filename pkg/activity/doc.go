/*
Package activity defines the conversational wire types consumed and produced
by the Arbor engine.

It is the subset of a channel activity schema the engine actually needs:
messages, events, invokes and their routing envelope. The package is kept pure
and free of I/O so that transports, dialogs and tests can all share it,
following Hexagonal Architecture principles.

# Key Entities

  - Activity: One inbound or outbound item (message, event, invoke, ...).
  - ConversationReference: The durable address of a conversation, extracted
    from an inbound activity and re-applied to outbound ones.
  - Attachment: Typed payload carried by an activity (e.g. an OAuth card).
*/
package activity
