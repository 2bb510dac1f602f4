/*
Package ports defines the driven ports (interfaces) for the Arbor engine.

These interfaces decouple the core logic from external implementations,
allowing the engine to work with various storage backends without knowing
which one is wired in.

# Key Interfaces

  - Storage: Responsible for persisting keyed state records (conversation
    state, user state, sign-in records) wholesale.
  - DistributedLocker: Serializes turns on one conversation across replicas
    that share a Storage backend.

Implementations live under pkg/adapters. The portstest subpackage carries a
contract test every Storage implementation is expected to pass.
*/
package ports
