/*
Package ports defines the driven ports (interfaces) for the WeaveLang interpreter.

These interfaces decouple the core logic from external implementations, allowing
the interpreter to run against any host environment and storage backend.

# Key Interfaces

  - Sensor / Actuator: the host boundary. Sense is total, Act is fire-and-forget.
  - Observer: the event sink for tension, resolve and metaweave events.
  - RandomSource: the injectable source of randomness used by drift.
  - StateStore: persists and loads session State.
  - DistributedLocker: provides distributed locking for concurrent session access.
*/
package ports
