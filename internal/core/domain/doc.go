// Package domain defines the core domain models for slotmesh.
//
// Domain models are pure value objects and entities without any
// IO dependencies or framework coupling. This package contains:
//
//   - ConnectionSlot: one connection's state machine, address, version and capabilities
//   - Snapshot: a tick-stamped game-state update
//   - InputFrame: one tick of input for one connection
//   - Errors: slot-local error codes shared by every layer
package domain
