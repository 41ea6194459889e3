// Package service provides the client-side connection services for slotmesh.
//
// Services hold the per-connection state of one game client that keeps a
// main player and several dummy players connected to the same server at
// once. They depend only on the domain model, the snapshot store and a
// Transport, so every piece can be driven directly from tests.
//
// This package contains:
//
//   - Registry: live connection slots with their snapshot stores and input queues
//   - Router: inbound packet dispatch, snapshot ordering and resend requests
//   - Scheduler: per-tick input frames for every live slot
//   - Selector: which slot receives local input
//   - Session: the tick loop that owns all of the above
//
// Everything except Selector reads and Scheduler.RouteLocalInput must run on
// the Session loop goroutine.
package service
