// Package main provides the entry point for slotmesh.
//
// slotmesh runs one game client session that holds a main connection and
// any number of dummy connections to the same server:
//
//   - run: connect, drive the tick loop and serve the local control API
//   - control: switch the active slot and manage dummies on a running session
//   - demo: inspect recorded demo files
//
// Usage:
//
//	slotmesh run --server 10.0.0.5:8303 --dummies 2
//	slotmesh control status -o json
//	slotmesh demo inspect session.demo
package main
