// Package snapshot holds the per-slot history of reconstructed game-state
// snapshots.
//
// A Store keeps snapshots in strictly increasing tick order inside a bounded
// window. Old entries leave either by capacity eviction (oldest first) or by
// Prune, which also raises the floor below which inserts are rejected. Delta
// helpers rebuild a snapshot from a stored baseline.
package snapshot
