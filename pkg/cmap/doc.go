// Package cmap provides a concurrent map implementation for slotmesh.
//
// The map is split into a power-of-two number of shards, each guarded by its
// own RWMutex. Keys are assigned to shards by a murmur3 hash.
//
// Usage:
//
//	m := cmap.NewWithHasher[domain.SlotID, *conn](16, func(id domain.SlotID) uint64 {
//		return cmap.HashUint32(uint32(id))
//	})
//	m.Set(id, c)
//	c, ok := m.Get(id)
//
// Thread Safety:
//
// All operations are thread-safe. Read operations (Get, Has) use RLock,
// write operations (Set, Delete) use Lock.
package cmap
