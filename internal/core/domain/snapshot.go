package domain

import "bytes"

// Tick is a server simulation tick.
type Tick int64

// NoTick marks an absent tick (no delta base, nothing acked, nothing applied).
const NoTick Tick = -1

// Snapshot is one reconstructed game-state update for a single slot.
type Snapshot struct {
	Tick          Tick
	Payload       []byte
	DeltaBaseTick Tick
}

// IsDelta reports whether the snapshot was encoded against an earlier one.
func (s Snapshot) IsDelta() bool {
	return s.DeltaBaseTick != NoTick
}

// Clone deep-copies the payload.
func (s Snapshot) Clone() Snapshot {
	c := s
	if s.Payload != nil {
		c.Payload = bytes.Clone(s.Payload)
	}
	return c
}

// Equal compares tick, base and payload bytes.
func (s Snapshot) Equal(o Snapshot) bool {
	return s.Tick == o.Tick && s.DeltaBaseTick == o.DeltaBaseTick && bytes.Equal(s.Payload, o.Payload)
}
