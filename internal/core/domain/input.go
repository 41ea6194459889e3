package domain

import "bytes"

// InputFrame is one tick's worth of input for one connection.
// Frames are transient: produced by the scheduler, consumed by the transport.
type InputFrame struct {
	Tick    Tick
	SlotID  SlotID
	Payload []byte

	// Fresh is set only on the active slot's frame when it carries newly
	// captured local input. Replayed frames leave it false.
	Fresh bool
}

// Replay returns the frame that an idle slot emits at tick: same payload,
// new tick, not fresh.
func (f InputFrame) Replay(tick Tick) InputFrame {
	return InputFrame{
		Tick:    tick,
		SlotID:  f.SlotID,
		Payload: bytes.Clone(f.Payload),
	}
}
