package service

import (
	"fmt"
	"sync"

	"github.com/yndnr/slotmesh/internal/core/domain"
)

// DefaultInputQueueSize is the default bound of a slot's outbound queue.
const DefaultInputQueueSize = 64

// InputQueue is a bounded FIFO of outbound input frames for one slot.
// Push never blocks: on overflow the oldest frame is dropped.
type InputQueue struct {
	mu       sync.Mutex
	frames   []domain.InputFrame
	capacity int
	lastTick domain.Tick
	dropped  uint64
	closed   bool
}

// NewInputQueue creates a queue holding at most capacity frames.
func NewInputQueue(capacity int) *InputQueue {
	if capacity <= 0 {
		capacity = DefaultInputQueueSize
	}
	return &InputQueue{
		frames:   make([]domain.InputFrame, 0, capacity),
		capacity: capacity,
		lastTick: domain.NoTick,
	}
}

// Push enqueues f. Frame ticks must strictly increase. When the queue is
// full the oldest frame is dropped and ErrBackpressure is returned; f itself
// is still enqueued.
func (q *InputQueue) Push(f domain.InputFrame) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return domain.ErrInvalidSlot.WithDetails(fmt.Sprintf("%s queue closed", f.SlotID))
	}
	if f.Tick <= q.lastTick {
		return domain.ErrStaleInputTick.WithDetails(fmt.Sprintf("tick %d after %d", f.Tick, q.lastTick))
	}
	q.lastTick = f.Tick

	var err error
	if len(q.frames) == q.capacity {
		n := copy(q.frames, q.frames[1:])
		q.frames = q.frames[:n]
		q.dropped++
		err = domain.ErrBackpressure.WithDetails(fmt.Sprintf("%s dropped frame", f.SlotID))
	}
	q.frames = append(q.frames, f)
	return err
}

// Drain removes and returns every queued frame in order.
func (q *InputQueue) Drain() []domain.InputFrame {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.frames) == 0 {
		return nil
	}
	out := make([]domain.InputFrame, len(q.frames))
	copy(out, q.frames)
	clear(q.frames)
	q.frames = q.frames[:0]
	return out
}

// Len returns the number of queued frames.
func (q *InputQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Dropped returns how many frames were discarded on overflow.
func (q *InputQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close discards queued frames. Further pushes fail.
func (q *InputQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.frames = nil
	q.closed = true
}
