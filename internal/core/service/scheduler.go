package service

import (
	"bytes"
	"errors"
	"sync/atomic"

	"github.com/yndnr/slotmesh/internal/core/domain"
	"github.com/yndnr/slotmesh/internal/telemetry/logger"
	"github.com/yndnr/slotmesh/internal/telemetry/metric"
)

// Scheduler turns local input captures into one InputFrame per live slot per
// tick.
//
// Captures coalesce until the next Tick: the newest one becomes the active
// slot's fresh frame and is never seen by any other slot. Inactive slots
// replay their previous payload unchanged.
type Scheduler struct {
	registry *Registry
	selector *Selector
	logger   logger.Logger
	metrics  *metric.Registry

	captured atomic.Pointer[[]byte]
	last     map[domain.SlotID][]byte

	// OnBackpressure is called after a slot queue dropped a frame.
	OnBackpressure func(id domain.SlotID)
}

// NewScheduler creates a scheduler over the registry's live slots.
func NewScheduler(registry *Registry, selector *Selector, l logger.Logger, m *metric.Registry) *Scheduler {
	if m == nil {
		m = metric.NewRegistry()
	}
	return &Scheduler{
		registry: registry,
		selector: selector,
		logger:   logger.OrDefault(l),
		metrics:  m,
		last:     make(map[domain.SlotID][]byte),
	}
}

// RouteLocalInput records a capture for the next tick. It never blocks and
// may be called from any goroutine; a later capture replaces an earlier one.
func (s *Scheduler) RouteLocalInput(raw []byte) {
	c := bytes.Clone(raw)
	if c == nil {
		c = []byte{}
	}
	s.captured.Store(&c)
}

// Tick emits exactly one frame for every live slot and queues it.
func (s *Scheduler) Tick(tick domain.Tick) []domain.InputFrame {
	var fresh []byte
	if p := s.captured.Swap(nil); p != nil {
		fresh = *p
	}
	active, hasActive := s.selector.Current()
	if fresh != nil && !hasActive {
		s.logger.Debug("local input discarded, no active slot", "tick", tick)
		fresh = nil
	}

	ids := s.registry.Live()
	frames := make([]domain.InputFrame, 0, len(ids))
	for _, id := range ids {
		frame := domain.InputFrame{Tick: tick, SlotID: id}
		if hasActive && id == active && fresh != nil {
			frame.Payload = fresh
			frame.Fresh = true
			s.last[id] = fresh
			s.metrics.InputFrames.WithLabelValues("fresh").Inc()
		} else {
			frame = domain.InputFrame{SlotID: id, Payload: s.last[id]}.Replay(tick)
			s.metrics.InputFrames.WithLabelValues("replay").Inc()
		}

		s.enqueue(frame)
		frames = append(frames, frame)
	}
	return frames
}

func (s *Scheduler) enqueue(f domain.InputFrame) {
	q, err := s.registry.Queue(f.SlotID)
	if err != nil {
		return
	}
	err = q.Push(f)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrBackpressure):
		s.metrics.InputBackpressure.Inc()
		s.logger.Debug("input queue full, oldest frame dropped",
			"slot_id", uint32(f.SlotID),
			"tick", f.Tick,
		)
		if s.OnBackpressure != nil {
			s.OnBackpressure(f.SlotID)
		}
	default:
		s.logger.Warn("input frame rejected",
			"slot_id", uint32(f.SlotID),
			"tick", f.Tick,
			"error", err,
		)
	}
}

// LastPayload returns the payload a slot will replay next.
func (s *Scheduler) LastPayload(id domain.SlotID) []byte {
	return bytes.Clone(s.last[id])
}

// Forget drops per-slot state for a removed slot.
func (s *Scheduler) Forget(id domain.SlotID) {
	delete(s.last, id)
}
