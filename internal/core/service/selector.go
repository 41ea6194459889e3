package service

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/yndnr/slotmesh/internal/core/domain"
	"github.com/yndnr/slotmesh/internal/telemetry/logger"
)

// noSlot marks an empty selector position.
const noSlot int64 = -1

// LiveSet is the view of the registry the selector needs.
type LiveSet interface {
	Live() []domain.SlotID
	IsLive(id domain.SlotID) bool
	Main() (domain.SlotID, bool)
}

// Selector decides which live slot receives local input.
//
// A requested switch is held as pending and only becomes current at Commit,
// which the session calls once per tick boundary. Current and Pending are
// lock-free; writers are serialized by mu.
type Selector struct {
	live   LiveSet
	logger logger.Logger

	mu      sync.Mutex
	current atomic.Int64
	pending atomic.Int64
}

// NewSelector creates a selector with nothing selected.
func NewSelector(live LiveSet, l logger.Logger) *Selector {
	s := &Selector{
		live:   live,
		logger: logger.OrDefault(l),
	}
	s.current.Store(noSlot)
	s.pending.Store(noSlot)
	return s
}

// Current returns the committed active slot.
func (s *Selector) Current() (domain.SlotID, bool) {
	return unpack(s.current.Load())
}

// Pending returns the switch waiting for the next Commit.
func (s *Selector) Pending() (domain.SlotID, bool) {
	return unpack(s.pending.Load())
}

// SetActive requests a switch to id at the next tick boundary.
func (s *Selector) SetActive(id domain.SlotID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.live.IsLive(id) {
		return domain.ErrInvalidSlot.WithDetails(id.String())
	}
	s.pending.Store(int64(id))
	return nil
}

// Cycle requests a switch to the live slot after the pending (or, if none,
// the current) one in registration order, wrapping around. With fewer than
// two live slots it does nothing and reports false.
func (s *Selector) Cycle() (domain.SlotID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.live.Live()
	if len(ids) < 2 {
		return 0, false
	}

	from, ok := s.Pending()
	if !ok {
		from, ok = s.Current()
	}
	next := ids[0]
	if ok {
		if i := slices.Index(ids, from); i >= 0 {
			next = ids[(i+1)%len(ids)]
		}
	}
	s.pending.Store(int64(next))
	return next, true
}

// Commit applies the pending switch. With nothing selected it falls back to
// the main slot. It reports whether the current slot changed.
func (s *Selector) Commit() (domain.SlotID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.current.Load()
	if p := s.pending.Swap(noSlot); p != noSlot && s.live.IsLive(domain.SlotID(p)) {
		s.current.Store(p)
	}
	if s.current.Load() == noSlot {
		if main, ok := s.live.Main(); ok && s.live.IsLive(main) {
			s.current.Store(int64(main))
		}
	}

	after := s.current.Load()
	if after != before {
		s.logger.Info("active slot switched",
			"from", before,
			"to", after,
		)
	}
	id, ok := unpack(after)
	return id, ok && after != before
}

// SlotRemoved clears references to a removed slot. If it was current the
// selector falls back to the main slot, or to nothing when the main slot is
// gone too.
func (s *Selector) SlotRemoved(id domain.SlotID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending.CompareAndSwap(int64(id), noSlot)
	if s.current.Load() != int64(id) {
		return
	}

	next := noSlot
	if main, ok := s.live.Main(); ok && main != id && s.live.IsLive(main) {
		next = int64(main)
	}
	s.current.Store(next)
	s.logger.Info("active slot removed, falling back",
		"removed", uint32(id),
		"to", next,
	)
}

func unpack(v int64) (domain.SlotID, bool) {
	if v == noSlot {
		return 0, false
	}
	return domain.SlotID(v), true
}
