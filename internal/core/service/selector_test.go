package service

import (
	"errors"
	"testing"

	"github.com/yndnr/slotmesh/internal/core/domain"
	"github.com/yndnr/slotmesh/internal/telemetry/logger"
)

func newTestSelector(t *testing.T, dummies int) (*Selector, *Registry, []domain.SlotID) {
	t.Helper()
	r, _ := newTestRegistry(t, nil)
	main := openOnlineMain(t, r, extended(4))
	ids := []domain.SlotID{main}
	for i := 0; i < dummies; i++ {
		id, err := r.Register("srv", 1)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	s := NewSelector(r, logger.Discard())
	r.OnRemove(func(id domain.SlotID, _ bool, _ RemoveReason) { s.SlotRemoved(id) })
	return s, r, ids
}

func assertCurrent(t *testing.T, s *Selector, want domain.SlotID) {
	t.Helper()
	got, ok := s.Current()
	if !ok || got != want {
		t.Errorf("Current() = (%d, %v), want (%d, true)", got, ok, want)
	}
}

func TestSelector_CommitFallsBackToMain(t *testing.T) {
	s, _, ids := newTestSelector(t, 1)

	if _, ok := s.Current(); ok {
		t.Fatal("fresh selector has a current slot")
	}
	id, changed := s.Commit()
	if !changed || id != ids[0] {
		t.Errorf("Commit() = (%d, %v), want (%d, true)", id, changed, ids[0])
	}
	if _, changed := s.Commit(); changed {
		t.Error("second Commit reported a change")
	}
}

func TestSelector_SetActiveAppliesAtCommit(t *testing.T) {
	s, _, ids := newTestSelector(t, 2)
	s.Commit()

	if err := s.SetActive(ids[2]); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	assertCurrent(t, s, ids[0])
	if p, ok := s.Pending(); !ok || p != ids[2] {
		t.Errorf("Pending() = (%d, %v)", p, ok)
	}

	s.Commit()
	assertCurrent(t, s, ids[2])
	if _, ok := s.Pending(); ok {
		t.Error("pending not cleared by Commit")
	}
}

func TestSelector_SetActiveInvalid(t *testing.T) {
	s, r, ids := newTestSelector(t, 1)
	s.Commit()

	if err := s.SetActive(42); !errors.Is(err, domain.ErrInvalidSlot) {
		t.Errorf("SetActive(42) error = %v, want ErrInvalidSlot", err)
	}
	_ = r.Unregister(ids[1], ReasonUser)
	if err := s.SetActive(ids[1]); !errors.Is(err, domain.ErrInvalidSlot) {
		t.Errorf("SetActive(removed) error = %v, want ErrInvalidSlot", err)
	}
	assertCurrent(t, s, ids[0])
}

func TestSelector_Cycle(t *testing.T) {
	s, _, ids := newTestSelector(t, 2)
	s.Commit()

	for _, want := range []domain.SlotID{ids[1], ids[2], ids[0], ids[1]} {
		next, ok := s.Cycle()
		if !ok || next != want {
			t.Fatalf("Cycle() = (%d, %v), want (%d, true)", next, ok, want)
		}
		s.Commit()
		assertCurrent(t, s, want)
	}

	// Cycling twice before a commit continues from the pending slot.
	s.Cycle()
	next, _ := s.Cycle()
	s.Commit()
	assertCurrent(t, s, next)
	if next != ids[0] {
		t.Errorf("double cycle landed on %d, want %d", next, ids[0])
	}
}

func TestSelector_CycleSingleSlotIsNoop(t *testing.T) {
	s, _, ids := newTestSelector(t, 0)
	s.Commit()

	if _, ok := s.Cycle(); ok {
		t.Error("Cycle with one live slot reported a switch")
	}
	if _, ok := s.Pending(); ok {
		t.Error("Cycle with one live slot set pending")
	}
	assertCurrent(t, s, ids[0])
}

func TestSelector_RemovingActiveFallsBackToMain(t *testing.T) {
	s, r, ids := newTestSelector(t, 2)
	_ = s.SetActive(ids[1])
	s.Commit()

	_ = r.Unregister(ids[1], ReasonUser)
	assertCurrent(t, s, ids[0])

	// Pending pointing at a removed slot is discarded.
	_ = s.SetActive(ids[2])
	_ = r.Unregister(ids[2], ReasonUser)
	s.Commit()
	assertCurrent(t, s, ids[0])
}

func TestSelector_RemovingMainClearsSelection(t *testing.T) {
	s, r, ids := newTestSelector(t, 1)
	_ = s.SetActive(ids[1])
	s.Commit()

	_ = r.Unregister(ids[0], ReasonUser)
	if id, ok := s.Current(); ok {
		t.Errorf("Current() = %d after main removal, want none", id)
	}
	if _, changed := s.Commit(); changed {
		t.Error("Commit selected a slot with nothing live")
	}
}
