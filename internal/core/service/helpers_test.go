package service

import (
	"sync"
	"testing"
	"time"

	"github.com/yndnr/slotmesh/internal/core/domain"
	"github.com/yndnr/slotmesh/internal/net/packet"
	"github.com/yndnr/slotmesh/internal/storage/snapshot"
	"github.com/yndnr/slotmesh/internal/telemetry/logger"
	"github.com/yndnr/slotmesh/internal/telemetry/metric"
)

// manualClock is a test clock advanced by hand.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type removal struct {
	id     domain.SlotID
	main   bool
	reason RemoveReason
}

func newTestRegistry(t *testing.T, clock *manualClock) (*Registry, *[]removal) {
	t.Helper()
	if clock == nil {
		clock = newManualClock()
	}
	r := NewRegistry(RegistryConfig{
		SnapshotCapacity: 16,
		InputQueueSize:   4,
		Logger:           logger.Discard(),
		Metrics:          metric.NewRegistry(),
		Now:              clock.Now,
	})
	var removed []removal
	r.OnRemove(func(id domain.SlotID, main bool, reason RemoveReason) {
		removed = append(removed, removal{id, main, reason})
	})
	return r, &removed
}

// openOnlineMain opens the main slot, walks it through the handshake and
// records caps.
func openOnlineMain(t *testing.T, r *Registry, caps domain.Capabilities) domain.SlotID {
	t.Helper()
	id, err := r.OpenMain("127.0.0.1:8303", 7)
	if err != nil {
		t.Fatalf("OpenMain: %v", err)
	}
	bringOnline(t, r, id)
	r.SetCapabilities(caps)
	return id
}

func bringOnline(t *testing.T, r *Registry, id domain.SlotID) {
	t.Helper()
	if err := r.Transition(id, domain.StateAuthenticating); err != nil {
		t.Fatalf("Transition(%s, authenticating): %v", id, err)
	}
	if err := r.Transition(id, domain.StateOnline); err != nil {
		t.Fatalf("Transition(%s, online): %v", id, err)
	}
}

func extended(n int) domain.Capabilities {
	return domain.Capabilities{DummyAllowed: n > 0, MaxDummies: n, Extended: true}
}

func mustEncode(t *testing.T, m packet.Message) []byte {
	t.Helper()
	data, err := packet.Encode(m)
	if err != nil {
		t.Fatalf("Encode(%T): %v", m, err)
	}
	return data
}

func decodeAll(t *testing.T, raw [][]byte) []packet.Message {
	t.Helper()
	out := make([]packet.Message, 0, len(raw))
	for _, d := range raw {
		m, err := packet.Decode(d)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		out = append(out, m)
	}
	return out
}

// fullSnap builds a full snapshot packet for state.
func fullSnap(t *testing.T, tick, prev domain.Tick, state []byte) packet.Snapshot {
	t.Helper()
	s, err := packet.NewSnapshot(tick, prev, domain.NoTick, state, nil, snapshot.Diff)
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	return s
}

// deltaSnap builds a delta snapshot packet for state against base.
func deltaSnap(t *testing.T, tick, prev, baseTick domain.Tick, base, state []byte) packet.Snapshot {
	t.Helper()
	s, err := packet.NewSnapshot(tick, prev, baseTick, state, base, snapshot.Diff)
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	return s
}
